// internal/core/domain/trial/admin.go
package trial

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/pkg/logger"
)

// ParseShift parses an operator adjustment such as "+2h", "-30m" or "+1h30m".
func ParseShift(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("shift %q must start with + or -", s)
	}
	if strings.ContainsAny(s, "suµn") {
		return 0, fmt.Errorf("shift %q: only h and m units are allowed", s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("shift %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("shift %q is zero", s)
	}
	return d, nil
}

// AdjustTrial moves a running trial's expiry by delta and re-arms the warnings
// whose windows lie ahead again.
func (e *Engine) AdjustTrial(ctx context.Context, userID int64, delta time.Duration) (*models.TrialMember, error) {
	m, err := e.trials.GetMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Engine.AdjustTrial: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("Engine.AdjustTrial %d: %w", userID, ErrNoTrial)
	}

	expiry := m.ExpiryTime.Add(delta)
	reset24, reset3 := rearm(expiry, e.clock.Now())
	if err := e.trials.UpdateExpiry(ctx, userID, expiry, reset24, reset3); err != nil {
		return nil, fmt.Errorf("Engine.AdjustTrial: %w", err)
	}
	logger.Info("🛠 Trial %d expiry moved by %s to %s", userID, delta, formatExpiry(expiry))

	m.ExpiryTime = expiry
	if reset24 {
		m.Warning24hSent = false
	}
	if reset3 {
		m.Warning3hSent = false
	}
	return m, nil
}

// ClearTrial forgets a user's trial entirely so they may trial again.
func (e *Engine) ClearTrial(ctx context.Context, userID int64) error {
	if err := e.trials.Clear(ctx, userID); err != nil {
		return fmt.Errorf("Engine.ClearTrial: %w", err)
	}
	if err := e.cache.ForgetGranted(ctx, userID); err != nil {
		logger.Warn("⚠️ Granted set cleanup for %d: %v", userID, err)
	}
	if _, err := e.cache.TakePendingJoin(ctx, userID); err != nil {
		logger.Warn("⚠️ Pending join cleanup for %d: %v", userID, err)
	}
	logger.Info("🧹 Trial state of %d cleared", userID)
	return nil
}

// ListTrials returns running trials, soonest expiry first.
func (e *Engine) ListTrials(ctx context.Context) ([]*models.TrialMember, error) {
	return e.trials.ListMembers(ctx)
}

// Counts returns the member, history and follow-up row counts.
func (e *Engine) Counts(ctx context.Context) (members, history, followups int, err error) {
	return e.trials.Counts(ctx)
}

// FormatExpiry renders t for operators and DMs.
func FormatExpiry(t time.Time) string { return formatExpiry(t) }
