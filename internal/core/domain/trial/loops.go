// internal/core/domain/trial/loops.go
package trial

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	trial_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trial"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// Warning windows, in hours until expiry: (low, high].
const (
	warn24Low, warn24High = 23.0, 24.0
	warn3Low, warn3High   = 2.9, 3.0
)

// WarningInterval is the cadence of WarningTick. It must stay below the 6 minute
// width of the 3h window or some members get no 3h warning.
const WarningInterval = 5 * time.Minute

// ExpiryTick ends every trial whose expiry has passed, then runs the Monday activation.
func (e *Engine) ExpiryTick(ctx context.Context) (int, error) {
	now := e.clock.Now()
	expired, err := e.trials.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("Engine.ExpiryTick: %w", err)
	}

	var ended int
	for _, m := range expired {
		if ctx.Err() != nil {
			return ended, ctx.Err()
		}
		if err := e.membership.KickAndUnban(ctx, m.ChatID, m.UserID); err != nil {
			logger.Warn("⚠️ Kick of expired trial %d failed, retrying next tick: %v", m.UserID, err)
			continue
		}
		ok, err := e.expire(ctx, m.UserID, now)
		if err != nil {
			logger.Error("❌ Expiring trial %d: %v", m.UserID, err)
			continue
		}
		if ok {
			ended++
			metrics.Trials.WithLabelValues("expired").Inc()
			logger.Info("⌛ Trial of %d expired", m.UserID)
			e.notify.Notify(fmt.Sprintf("⌛ Trial expired for %d", m.UserID))
		}
	}

	if calendar.IsMondayActivationWindow(now) {
		if _, err := e.MondayActivation(ctx); err != nil {
			logger.Warn("⚠️ Monday activation: %v", err)
		}
	}
	return ended, nil
}

func (e *Engine) expire(ctx context.Context, userID int64, now time.Time) (bool, error) {
	var deleted bool
	err := e.db.InTx(ctx, func(tx *sqlx.Tx) error {
		trials := e.trials.WithTx(tx)
		ok, err := trials.DeleteMember(ctx, userID)
		if err != nil || !ok {
			return err
		}
		if err := trials.RecordExpired(ctx, userID, now); err != nil {
			return err
		}
		if err := trials.SeedFollowups(ctx, userID, now); err != nil {
			return err
		}
		if _, err := e.producer.On(e.queue.WithTx(tx)).Enqueue(ctx, userID, templates.DMTrialExpired, nil); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// MondayActivation tells weekend joiners their trial is now running.
func (e *Engine) MondayActivation(ctx context.Context) (int, error) {
	members, err := e.trials.ListMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("Engine.MondayActivation: %w", err)
	}
	var sent int
	for _, m := range members {
		if !m.WeekendDelayed || m.MondayNotificationSent {
			continue
		}
		var flipped bool
		err := e.db.InTx(ctx, func(tx *sqlx.Tx) error {
			ok, err := e.trials.WithTx(tx).MarkMondayNotified(ctx, m.UserID)
			if err != nil || !ok {
				return err
			}
			flipped = true
			_, err = e.producer.On(e.queue.WithTx(tx)).Enqueue(ctx, m.UserID, templates.DMMondayActivation, expiryVars(m.ExpiryTime))
			return err
		})
		if err != nil {
			logger.Warn("⚠️ Monday activation for %d: %v", m.UserID, err)
			continue
		}
		if flipped {
			sent++
		}
	}
	if sent > 0 {
		logger.Info("📅 Monday activation sent to %d weekend trials", sent)
	}
	return sent, nil
}

// WarningTick queues pre-expiry warnings. With catchUp the windows widen to
// everything a stopped service could have missed: 24h warnings for (3, 24]
// and 3h warnings for (0, 3].
func (e *Engine) WarningTick(ctx context.Context, catchUp bool) (int, error) {
	now := e.clock.Now()
	members, err := e.trials.ListMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("Engine.WarningTick: %w", err)
	}

	var sent int
	for _, m := range members {
		h := m.Remaining(now).Hours()
		var column, key string
		var silence []string
		switch {
		case !m.Warning3hSent && inWindow(h, warn3Low, warn3High, catchUp, 0):
			column, key = trial_repo.Warning3h, templates.DMWarning3h
			if !m.Warning24hSent {
				silence = append(silence, trial_repo.Warning24h)
			}
		case !m.Warning24hSent && inWindow(h, warn24Low, warn24High, catchUp, warn3High):
			column, key = trial_repo.Warning24h, templates.DMWarning24h
		default:
			continue
		}

		ok, err := e.warn(ctx, m, column, key, silence)
		if err != nil {
			logger.Warn("⚠️ Warning %s for %d: %v", column, m.UserID, err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func inWindow(h, low, high float64, catchUp bool, catchUpLow float64) bool {
	if catchUp {
		low = catchUpLow
	}
	return h > low && h <= high
}

func (e *Engine) warn(ctx context.Context, m *models.TrialMember, column, key string, silence []string) (bool, error) {
	var flipped bool
	err := e.db.InTx(ctx, func(tx *sqlx.Tx) error {
		trials := e.trials.WithTx(tx)
		ok, err := trials.MarkWarning(ctx, m.UserID, column)
		if err != nil || !ok {
			return err
		}
		for _, c := range silence {
			if _, err := trials.MarkWarning(ctx, m.UserID, c); err != nil {
				return err
			}
		}
		flipped = true
		_, err = e.producer.On(e.queue.WithTx(tx)).Enqueue(ctx, m.UserID, key, expiryVars(m.ExpiryTime))
		return err
	})
	return flipped, err
}

// FollowupTick queues the 3/7/14-day DMs to expired trials that did not join VIP.
// Milestones missed while offline are queued together, oldest first.
func (e *Engine) FollowupTick(ctx context.Context) (int, error) {
	now := e.clock.Now()
	schedules, err := e.trials.ListFollowups(ctx)
	if err != nil {
		return 0, fmt.Errorf("Engine.FollowupTick: %w", err)
	}

	var sent int
	for _, s := range schedules {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		due := dueMilestones(s, now)
		if len(due) == 0 {
			continue
		}
		presence, err := e.membership.MemberStatus(ctx, e.cfg.VIPChatID, s.UserID)
		if err != nil {
			logger.Debug("👤 Membership of %d unknown, retrying next hour: %v", s.UserID, err)
			continue
		}
		if presence == Present {
			continue
		}

		var queued int
		err = e.db.InTx(ctx, func(tx *sqlx.Tx) error {
			trials := e.trials.WithTx(tx)
			producer := e.producer.On(e.queue.WithTx(tx))
			queued = 0
			for _, day := range due {
				ok, err := trials.MarkFollowup(ctx, s.UserID, day)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if _, err := producer.Enqueue(ctx, s.UserID, dmqueue.FollowupTemplate(day), nil); err != nil {
					return err
				}
				queued++
			}
			return nil
		})
		if err != nil {
			logger.Warn("⚠️ Follow-ups %v for %d: %v", due, s.UserID, err)
			continue
		}
		sent += queued
	}
	return sent, nil
}

func dueMilestones(s *models.FollowupSchedule, now time.Time) []int {
	var due []int
	for _, day := range models.FollowupDays {
		if s.Sent(day) {
			continue
		}
		if !now.Before(s.RoleExpired.Add(time.Duration(day) * 24 * time.Hour)) {
			due = append(due, day)
		}
	}
	return due
}

// RecoveryReport summarizes a startup catch-up.
type RecoveryReport struct {
	Recomputed int
	Expired    int
	Warnings   int
	Followups  int
}

// RecoverOffline runs once at startup: expiries are recomputed from joined_at,
// then expiry, warnings and follow-ups each run a single catch-up pass.
func (e *Engine) RecoverOffline(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	now := e.clock.Now()

	members, err := e.trials.ListMembers(ctx)
	if err != nil {
		return rep, fmt.Errorf("Engine.RecoverOffline: %w", err)
	}
	for _, m := range members {
		want := calendar.TrialExpiry(m.JoinedAt)
		if want.Equal(m.ExpiryTime) {
			continue
		}
		reset24, reset3 := rearm(want, now)
		if err := e.trials.UpdateExpiry(ctx, m.UserID, want, reset24, reset3); err != nil {
			logger.Warn("⚠️ Recomputing expiry of %d: %v", m.UserID, err)
			continue
		}
		rep.Recomputed++
		logger.Info("🔄 Trial %d expiry corrected %s -> %s", m.UserID, formatExpiry(m.ExpiryTime), formatExpiry(want))
	}

	if rep.Expired, err = e.ExpiryTick(ctx); err != nil {
		return rep, err
	}
	if rep.Warnings, err = e.WarningTick(ctx, true); err != nil {
		return rep, err
	}
	if rep.Followups, err = e.FollowupTick(ctx); err != nil {
		return rep, err
	}
	logger.Info("🔄 Trial recovery: %d recomputed, %d expired, %d warnings, %d follow-ups",
		rep.Recomputed, rep.Expired, rep.Warnings, rep.Followups)
	return rep, nil
}

// rearm reports which warnings have their window in the future of now for a new expiry.
func rearm(expiry, now time.Time) (reset24h, reset3h bool) {
	left := expiry.Sub(now).Hours()
	return left > warn24Low, left > warn3Low
}
