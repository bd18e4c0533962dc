// internal/core/domain/tracker/recover.go
package tracker

import (
	"context"
	"fmt"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// RecoveryReport summarizes one startup recovery.
type RecoveryReport struct {
	Restored int
	Loaded   int
	Repaired int
}

// Recover runs the startup sequence: restore unverified message_deleted archives, load the
// active table into the mirror, then check every trade once at the current price.
// Intra-outage price paths are not observable; a level touched and left while down is missed.
// Running Recover twice without new prices changes nothing.
func (t *Tracker) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	restored, err := t.store.RestoreUnverifiedDeleted(ctx)
	if err != nil {
		return report, fmt.Errorf("Tracker.Recover: %w", err)
	}
	report.Restored = len(restored)
	for _, tr := range restored {
		logger.Info("♻️ Restored %s %s from the archive", tr.Key, tr.Pair)
	}

	if report.Loaded, err = t.Load(ctx); err != nil {
		return report, err
	}

	if calendar.IsWeekendClosed(t.clock.Now()) {
		logger.Info("💤 Market closed, repair pass deferred to the first tick")
	} else {
		for _, key := range t.keys() {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			before, _ := t.get(key)
			t.work.Lock()
			after := t.checkLocked(ctx, key, checkOptions{})
			t.work.Unlock()
			if before != nil && after != nil && (after.Status != before.Status ||
				after.TPHits.String() != before.TPHits.String() || after.IsTerminal()) {
				report.Repaired++
			}
		}
	}

	logger.Info("🔄 Tracker recovery: %d restored, %d loaded, %d repaired", report.Restored, report.Loaded, report.Repaired)
	t.debug(fmt.Sprintf("🔄 Recovery: %d restored, %d loaded, %d repaired", report.Restored, report.Loaded, report.Repaired))
	return report, nil
}

// Load replaces the mirror with the active table.
func (t *Tracker) Load(ctx context.Context) (int, error) {
	list, err := t.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("Tracker.Load: %w", err)
	}
	t.mu.Lock()
	for k := range t.mirror {
		delete(t.mirror, k)
	}
	for _, tr := range list {
		t.mirror[tr.Key] = tr
	}
	t.mu.Unlock()
	metrics.ActiveTrades.Set(float64(len(list)))
	return len(list), nil
}
