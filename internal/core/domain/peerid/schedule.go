// internal/core/domain/peerid/schedule.go
package peerid

import (
	"time"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// Stage is one step of the escalation: retry every IntervalMinutes until
// UntilMinutes have passed since the join.
type Stage struct {
	UntilMinutes    int
	IntervalMinutes int
}

// Schedule is the escalation ladder. After the last stage the probe is abandoned.
var Schedule = []Stage{
	{UntilMinutes: 30, IntervalMinutes: 3},
	{UntilMinutes: 60, IntervalMinutes: 10},
	{UntilMinutes: 180, IntervalMinutes: 20},
	{UntilMinutes: 24 * 60, IntervalMinutes: 20},
}

// NewProbe returns the first-stage probe of a join.
func NewProbe(userID int64, joinedAt time.Time) *models.PeerProbe {
	first := Schedule[0]
	return &models.PeerProbe{
		UserID:                 userID,
		JoinedAt:               joinedAt,
		CurrentDelayMinutes:    first.UntilMinutes,
		CurrentIntervalMinutes: first.IntervalMinutes,
		NextCheckAt:            nullTime(joinedAt.Add(time.Duration(first.IntervalMinutes) * time.Minute)),
	}
}

// Advance computes the schedule after a failed check at now.
// A nil next means the probe is abandoned.
func Advance(p *models.PeerProbe, now time.Time) (delay, interval int, next *time.Time) {
	elapsed := int(now.Sub(p.JoinedAt) / time.Minute)
	delay, interval = p.CurrentDelayMinutes, p.CurrentIntervalMinutes

	if elapsed >= delay {
		stage, ok := stageAt(elapsed)
		if !ok {
			return delay, interval, nil
		}
		delay, interval = stage.UntilMinutes, stage.IntervalMinutes
	}
	at := now.Add(time.Duration(interval) * time.Minute)
	return delay, interval, &at
}

func stageAt(elapsedMinutes int) (Stage, bool) {
	for _, s := range Schedule {
		if elapsedMinutes < s.UntilMinutes {
			return s, true
		}
	}
	return Stage{}, false
}
