// internal/infrastructure/persistence/postgres/models/trial.go
package models

import (
	"database/sql"
	"time"
)

// TrialMember - one running VIP trial
type TrialMember struct {
	UserID                 int64     `db:"user_id" json:"user_id"`
	ChatID                 int64     `db:"chat_id" json:"chat_id"`
	JoinedAt               time.Time `db:"joined_at" json:"joined_at"`
	ExpiryTime             time.Time `db:"expiry_time" json:"expiry_time"`
	WeekendDelayed         bool      `db:"weekend_delayed" json:"weekend_delayed"`
	Warning24hSent         bool      `db:"warning_24h_sent" json:"warning_24h_sent"`
	Warning3hSent          bool      `db:"warning_3h_sent" json:"warning_3h_sent"`
	MondayNotificationSent bool      `db:"monday_notification_sent" json:"monday_notification_sent"`
}

// Remaining returns the time left until expiry at now.
func (m *TrialMember) Remaining(now time.Time) time.Duration {
	return m.ExpiryTime.Sub(now)
}

// TrialHistory - anti-reuse record; existence means the trial was used
type TrialHistory struct {
	UserID       int64        `db:"user_id" json:"user_id"`
	FirstGranted time.Time    `db:"first_granted" json:"first_granted"`
	TimesGranted int          `db:"times_granted" json:"times_granted"`
	LastExpired  sql.NullTime `db:"last_expired" json:"last_expired"`
}

// FollowupSchedule - post-expiry DM milestones
type FollowupSchedule struct {
	UserID      int64     `db:"user_id" json:"user_id"`
	RoleExpired time.Time `db:"role_expired" json:"role_expired"`
	DM3Sent     bool      `db:"dm_3_sent" json:"dm_3_sent"`
	DM7Sent     bool      `db:"dm_7_sent" json:"dm_7_sent"`
	DM14Sent    bool      `db:"dm_14_sent" json:"dm_14_sent"`
}

// FollowupDays are the milestones in days after expiry.
var FollowupDays = []int{3, 7, 14}

// Sent reports whether the DM for a milestone went out.
func (f *FollowupSchedule) Sent(day int) bool {
	switch day {
	case 3:
		return f.DM3Sent
	case 7:
		return f.DM7Sent
	case 14:
		return f.DM14Sent
	}
	return true
}
