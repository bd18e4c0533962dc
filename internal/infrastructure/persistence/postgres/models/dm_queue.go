// internal/infrastructure/persistence/postgres/models/dm_queue.go
package models

import (
	"database/sql"
	"time"
)

// DM queue statuses
const (
	DMStatusPending = "pending"
	DMStatusSent    = "sent"
	DMStatusFailed  = "failed"
)

// DMQueueItem - one direct message addressed to a user
type DMQueueItem struct {
	ID          int64        `db:"id" json:"id"`
	UserID      int64        `db:"user_id" json:"user_id"`
	MessageText string       `db:"message_text" json:"message_text"`
	Label       string       `db:"label" json:"label"`
	Status      string       `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	SentAt      sql.NullTime `db:"sent_at" json:"sent_at"`
	ErrorText   string       `db:"error_text" json:"error_text,omitempty"`

	// NextAttemptAt hides a postponed row from the drain until then
	NextAttemptAt sql.NullTime `db:"next_attempt_at" json:"next_attempt_at"`
}

// DMQueueStats - queue counters for the operator
type DMQueueStats struct {
	Pending       int        `json:"pending"`
	Sent          int        `json:"sent"`
	Failed        int        `json:"failed"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}
