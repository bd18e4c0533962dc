// internal/infrastructure/persistence/postgres/repository/dm_queue/repository.go
package dm_queue_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// DMQueueRepository is the userbot_dm_queue table: producers append, the userbot drains.
type DMQueueRepository interface {
	Enqueue(ctx context.Context, userID int64, text, label string, at time.Time) (int64, error)
	FetchPending(ctx context.Context, now time.Time, limit int) ([]*models.DMQueueItem, error)
	Postpone(ctx context.Context, id int64, until time.Time) error
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.DMQueueItem, error)
	Stats(ctx context.Context) (*models.DMQueueStats, error)
	WithTx(tx *sqlx.Tx) DMQueueRepository
}

type DMQueueRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewDMQueueRepository(db *sqlx.DB) *DMQueueRepositoryImpl {
	return &DMQueueRepositoryImpl{db: db}
}

func (r *DMQueueRepositoryImpl) WithTx(tx *sqlx.Tx) DMQueueRepository {
	return &DMQueueRepositoryImpl{db: tx}
}

const itemColumns = `id, user_id, message_text, label, status, created_at, sent_at, error_text, next_attempt_at`

// Enqueue appends a pending DM and returns its id.
func (r *DMQueueRepositoryImpl) Enqueue(ctx context.Context, userID int64, text, label string, at time.Time) (int64, error) {
	query := r.db.Rebind(`INSERT INTO userbot_dm_queue (user_id, message_text, label, status, created_at)
	VALUES (?, ?, ?, ?, ?) RETURNING id`)
	var id int64
	if err := r.db.QueryRowxContext(ctx, query, userID, text, label, models.DMStatusPending, models.Stamp(at)).Scan(&id); err != nil {
		return 0, fmt.Errorf("DMQueueRepository.Enqueue %d %q: %w", userID, label, err)
	}
	return id, nil
}

// FetchPending returns the oldest pending rows that are not postponed past now, FIFO by created_at.
func (r *DMQueueRepositoryImpl) FetchPending(ctx context.Context, now time.Time, limit int) ([]*models.DMQueueItem, error) {
	var list []*models.DMQueueItem
	query := r.db.Rebind(`SELECT ` + itemColumns + ` FROM userbot_dm_queue
	WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY created_at, id LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &list, query, models.DMStatusPending, models.Stamp(now), limit); err != nil {
		return nil, fmt.Errorf("DMQueueRepository.FetchPending: %w", err)
	}
	return list, nil
}

// Postpone keeps a pending row out of FetchPending until the given time.
func (r *DMQueueRepositoryImpl) Postpone(ctx context.Context, id int64, until time.Time) error {
	query := r.db.Rebind(`UPDATE userbot_dm_queue SET next_attempt_at = ? WHERE id = ? AND status = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.Stamp(until), id, models.DMStatusPending); err != nil {
		return fmt.Errorf("DMQueueRepository.Postpone %d: %w", id, err)
	}
	return nil
}

func (r *DMQueueRepositoryImpl) MarkSent(ctx context.Context, id int64, at time.Time) error {
	query := r.db.Rebind(`UPDATE userbot_dm_queue SET status = ?, sent_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.DMStatusSent, models.Stamp(at), id); err != nil {
		return fmt.Errorf("DMQueueRepository.MarkSent %d: %w", id, err)
	}
	return nil
}

func (r *DMQueueRepositoryImpl) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := r.db.Rebind(`UPDATE userbot_dm_queue SET status = ?, error_text = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.DMStatusFailed, reason, id); err != nil {
		return fmt.Errorf("DMQueueRepository.MarkFailed %d: %w", id, err)
	}
	return nil
}

// ListByUser returns a user's most recent DMs, newest first.
func (r *DMQueueRepositoryImpl) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.DMQueueItem, error) {
	var list []*models.DMQueueItem
	query := r.db.Rebind(`SELECT ` + itemColumns + ` FROM userbot_dm_queue
	WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &list, query, userID, limit); err != nil {
		return nil, fmt.Errorf("DMQueueRepository.ListByUser %d: %w", userID, err)
	}
	return list, nil
}

func (r *DMQueueRepositoryImpl) Stats(ctx context.Context) (*models.DMQueueStats, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT status, COUNT(*) AS n FROM userbot_dm_queue GROUP BY status`); err != nil {
		return nil, fmt.Errorf("DMQueueRepository.Stats: %w", err)
	}
	stats := &models.DMQueueStats{}
	for _, row := range rows {
		switch row.Status {
		case models.DMStatusPending:
			stats.Pending = row.Count
		case models.DMStatusSent:
			stats.Sent = row.Count
		case models.DMStatusFailed:
			stats.Failed = row.Count
		}
	}

	if stats.Pending > 0 {
		// MIN() would drop the column type on SQLite, so read the row instead
		var oldest []time.Time
		query := r.db.Rebind(`SELECT created_at FROM userbot_dm_queue WHERE status = ? ORDER BY created_at LIMIT 1`)
		if err := sqlx.SelectContext(ctx, r.db, &oldest, query, models.DMStatusPending); err != nil {
			return nil, fmt.Errorf("DMQueueRepository.Stats: %w", err)
		}
		if len(oldest) == 1 {
			stats.OldestPending = &oldest[0]
		}
	}
	return stats, nil
}
