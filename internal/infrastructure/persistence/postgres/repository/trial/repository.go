// internal/infrastructure/persistence/postgres/repository/trial/repository.go
package trial_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// Warning kinds
const (
	Warning24h = "warning_24h_sent"
	Warning3h  = "warning_3h_sent"
)

// TrialRepository covers trial_members, trial_history and followup_schedule.
type TrialRepository interface {
	InsertMember(ctx context.Context, m *models.TrialMember) error
	GetMember(ctx context.Context, userID int64) (*models.TrialMember, error)
	ListMembers(ctx context.Context) ([]*models.TrialMember, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.TrialMember, error)
	DeleteMember(ctx context.Context, userID int64) (bool, error)
	UpdateExpiry(ctx context.Context, userID int64, expiry time.Time, reset24h, reset3h bool) error
	MarkWarning(ctx context.Context, userID int64, column string) (bool, error)
	MarkMondayNotified(ctx context.Context, userID int64) (bool, error)

	GetHistory(ctx context.Context, userID int64) (*models.TrialHistory, error)
	RecordGrant(ctx context.Context, userID int64, at time.Time) error
	RecordExpired(ctx context.Context, userID int64, at time.Time) error

	SeedFollowups(ctx context.Context, userID int64, expiredAt time.Time) error
	ListFollowups(ctx context.Context) ([]*models.FollowupSchedule, error)
	MarkFollowup(ctx context.Context, userID int64, day int) (bool, error)

	Clear(ctx context.Context, userID int64) error
	Counts(ctx context.Context) (members, history, followups int, err error)
	WithTx(tx *sqlx.Tx) TrialRepository
}

type TrialRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewTrialRepository(db *sqlx.DB) *TrialRepositoryImpl {
	return &TrialRepositoryImpl{db: db}
}

func (r *TrialRepositoryImpl) WithTx(tx *sqlx.Tx) TrialRepository {
	return &TrialRepositoryImpl{db: tx}
}

const memberColumns = `user_id, chat_id, joined_at, expiry_time, weekend_delayed,
	warning_24h_sent, warning_3h_sent, monday_notification_sent`

// InsertMember starts a trial; an existing row for the user is replaced.
func (r *TrialRepositoryImpl) InsertMember(ctx context.Context, m *models.TrialMember) error {
	row := *m
	row.JoinedAt = models.Stamp(m.JoinedAt)
	row.ExpiryTime = models.Stamp(m.ExpiryTime)
	query := `INSERT INTO trial_members (` + memberColumns + `)
	VALUES (:user_id, :chat_id, :joined_at, :expiry_time, :weekend_delayed,
		:warning_24h_sent, :warning_3h_sent, :monday_notification_sent)
	ON CONFLICT (user_id) DO UPDATE SET
		chat_id = excluded.chat_id,
		joined_at = excluded.joined_at,
		expiry_time = excluded.expiry_time,
		weekend_delayed = excluded.weekend_delayed,
		warning_24h_sent = excluded.warning_24h_sent,
		warning_3h_sent = excluded.warning_3h_sent,
		monday_notification_sent = excluded.monday_notification_sent`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, &row); err != nil {
		return fmt.Errorf("TrialRepository.InsertMember %d: %w", m.UserID, err)
	}
	return nil
}

func (r *TrialRepositoryImpl) GetMember(ctx context.Context, userID int64) (*models.TrialMember, error) {
	var m models.TrialMember
	query := r.db.Rebind(`SELECT ` + memberColumns + ` FROM trial_members WHERE user_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &m, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("TrialRepository.GetMember %d: %w", userID, err)
	}
	return &m, nil
}

// ListMembers returns running trials, soonest expiry first.
func (r *TrialRepositoryImpl) ListMembers(ctx context.Context) ([]*models.TrialMember, error) {
	var list []*models.TrialMember
	query := `SELECT ` + memberColumns + ` FROM trial_members ORDER BY expiry_time, user_id`
	if err := sqlx.SelectContext(ctx, r.db, &list, query); err != nil {
		return nil, fmt.Errorf("TrialRepository.ListMembers: %w", err)
	}
	return list, nil
}

// ListExpired returns trials with expiry_time <= now.
func (r *TrialRepositoryImpl) ListExpired(ctx context.Context, now time.Time) ([]*models.TrialMember, error) {
	var list []*models.TrialMember
	query := r.db.Rebind(`SELECT ` + memberColumns + ` FROM trial_members WHERE expiry_time <= ? ORDER BY expiry_time, user_id`)
	if err := sqlx.SelectContext(ctx, r.db, &list, query, models.Stamp(now)); err != nil {
		return nil, fmt.Errorf("TrialRepository.ListExpired: %w", err)
	}
	return list, nil
}

func (r *TrialRepositoryImpl) DeleteMember(ctx context.Context, userID int64) (bool, error) {
	query := r.db.Rebind(`DELETE FROM trial_members WHERE user_id = ?`)
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("TrialRepository.DeleteMember %d: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateExpiry overwrites expiry_time and optionally re-arms warnings.
func (r *TrialRepositoryImpl) UpdateExpiry(ctx context.Context, userID int64, expiry time.Time, reset24h, reset3h bool) error {
	query := `UPDATE trial_members SET expiry_time = ?`
	if reset24h {
		query += `, warning_24h_sent = FALSE`
	}
	if reset3h {
		query += `, warning_3h_sent = FALSE`
	}
	query += ` WHERE user_id = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), models.Stamp(expiry), userID)
	if err != nil {
		return fmt.Errorf("TrialRepository.UpdateExpiry %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("TrialRepository.UpdateExpiry %d: %w", userID, sql.ErrNoRows)
	}
	return nil
}

// MarkWarning flips a warning flag; false means it was already set.
func (r *TrialRepositoryImpl) MarkWarning(ctx context.Context, userID int64, column string) (bool, error) {
	if column != Warning24h && column != Warning3h {
		return false, fmt.Errorf("TrialRepository.MarkWarning: unknown flag %q", column)
	}
	return r.flip(ctx, "trial_members", column, userID)
}

func (r *TrialRepositoryImpl) MarkMondayNotified(ctx context.Context, userID int64) (bool, error) {
	return r.flip(ctx, "trial_members", "monday_notification_sent", userID)
}

// flip sets a boolean column to true only if it is false.
func (r *TrialRepositoryImpl) flip(ctx context.Context, table, column string, userID int64) (bool, error) {
	query := r.db.Rebind(fmt.Sprintf(`UPDATE %s SET %s = TRUE WHERE user_id = ? AND %s = FALSE`, table, column, column))
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("TrialRepository.flip %s.%s %d: %w", table, column, userID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *TrialRepositoryImpl) GetHistory(ctx context.Context, userID int64) (*models.TrialHistory, error) {
	var h models.TrialHistory
	query := r.db.Rebind(`SELECT user_id, first_granted, times_granted, last_expired FROM trial_history WHERE user_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &h, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("TrialRepository.GetHistory %d: %w", userID, err)
	}
	return &h, nil
}

// RecordGrant writes the anti-reuse row.
func (r *TrialRepositoryImpl) RecordGrant(ctx context.Context, userID int64, at time.Time) error {
	query := r.db.Rebind(`INSERT INTO trial_history (user_id, first_granted, times_granted)
	VALUES (?, ?, 1)
	ON CONFLICT (user_id) DO UPDATE SET times_granted = trial_history.times_granted + 1`)
	if _, err := r.db.ExecContext(ctx, query, userID, models.Stamp(at)); err != nil {
		return fmt.Errorf("TrialRepository.RecordGrant %d: %w", userID, err)
	}
	return nil
}

func (r *TrialRepositoryImpl) RecordExpired(ctx context.Context, userID int64, at time.Time) error {
	query := r.db.Rebind(`UPDATE trial_history SET last_expired = ? WHERE user_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.Stamp(at), userID); err != nil {
		return fmt.Errorf("TrialRepository.RecordExpired %d: %w", userID, err)
	}
	return nil
}

// SeedFollowups starts the post-expiry schedule; a repeated seed restarts it.
func (r *TrialRepositoryImpl) SeedFollowups(ctx context.Context, userID int64, expiredAt time.Time) error {
	query := r.db.Rebind(`INSERT INTO followup_schedule (user_id, role_expired, dm_3_sent, dm_7_sent, dm_14_sent)
	VALUES (?, ?, FALSE, FALSE, FALSE)
	ON CONFLICT (user_id) DO UPDATE SET
		role_expired = excluded.role_expired,
		dm_3_sent = FALSE, dm_7_sent = FALSE, dm_14_sent = FALSE`)
	if _, err := r.db.ExecContext(ctx, query, userID, models.Stamp(expiredAt)); err != nil {
		return fmt.Errorf("TrialRepository.SeedFollowups %d: %w", userID, err)
	}
	return nil
}

// ListFollowups returns schedules with at least one milestone left.
func (r *TrialRepositoryImpl) ListFollowups(ctx context.Context) ([]*models.FollowupSchedule, error) {
	var list []*models.FollowupSchedule
	query := `SELECT user_id, role_expired, dm_3_sent, dm_7_sent, dm_14_sent
	FROM followup_schedule
	WHERE dm_3_sent = FALSE OR dm_7_sent = FALSE OR dm_14_sent = FALSE
	ORDER BY role_expired, user_id`
	if err := sqlx.SelectContext(ctx, r.db, &list, query); err != nil {
		return nil, fmt.Errorf("TrialRepository.ListFollowups: %w", err)
	}
	return list, nil
}

// MarkFollowup flips dm_<day>_sent; false means it was already set.
func (r *TrialRepositoryImpl) MarkFollowup(ctx context.Context, userID int64, day int) (bool, error) {
	switch day {
	case 3, 7, 14:
	default:
		return false, fmt.Errorf("TrialRepository.MarkFollowup: no milestone at day %d", day)
	}
	return r.flip(ctx, "followup_schedule", fmt.Sprintf("dm_%d_sent", day), userID)
}

// Clear forgets every trace of a user's trial so they may trial again.
func (r *TrialRepositoryImpl) Clear(ctx context.Context, userID int64) error {
	for _, table := range []string{"trial_members", "trial_history", "followup_schedule"} {
		query := r.db.Rebind(`DELETE FROM ` + table + ` WHERE user_id = ?`)
		if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
			return fmt.Errorf("TrialRepository.Clear %s %d: %w", table, userID, err)
		}
	}
	return nil
}

func (r *TrialRepositoryImpl) Counts(ctx context.Context) (int, int, int, error) {
	var c struct {
		Members   int `db:"members"`
		History   int `db:"history"`
		Followups int `db:"followups"`
	}
	query := `SELECT
		(SELECT COUNT(*) FROM trial_members) AS members,
		(SELECT COUNT(*) FROM trial_history) AS history,
		(SELECT COUNT(*) FROM followup_schedule) AS followups`
	if err := sqlx.GetContext(ctx, r.db, &c, query); err != nil {
		return 0, 0, 0, fmt.Errorf("TrialRepository.Counts: %w", err)
	}
	return c.Members, c.History, c.Followups, nil
}
