// internal/infrastructure/persistence/postgres/repository/peer/repository.go
package peer_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// PeerRepository covers peer_probes (main service) and userbot_peers (userbot).
type PeerRepository interface {
	InsertProbe(ctx context.Context, p *models.PeerProbe) (bool, error)
	GetProbe(ctx context.Context, userID int64) (*models.PeerProbe, error)
	ListDueProbes(ctx context.Context, now time.Time, limit int) ([]*models.PeerProbe, error)
	RescheduleProbe(ctx context.Context, userID int64, delayMin, intervalMin int, next *time.Time) error
	MarkEstablished(ctx context.Context, userID int64, at time.Time) (bool, error)
	ProbeCounts(ctx context.Context) (ProbeCounts, error)

	UpsertPeer(ctx context.Context, p *models.UserbotPeer) error
	GetPeer(ctx context.Context, userID int64) (*models.UserbotPeer, error)
	CountPeers(ctx context.Context) (int, error)
	WithTx(tx *sqlx.Tx) PeerRepository
}

// ProbeCounts summarizes the pipeline for the operator.
type ProbeCounts struct {
	Waiting     int `db:"waiting"`
	Established int `db:"established"`
	Abandoned   int `db:"abandoned"`
}

type PeerRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewPeerRepository(db *sqlx.DB) *PeerRepositoryImpl {
	return &PeerRepositoryImpl{db: db}
}

func (r *PeerRepositoryImpl) WithTx(tx *sqlx.Tx) PeerRepository {
	return &PeerRepositoryImpl{db: tx}
}

const probeColumns = `user_id, joined_at, peer_established, established_at,
	current_delay_minutes, current_interval_minutes, next_check_at, welcome_dm_sent`

// InsertProbe records a probe; false means the user already has one.
func (r *PeerRepositoryImpl) InsertProbe(ctx context.Context, p *models.PeerProbe) (bool, error) {
	row := *p
	row.JoinedAt = models.Stamp(p.JoinedAt)
	if p.NextCheckAt.Valid {
		row.NextCheckAt.Time = models.Stamp(p.NextCheckAt.Time)
	}
	query := `INSERT INTO peer_probes (` + probeColumns + `)
	VALUES (:user_id, :joined_at, :peer_established, :established_at,
		:current_delay_minutes, :current_interval_minutes, :next_check_at, :welcome_dm_sent)
	ON CONFLICT (user_id) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, &row)
	if err != nil {
		return false, fmt.Errorf("PeerRepository.InsertProbe %d: %w", p.UserID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *PeerRepositoryImpl) GetProbe(ctx context.Context, userID int64) (*models.PeerProbe, error) {
	var p models.PeerProbe
	query := r.db.Rebind(`SELECT ` + probeColumns + ` FROM peer_probes WHERE user_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("PeerRepository.GetProbe %d: %w", userID, err)
	}
	return &p, nil
}

// ListDueProbes returns open probes whose next check is due.
func (r *PeerRepositoryImpl) ListDueProbes(ctx context.Context, now time.Time, limit int) ([]*models.PeerProbe, error) {
	var list []*models.PeerProbe
	query := r.db.Rebind(`SELECT ` + probeColumns + ` FROM peer_probes
	WHERE peer_established = FALSE AND welcome_dm_sent = FALSE
		AND next_check_at IS NOT NULL AND next_check_at <= ?
	ORDER BY next_check_at, user_id
	LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &list, query, models.Stamp(now), limit); err != nil {
		return nil, fmt.Errorf("PeerRepository.ListDueProbes: %w", err)
	}
	return list, nil
}

// RescheduleProbe stores the next stage; a nil next abandons the probe.
func (r *PeerRepositoryImpl) RescheduleProbe(ctx context.Context, userID int64, delayMin, intervalMin int, next *time.Time) error {
	var nextAt sql.NullTime
	if next != nil {
		nextAt = sql.NullTime{Time: models.Stamp(*next), Valid: true}
	}
	query := r.db.Rebind(`UPDATE peer_probes
	SET current_delay_minutes = ?, current_interval_minutes = ?, next_check_at = ?
	WHERE user_id = ? AND peer_established = FALSE`)
	if _, err := r.db.ExecContext(ctx, query, delayMin, intervalMin, nextAt, userID); err != nil {
		return fmt.Errorf("PeerRepository.RescheduleProbe %d: %w", userID, err)
	}
	return nil
}

// MarkEstablished closes a probe and records the welcome DM as queued.
// false means another pass already did it.
func (r *PeerRepositoryImpl) MarkEstablished(ctx context.Context, userID int64, at time.Time) (bool, error) {
	query := r.db.Rebind(`UPDATE peer_probes
	SET peer_established = TRUE, established_at = ?, welcome_dm_sent = TRUE, next_check_at = NULL
	WHERE user_id = ? AND welcome_dm_sent = FALSE`)
	res, err := r.db.ExecContext(ctx, query, models.Stamp(at), userID)
	if err != nil {
		return false, fmt.Errorf("PeerRepository.MarkEstablished %d: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *PeerRepositoryImpl) ProbeCounts(ctx context.Context) (ProbeCounts, error) {
	var c ProbeCounts
	query := `SELECT
		(SELECT COUNT(*) FROM peer_probes WHERE peer_established = FALSE AND next_check_at IS NOT NULL) AS waiting,
		(SELECT COUNT(*) FROM peer_probes WHERE peer_established = TRUE) AS established,
		(SELECT COUNT(*) FROM peer_probes WHERE peer_established = FALSE AND next_check_at IS NULL) AS abandoned`
	if err := sqlx.GetContext(ctx, r.db, &c, query); err != nil {
		return c, fmt.Errorf("PeerRepository.ProbeCounts: %w", err)
	}
	return c, nil
}

// UpsertPeer caches an access handle seen by the userbot.
func (r *PeerRepositoryImpl) UpsertPeer(ctx context.Context, p *models.UserbotPeer) error {
	row := *p
	row.SeenAt = models.Stamp(p.SeenAt)
	query := `INSERT INTO userbot_peers (user_id, access_hash, username, first_name, seen_at)
	VALUES (:user_id, :access_hash, :username, :first_name, :seen_at)
	ON CONFLICT (user_id) DO UPDATE SET
		access_hash = excluded.access_hash,
		username = excluded.username,
		first_name = excluded.first_name,
		seen_at = excluded.seen_at`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, &row); err != nil {
		return fmt.Errorf("PeerRepository.UpsertPeer %d: %w", p.UserID, err)
	}
	return nil
}

func (r *PeerRepositoryImpl) GetPeer(ctx context.Context, userID int64) (*models.UserbotPeer, error) {
	var p models.UserbotPeer
	query := r.db.Rebind(`SELECT user_id, access_hash, username, first_name, seen_at FROM userbot_peers WHERE user_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("PeerRepository.GetPeer %d: %w", userID, err)
	}
	return &p, nil
}

func (r *PeerRepositoryImpl) CountPeers(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM userbot_peers`); err != nil {
		return 0, fmt.Errorf("PeerRepository.CountPeers: %w", err)
	}
	return n, nil
}
