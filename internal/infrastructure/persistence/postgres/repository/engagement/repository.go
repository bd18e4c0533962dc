// internal/infrastructure/persistence/postgres/repository/engagement/repository.go
package engagement_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// EngagementRepository stores free-chat joins and the reaction log.
type EngagementRepository interface {
	InsertJoin(ctx context.Context, userID int64, at time.Time) error
	ListJoinsSince(ctx context.Context, since time.Time) ([]*models.FreeChatJoin, error)
	ListOfferCandidates(ctx context.Context, joinedBefore time.Time) ([]*models.FreeChatJoin, error)
	MarkDiscountSent(ctx context.Context, userID int64) (bool, error)
	CloseOffer(ctx context.Context, userID int64) error
	AddReaction(ctx context.Context, r *models.Reaction) error
	CountReactedMessages(ctx context.Context, userID, chatID int64, from, to time.Time) (int, error)
	CountReactions(ctx context.Context) (int, error)
	WithTx(tx *sqlx.Tx) EngagementRepository
}

type EngagementRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewEngagementRepository(db *sqlx.DB) *EngagementRepositoryImpl {
	return &EngagementRepositoryImpl{db: db}
}

func (r *EngagementRepositoryImpl) WithTx(tx *sqlx.Tx) EngagementRepository {
	return &EngagementRepositoryImpl{db: tx}
}

// InsertJoin records the first free-chat join of a user.
func (r *EngagementRepositoryImpl) InsertJoin(ctx context.Context, userID int64, at time.Time) error {
	query := r.db.Rebind(`INSERT INTO free_chat_joins (user_id, joined_at, discount_sent)
	VALUES (?, ?, FALSE) ON CONFLICT (user_id) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, query, userID, models.Stamp(at)); err != nil {
		return fmt.Errorf("EngagementRepository.InsertJoin %d: %w", userID, err)
	}
	return nil
}

func (r *EngagementRepositoryImpl) ListJoinsSince(ctx context.Context, since time.Time) ([]*models.FreeChatJoin, error) {
	var list []*models.FreeChatJoin
	query := r.db.Rebind(`SELECT user_id, joined_at, discount_sent, offer_closed FROM free_chat_joins
	WHERE joined_at >= ? ORDER BY joined_at`)
	if err := sqlx.SelectContext(ctx, r.db, &list, query, models.Stamp(since)); err != nil {
		return nil, fmt.Errorf("EngagementRepository.ListJoinsSince: %w", err)
	}
	return list, nil
}

// ListOfferCandidates returns joins older than the window that were never judged.
func (r *EngagementRepositoryImpl) ListOfferCandidates(ctx context.Context, joinedBefore time.Time) ([]*models.FreeChatJoin, error) {
	var list []*models.FreeChatJoin
	query := r.db.Rebind(`SELECT user_id, joined_at, discount_sent, offer_closed FROM free_chat_joins
	WHERE offer_closed = FALSE AND discount_sent = FALSE AND joined_at <= ? ORDER BY joined_at`)
	if err := sqlx.SelectContext(ctx, r.db, &list, query, models.Stamp(joinedBefore)); err != nil {
		return nil, fmt.Errorf("EngagementRepository.ListOfferCandidates: %w", err)
	}
	return list, nil
}

func (r *EngagementRepositoryImpl) MarkDiscountSent(ctx context.Context, userID int64) (bool, error) {
	query := r.db.Rebind(`UPDATE free_chat_joins SET discount_sent = TRUE, offer_closed = TRUE
	WHERE user_id = ? AND discount_sent = FALSE`)
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("EngagementRepository.MarkDiscountSent %d: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CloseOffer retires a join that missed the threshold; its count can no longer change.
func (r *EngagementRepositoryImpl) CloseOffer(ctx context.Context, userID int64) error {
	query := r.db.Rebind(`UPDATE free_chat_joins SET offer_closed = TRUE WHERE user_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("EngagementRepository.CloseOffer %d: %w", userID, err)
	}
	return nil
}

// AddReaction appends to the log; repeats of the same emoji are ignored.
func (r *EngagementRepositoryImpl) AddReaction(ctx context.Context, reaction *models.Reaction) error {
	row := *reaction
	row.ReactionTime = models.Stamp(reaction.ReactionTime)
	query := `INSERT INTO reactions (user_id, chat_id, message_id, emoji, reaction_time)
	VALUES (:user_id, :chat_id, :message_id, :emoji, :reaction_time)
	ON CONFLICT (user_id, chat_id, message_id, emoji) DO NOTHING`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, &row); err != nil {
		return fmt.Errorf("EngagementRepository.AddReaction %d: %w", reaction.UserID, err)
	}
	return nil
}

// CountReactedMessages counts distinct messages of chatID the user reacted to in [from, to].
func (r *EngagementRepositoryImpl) CountReactedMessages(ctx context.Context, userID, chatID int64, from, to time.Time) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(DISTINCT message_id) FROM reactions
	WHERE user_id = ? AND chat_id = ? AND reaction_time >= ? AND reaction_time <= ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, query, userID, chatID, models.Stamp(from), models.Stamp(to)); err != nil {
		return 0, fmt.Errorf("EngagementRepository.CountReactedMessages %d: %w", userID, err)
	}
	return n, nil
}

func (r *EngagementRepositoryImpl) CountReactions(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM reactions`); err != nil {
		return 0, fmt.Errorf("EngagementRepository.CountReactions: %w", err)
	}
	return n, nil
}
