// internal/core/domain/engagement/engagement.go
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
	engagement_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/engagement"
	"signal-desk-bot/pkg/logger"
)

const (
	// Window is the period after a free-chat join during which reactions count.
	Window = 14 * 24 * time.Hour
	// Threshold is the number of distinct reacted messages that earns the offer.
	Threshold = 5
)

// Service keeps the free-chat join and reaction logs and runs the engagement offer.
type Service struct {
	db         *postgres.Store
	repo       engagement_repo.EngagementRepository
	queue      dm_queue_repo.DMQueueRepository
	producer   *dmqueue.Producer
	freeChatID int64
	clock      calendar.Clock
}

func NewService(db *postgres.Store, producer *dmqueue.Producer, freeChatID int64, clock calendar.Clock) *Service {
	return &Service{
		db:         db,
		repo:       engagement_repo.NewEngagementRepository(db.DB),
		queue:      dm_queue_repo.NewDMQueueRepository(db.DB),
		producer:   producer,
		freeChatID: freeChatID,
		clock:      clock,
	}
}

// RecordJoin stores a user's first free-chat join.
func (s *Service) RecordJoin(ctx context.Context, userID int64, at time.Time) error {
	return s.repo.InsertJoin(ctx, userID, at)
}

// RecordReaction logs a reaction. Reactions outside the free chat are ignored.
func (s *Service) RecordReaction(ctx context.Context, r *models.Reaction) error {
	if r.ChatID != s.freeChatID {
		return nil
	}
	if r.ReactionTime.IsZero() {
		r.ReactionTime = s.clock.Now()
	}
	return s.repo.AddReaction(ctx, r)
}

// OfferTick sends the engagement discount to every user whose window has closed
// with at least Threshold distinct reacted messages. Every join is judged once.
func (s *Service) OfferTick(ctx context.Context) (int, error) {
	now := s.clock.Now()
	candidates, err := s.repo.ListOfferCandidates(ctx, now.Add(-Window))
	if err != nil {
		return 0, fmt.Errorf("Service.OfferTick: %w", err)
	}

	var sent int
	for _, j := range candidates {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		n, err := s.repo.CountReactedMessages(ctx, j.UserID, s.freeChatID, j.JoinedAt, j.JoinedAt.Add(Window))
		if err != nil {
			logger.Warn("⚠️ Counting reactions of %d: %v", j.UserID, err)
			continue
		}
		if n < Threshold {
			if err := s.repo.CloseOffer(ctx, j.UserID); err != nil {
				logger.Warn("⚠️ Closing engagement window of %d: %v", j.UserID, err)
			}
			continue
		}

		var flipped bool
		err = s.db.InTx(ctx, func(tx *sqlx.Tx) error {
			ok, err := s.repo.WithTx(tx).MarkDiscountSent(ctx, j.UserID)
			if err != nil || !ok {
				return err
			}
			flipped = true
			_, err = s.producer.On(s.queue.WithTx(tx)).Enqueue(ctx, j.UserID, templates.DMEngagementDiscount, nil)
			return err
		})
		if err != nil {
			logger.Warn("⚠️ Engagement offer for %d: %v", j.UserID, err)
			continue
		}
		if flipped {
			sent++
			logger.Info("🎁 Engagement discount queued for %d (%d messages)", j.UserID, n)
		}
	}
	return sent, nil
}

// Summary is the free-chat joins of the current week.
type Summary struct {
	WeekStart time.Time
	PerDay    [7]int // Monday first
	Total     int
}

// WeekSummary counts free-chat joins since Monday 00:00 local.
func (s *Service) WeekSummary(ctx context.Context) (*Summary, error) {
	start := calendar.StartOfWeek(s.clock.Now())
	joins, err := s.repo.ListJoinsSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("Service.WeekSummary: %w", err)
	}
	sum := &Summary{WeekStart: start}
	for _, j := range joins {
		day := (int(calendar.Local(j.JoinedAt).Weekday()) + 6) % 7
		sum.PerDay[day]++
		sum.Total++
	}
	return sum, nil
}

// ReactionCount is the size of the reaction log.
func (s *Service) ReactionCount(ctx context.Context) (int, error) {
	return s.repo.CountReactions(ctx)
}
