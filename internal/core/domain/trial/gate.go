// internal/core/domain/trial/gate.go
package trial

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// JoinDecision is the outcome of a VIP join request.
type JoinDecision string

const (
	Approved JoinDecision = "approved"
	Rejected JoinDecision = "rejected"
	Deferred JoinDecision = "deferred"
)

// HandleJoinRequest gates a VIP join request on the user's trial history.
func (e *Engine) HandleJoinRequest(ctx context.Context, chatID, userID int64) (JoinDecision, error) {
	if chatID != e.cfg.VIPChatID {
		return Deferred, nil
	}

	history, err := e.trials.GetHistory(ctx, userID)
	if err != nil {
		logger.Warn("⚠️ Trial history read failed for %d: %v", userID, err)
		granted, gerr := e.cache.WasGranted(ctx, userID)
		if gerr != nil || !granted {
			// cannot prove a prior trial; the request stays open for a later retry by the user
			logger.Warn("⚠️ Join request from %d left pending", userID)
			return Deferred, nil
		}
		if err := e.membership.DeclineJoin(ctx, chatID, userID); err != nil {
			return Deferred, fmt.Errorf("Engine.HandleJoinRequest: %w", err)
		}
		metrics.Trials.WithLabelValues("rejected").Inc()
		logger.Info("🚫 Join request from %d declined from the granted set", userID)
		return Rejected, nil
	}

	if history != nil {
		if err := e.membership.DeclineJoin(ctx, chatID, userID); err != nil {
			return Deferred, fmt.Errorf("Engine.HandleJoinRequest: %w", err)
		}
		if _, err := e.producer.Enqueue(ctx, userID, templates.DMTrialRejected, nil); err != nil {
			logger.Warn("⚠️ Rejection DM for %d: %v", userID, err)
		}
		metrics.Trials.WithLabelValues("rejected").Inc()
		logger.Info("🚫 Join request from %d declined: trial already used", userID)
		e.notify.Notify(fmt.Sprintf("🚫 Trial reuse declined for %d", userID))
		return Rejected, nil
	}

	if err := e.cache.AddPendingJoin(ctx, userID, PendingJoinTTL); err != nil {
		return Deferred, fmt.Errorf("Engine.HandleJoinRequest: %w", err)
	}
	if err := e.membership.ApproveJoin(ctx, chatID, userID); err != nil {
		return Deferred, fmt.Errorf("Engine.HandleJoinRequest: %w", err)
	}
	logger.Info("✅ Join request from %d approved", userID)
	return Approved, nil
}

// HandleJoin reacts to a member joining one of the two chats.
func (e *Engine) HandleJoin(ctx context.Context, chatID, userID int64) error {
	now := e.clock.Now()
	switch chatID {
	case e.cfg.FreeChatID:
		// No DM here: the welcome is queued by the peer-id pipeline once the user is reachable.
		for _, hook := range e.freeHooks {
			if err := hook(ctx, userID, now); err != nil {
				logger.Warn("⚠️ Free-chat join hook for %d: %v", userID, err)
			}
		}
		return nil
	case e.cfg.VIPChatID:
	default:
		return nil
	}

	pending, err := e.cache.TakePendingJoin(ctx, userID)
	if err != nil {
		return fmt.Errorf("Engine.HandleJoin: %w", err)
	}
	if !pending {
		logger.Debug("👤 %d joined VIP as a paying member", userID)
		return nil
	}
	member, err := e.StartTrial(ctx, userID, now)
	if err != nil {
		return err
	}
	e.notify.Notify(fmt.Sprintf("🎟 Trial started for %d, expires %s", userID, formatExpiry(member.ExpiryTime)))
	return nil
}

// StartTrial writes the membership, the history row and the start DM in one transaction.
func (e *Engine) StartTrial(ctx context.Context, userID int64, joined time.Time) (*models.TrialMember, error) {
	member := &models.TrialMember{
		UserID:         userID,
		ChatID:         e.cfg.VIPChatID,
		JoinedAt:       joined,
		ExpiryTime:     calendar.TrialExpiry(joined),
		WeekendDelayed: calendar.IsTrialWeekend(joined),
	}
	key := templates.DMTrialStarted
	if member.WeekendDelayed {
		key = templates.DMTrialStartedWeekend
	}

	err := e.db.InTx(ctx, func(tx *sqlx.Tx) error {
		trials := e.trials.WithTx(tx)
		if err := trials.InsertMember(ctx, member); err != nil {
			return err
		}
		if err := trials.RecordGrant(ctx, userID, joined); err != nil {
			return err
		}
		_, err := e.producer.On(e.queue.WithTx(tx)).Enqueue(ctx, userID, key, expiryVars(member.ExpiryTime))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Engine.StartTrial %d: %w", userID, err)
	}
	if err := e.cache.MarkGranted(ctx, userID); err != nil {
		logger.Warn("⚠️ Granted set update for %d: %v", userID, err)
	}
	metrics.Trials.WithLabelValues("granted").Inc()
	logger.Info("🎟 Trial for %d runs until %s (weekend=%v)", userID, formatExpiry(member.ExpiryTime), member.WeekendDelayed)
	return member, nil
}
