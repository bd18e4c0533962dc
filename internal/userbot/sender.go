// internal/userbot/sender.go
package userbot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

const (
	// DrainBatch is how many pending rows one drain looks at.
	DrainBatch = 10
	// PeerWait is how long a row waits for discovery to find its recipient.
	PeerWait = 24 * time.Hour
	// PeerRetry spaces the lookups of a row whose recipient is still unknown.
	PeerRetry = 30 * time.Minute

	minPause = 5 * time.Second
	maxPause = 15 * time.Second
)

// Queue is the userbot side of userbot_dm_queue.
type Queue interface {
	FetchPending(ctx context.Context, now time.Time, limit int) ([]*models.DMQueueItem, error)
	Postpone(ctx context.Context, id int64, until time.Time) error
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// PeerLookup finds the access handle discovery cached for a user.
type PeerLookup interface {
	GetPeer(ctx context.Context, userID int64) (*models.UserbotPeer, error)
}

// Messenger delivers one direct message.
type Messenger interface {
	SendText(ctx context.Context, peer *models.UserbotPeer, text string) error
}

// DrainResult counts what one drain did.
type DrainResult struct {
	Sent     int
	Failed   int
	Deferred int
	Skipped  int
}

func (r DrainResult) String() string {
	return fmt.Sprintf("sent %d, failed %d, deferred %d, skipped %d", r.Sent, r.Failed, r.Deferred, r.Skipped)
}

// Sender drains the DM queue, one message at a time with a random pause in between.
type Sender struct {
	queue     Queue
	peers     PeerLookup
	messenger Messenger
	settings  SettingStore
	clock     calendar.Clock

	pause func() time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSender(queue Queue, peers PeerLookup, messenger Messenger, settings SettingStore, clock calendar.Clock) *Sender {
	return &Sender{
		queue:     queue,
		peers:     peers,
		messenger: messenger,
		settings:  settings,
		clock:     clock,
		pause:     randomPause,
		sleep:     sleepCtx,
	}
}

func randomPause() time.Duration {
	return minPause + time.Duration(rand.Int63n(int64(maxPause-minPause)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Drain delivers up to DrainBatch pending messages and writes the heartbeat.
func (s *Sender) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	items, err := s.queue.FetchPending(ctx, s.clock.Now(), DrainBatch)
	if err != nil {
		return res, fmt.Errorf("Sender.Drain: %w", err)
	}
	if err := s.heartbeat(ctx); err != nil {
		logger.Warn("⚠️ [Userbot] Heartbeat not written: %v", err)
	}
	if len(items) == 0 {
		return res, nil
	}

	for _, item := range items {
		if !dmqueue.Eligible(item, s.clock.Now()) {
			s.postpone(ctx, item, item.CreatedAt.Add(dmqueue.WelcomeMinAge))
			res.Skipped++
			continue
		}
		if err := s.sleep(ctx, s.pause()); err != nil {
			return res, err
		}
		switch outcome := s.deliver(ctx, item); outcome {
		case "sent":
			res.Sent++
		case "failed":
			res.Failed++
		default:
			res.Deferred++
		}
	}

	logger.Info("📨 [Userbot] Drain: %s", res)
	return res, nil
}

// deliver sends one row and records the outcome: sent, failed or deferred.
func (s *Sender) deliver(ctx context.Context, item *models.DMQueueItem) string {
	outcome := s.attempt(ctx, item)
	metrics.DMDelivered.WithLabelValues(outcome).Inc()
	return outcome
}

func (s *Sender) attempt(ctx context.Context, item *models.DMQueueItem) string {
	peer, err := s.peers.GetPeer(ctx, item.UserID)
	if err != nil {
		logger.Warn("⚠️ [Userbot] Peer lookup for %d failed: %v", item.UserID, err)
		return "deferred"
	}
	if peer == nil {
		if s.clock.Now().Sub(item.CreatedAt) < PeerWait {
			logger.Debug("🔍 [Userbot] No access handle for %d yet, %q waits for discovery", item.UserID, item.Label)
			s.postpone(ctx, item, s.clock.Now().Add(PeerRetry))
			return "deferred"
		}
		return s.fail(ctx, item, "no access handle after "+PeerWait.String())
	}

	err = s.messenger.SendText(ctx, peer, item.MessageText)
	var flood *FloodWaitError
	if errors.As(err, &flood) {
		logger.Warn("⏳ [Userbot] Flood wait %s before %q to %d", flood.Wait, item.Label, item.UserID)
		if err := s.sleep(ctx, flood.Wait); err != nil {
			return "deferred"
		}
		err = s.messenger.SendText(ctx, peer, item.MessageText)
	}

	switch {
	case err == nil:
		if err := s.queue.MarkSent(ctx, item.ID, s.clock.Now()); err != nil {
			logger.Error("❌ [Userbot] DM %d sent but not marked: %v", item.ID, err)
		}
		logger.Info("✅ [Userbot] %q delivered to %d", item.Label, item.UserID)
		return "sent"
	case errors.Is(err, ErrUndeliverable):
		return s.fail(ctx, item, err.Error())
	default:
		logger.Warn("⚠️ [Userbot] %q to %d stays pending: %v", item.Label, item.UserID, err)
		return "deferred"
	}
}

func (s *Sender) fail(ctx context.Context, item *models.DMQueueItem, reason string) string {
	if err := s.queue.MarkFailed(ctx, item.ID, reason); err != nil {
		logger.Error("❌ [Userbot] DM %d not marked failed: %v", item.ID, err)
		return "deferred"
	}
	logger.Warn("🚫 [Userbot] %q to %d failed: %s", item.Label, item.UserID, reason)
	return "failed"
}

// postpone keeps a row out of the next batches so newer rows are not starved behind it.
func (s *Sender) postpone(ctx context.Context, item *models.DMQueueItem, until time.Time) {
	if err := s.queue.Postpone(ctx, item.ID, until); err != nil {
		logger.Warn("⚠️ [Userbot] DM %d not postponed: %v", item.ID, err)
	}
}

func (s *Sender) heartbeat(ctx context.Context) error {
	now := s.clock.Now()
	return s.settings.Set(ctx, models.SettingUserbotHeartbeat, now.UTC().Format(time.RFC3339), now)
}
