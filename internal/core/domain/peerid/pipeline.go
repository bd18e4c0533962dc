// internal/core/domain/peerid/pipeline.go
package peerid

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
	peer_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/peer"
	"signal-desk-bot/pkg/logger"
)

// batchSize bounds one pass.
const batchSize = 50

// Resolver reports whether the userbot can address a user.
type Resolver interface {
	CanAddress(ctx context.Context, userID int64) (bool, error)
}

// PeerTableResolver resolves against the handles the userbot cached in userbot_peers.
type PeerTableResolver struct {
	repo peer_repo.PeerRepository
}

func NewPeerTableResolver(repo peer_repo.PeerRepository) *PeerTableResolver {
	return &PeerTableResolver{repo: repo}
}

func (r *PeerTableResolver) CanAddress(ctx context.Context, userID int64) (bool, error) {
	peer, err := r.repo.GetPeer(ctx, userID)
	if err != nil {
		return false, err
	}
	return peer != nil, nil
}

// Pipeline gates welcome DMs on the userbot being able to reach the user.
type Pipeline struct {
	db       *postgres.Store
	probes   peer_repo.PeerRepository
	queue    dm_queue_repo.DMQueueRepository
	producer *dmqueue.Producer
	resolver Resolver
	clock    calendar.Clock
}

func NewPipeline(db *postgres.Store, producer *dmqueue.Producer, resolver Resolver, clock calendar.Clock) *Pipeline {
	return &Pipeline{
		db:       db,
		probes:   peer_repo.NewPeerRepository(db.DB),
		queue:    dm_queue_repo.NewDMQueueRepository(db.DB),
		producer: producer,
		resolver: resolver,
		clock:    clock,
	}
}

// Enroll starts probing a free-chat joiner. A second join of the same user is ignored.
func (p *Pipeline) Enroll(ctx context.Context, userID int64, joinedAt time.Time) error {
	inserted, err := p.probes.InsertProbe(ctx, NewProbe(userID, joinedAt))
	if err != nil {
		return fmt.Errorf("Pipeline.Enroll: %w", err)
	}
	if inserted {
		logger.Debug("🔎 Peer probe started for %d", userID)
	}
	return nil
}

// TickResult counts what one pass did.
type TickResult struct {
	Checked     int
	Established int
	Abandoned   int
}

// Tick checks every due probe once.
func (p *Pipeline) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	now := p.clock.Now()
	due, err := p.probes.ListDueProbes(ctx, now, batchSize)
	if err != nil {
		return res, fmt.Errorf("Pipeline.Tick: %w", err)
	}

	for _, probe := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++

		ok, err := p.resolver.CanAddress(ctx, probe.UserID)
		if err != nil {
			logger.Debug("🔎 Resolving %d failed: %v", probe.UserID, err)
		}
		if ok {
			if established, err := p.establish(ctx, probe.UserID, now); err != nil {
				logger.Warn("⚠️ Establishing peer %d: %v", probe.UserID, err)
			} else if established {
				res.Established++
			}
			continue
		}

		delay, interval, next := Advance(probe, now)
		if err := p.probes.RescheduleProbe(ctx, probe.UserID, delay, interval, next); err != nil {
			logger.Warn("⚠️ Rescheduling probe %d: %v", probe.UserID, err)
			continue
		}
		if next == nil {
			res.Abandoned++
			logger.Info("🔎 Peer probe for %d abandoned after 24h", probe.UserID)
		}
	}
	return res, nil
}

// establish marks the probe and queues the welcome DM in one transaction.
func (p *Pipeline) establish(ctx context.Context, userID int64, now time.Time) (bool, error) {
	var established bool
	err := p.db.InTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := p.probes.WithTx(tx).MarkEstablished(ctx, userID, now)
		if err != nil || !ok {
			return err
		}
		if _, err := p.producer.On(p.queue.WithTx(tx)).Enqueue(ctx, userID, templates.DMWelcome, nil); err != nil {
			return err
		}
		established = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("Pipeline.establish %d: %w", userID, err)
	}
	if established {
		logger.Info("🤝 Peer established for %d, welcome DM queued", userID)
	}
	return established, nil
}

// Status is the operator view of one user.
type Status struct {
	Probe *models.PeerProbe
	Peer  *models.UserbotPeer
}

func (p *Pipeline) Status(ctx context.Context, userID int64) (*Status, error) {
	probe, err := p.probes.GetProbe(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Pipeline.Status: %w", err)
	}
	peer, err := p.probes.GetPeer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Pipeline.Status: %w", err)
	}
	return &Status{Probe: probe, Peer: peer}, nil
}

func (p *Pipeline) Counts(ctx context.Context) (peer_repo.ProbeCounts, error) {
	return p.probes.ProbeCounts(ctx)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
