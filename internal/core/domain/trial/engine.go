// internal/core/domain/trial/engine.go
package trial

import (
	"context"
	"errors"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
	trial_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/trial"
)

// PendingJoinTTL is how long an approved request waits for its join event.
const PendingJoinTTL = 24 * time.Hour

// ExpiryLayout renders expiry times in DMs and the console.
const ExpiryLayout = "Mon 02 Jan 15:04"

// ErrNoTrial is returned by operator actions on a user without a running trial.
var ErrNoTrial = errors.New("no running trial")

// Presence is a user's standing in the VIP room.
type Presence int

const (
	Absent Presence = iota
	Present
)

// Membership performs VIP-room actions through the chat API.
type Membership interface {
	ApproveJoin(ctx context.Context, chatID, userID int64) error
	DeclineJoin(ctx context.Context, chatID, userID int64) error
	KickAndUnban(ctx context.Context, chatID, userID int64) error
	// MemberStatus returns Absent for definitive "left", "kicked" or "not a participant"
	// answers and an error when membership could not be determined.
	MemberStatus(ctx context.Context, chatID, userID int64) (Presence, error)
}

// JoinCache holds the pending-first-join keys and the granted set.
type JoinCache interface {
	AddPendingJoin(ctx context.Context, userID int64, ttl time.Duration) error
	TakePendingJoin(ctx context.Context, userID int64) (bool, error)
	MarkGranted(ctx context.Context, userID int64) error
	ForgetGranted(ctx context.Context, userID int64) error
	WasGranted(ctx context.Context, userID int64) (bool, error)
}

// Notifier receives operator-facing debug lines.
type Notifier interface {
	Notify(text string)
}

// FreeJoinHook runs for every free-chat join.
type FreeJoinHook func(ctx context.Context, userID int64, at time.Time) error

type Config struct {
	VIPChatID  int64
	FreeChatID int64
}

// Engine runs the trial lifecycle: the join gate, expiry, warnings, follow-ups
// and the Monday activation.
type Engine struct {
	cfg        Config
	db         *postgres.Store
	trials     trial_repo.TrialRepository
	queue      dm_queue_repo.DMQueueRepository
	producer   *dmqueue.Producer
	membership Membership
	cache      JoinCache
	notify     Notifier
	clock      calendar.Clock
	freeHooks  []FreeJoinHook
}

func NewEngine(cfg Config, db *postgres.Store, producer *dmqueue.Producer, membership Membership,
	cache JoinCache, notify Notifier, clock calendar.Clock) *Engine {
	return &Engine{
		cfg:        cfg,
		db:         db,
		trials:     trial_repo.NewTrialRepository(db.DB),
		queue:      dm_queue_repo.NewDMQueueRepository(db.DB),
		producer:   producer,
		membership: membership,
		cache:      cache,
		notify:     notify,
		clock:      clock,
	}
}

// OnFreeJoin registers hooks run for free-chat joins, in order.
func (e *Engine) OnFreeJoin(hooks ...FreeJoinHook) {
	e.freeHooks = append(e.freeHooks, hooks...)
}

func formatExpiry(t time.Time) string {
	return calendar.Local(t).Format(ExpiryLayout)
}

func expiryVars(t time.Time) map[string]string {
	return map[string]string{"expiry": formatExpiry(t)}
}
