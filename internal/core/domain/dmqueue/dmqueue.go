// internal/core/domain/dmqueue/dmqueue.go
package dmqueue

import (
	"context"
	"fmt"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// Queue labels. The userbot sender keys its welcome delay on LabelWelcome.
const (
	LabelWelcome            = "Welcome DM"
	LabelTrialStarted       = "Trial Started"
	LabelWarning24h         = "24h Warning"
	LabelWarning3h          = "3h Warning"
	LabelTrialExpired       = "Trial Expired"
	LabelFollowup3          = "Follow-up Day 3"
	LabelFollowup7          = "Follow-up Day 7"
	LabelFollowup14         = "Follow-up Day 14"
	LabelMondayActivation   = "Monday Activation"
	LabelTrialRejected      = "Trial Rejected"
	LabelEngagementDiscount = "Engagement Discount"
)

// WelcomeMinAge is how long a welcome DM waits in the queue before it may be sent.
const WelcomeMinAge = 10 * time.Minute

var labels = map[string]string{
	templates.DMWelcome:             LabelWelcome,
	templates.DMTrialStarted:        LabelTrialStarted,
	templates.DMTrialStartedWeekend: LabelTrialStarted,
	templates.DMWarning24h:          LabelWarning24h,
	templates.DMWarning3h:           LabelWarning3h,
	templates.DMTrialExpired:        LabelTrialExpired,
	templates.DMFollowup3:           LabelFollowup3,
	templates.DMFollowup7:           LabelFollowup7,
	templates.DMFollowup14:          LabelFollowup14,
	templates.DMMondayActivation:    LabelMondayActivation,
	templates.DMTrialRejected:       LabelTrialRejected,
	templates.DMEngagementDiscount:  LabelEngagementDiscount,
}

// LabelFor maps a template key to its queue label.
func LabelFor(templateKey string) string {
	if l, ok := labels[templateKey]; ok {
		return l
	}
	return templateKey
}

// FollowupTemplate returns the template key of a follow-up day (3, 7 or 14).
func FollowupTemplate(day int) string {
	switch day {
	case 3:
		return templates.DMFollowup3
	case 7:
		return templates.DMFollowup7
	case 14:
		return templates.DMFollowup14
	}
	return ""
}

// Eligible reports whether a pending item may be delivered at now.
func Eligible(item *models.DMQueueItem, now time.Time) bool {
	if item.Label == LabelWelcome {
		return !item.CreatedAt.Add(WelcomeMinAge).After(now)
	}
	return true
}

// Store is the write side of the queue table.
type Store interface {
	Enqueue(ctx context.Context, userID int64, text, label string, at time.Time) (int64, error)
}

// Producer renders templates and appends them to the queue.
type Producer struct {
	store Store
	texts *templates.Set
	clock calendar.Clock
}

func NewProducer(store Store, texts *templates.Set, clock calendar.Clock) *Producer {
	return &Producer{store: store, texts: texts, clock: clock}
}

// On returns a producer writing through another store, e.g. a transaction-bound repository.
func (p *Producer) On(store Store) *Producer {
	c := *p
	c.store = store
	return &c
}

// Enqueue renders the template key with vars and queues it for userID.
func (p *Producer) Enqueue(ctx context.Context, userID int64, key string, vars map[string]string) (int64, error) {
	text := p.texts.DM(key, vars)
	if text == "" {
		return 0, fmt.Errorf("Producer.Enqueue: template %q is empty", key)
	}
	label := LabelFor(key)
	id, err := p.store.Enqueue(ctx, userID, text, label, p.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("Producer.Enqueue: %w", err)
	}
	metrics.DMEnqueued.WithLabelValues(label).Inc()
	logger.Debug("📨 Queued %q for %d (#%d)", label, userID, id)
	return id, nil
}
