// internal/delivery/telegram/app/bot/handlers/commands/queue/handler.go
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

// Health reads the queue counters and the userbot heartbeat.
type Health interface {
	Check(ctx context.Context) (*dmqueue.Health, error)
}

type queueHandler struct {
	*base.BaseHandler
	health Health
	clock  calendar.Clock
}

// NewHandler creates /queue
func NewHandler(health Health, clock calendar.Clock) handlers.Handler {
	return &queueHandler{
		BaseHandler: &base.BaseHandler{Name: "queue_handler", Command: constants.CommandQueue, Type: handlers.TypeCommand},
		health:      health,
		clock:       clock,
	}
}

// NewCallbackHandler creates the menu button variant
func NewCallbackHandler(health Health, clock calendar.Clock) handlers.Handler {
	return &queueHandler{
		BaseHandler: &base.BaseHandler{Name: "queue_callback", Command: constants.CallbackQueue, Type: handlers.TypeCallback},
		health:      health,
		clock:       clock,
	}
}

func (h *queueHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	hl, err := h.health.Check(ctx)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	return handlers.HandlerResult{
		Message:  Render(hl, h.clock.Now()),
		Keyboard: buttons.NewButtonBuilder().CreateRefreshKeyboard(constants.CallbackQueue),
		Edit:     params.Data != "",
	}, nil
}

// Render formats queue health for the operator.
func Render(h *dmqueue.Health, now time.Time) string {
	var b strings.Builder
	b.WriteString("📬 DM queue\n")
	fmt.Fprintf(&b, "Pending: %d\nSent: %d\nFailed: %d\n", h.Pending, h.Sent, h.Failed)
	if h.OldestPending != nil {
		fmt.Fprintf(&b, "Oldest pending: %s (%s ago)\n",
			calendar.Local(*h.OldestPending).Format("Mon 15:04"), now.Sub(*h.OldestPending).Round(time.Minute))
	}

	b.WriteString("\n🤖 Userbot\n")
	if h.SessionPresent {
		b.WriteString("Session: ✅\n")
	} else {
		b.WriteString("Session: ❌ missing\n")
	}
	if h.LastHeartbeat != nil {
		fmt.Fprintf(&b, "Last heartbeat: %s (%s ago)\n",
			calendar.Local(*h.LastHeartbeat).Format("Mon 15:04"), now.Sub(*h.LastHeartbeat).Round(time.Second))
	} else {
		b.WriteString("Last heartbeat: never\n")
	}
	if h.Stalled(now) {
		fmt.Fprintf(&b, "\n🚨 Delivery stalled: %s", h.Problem(now))
	}
	return strings.TrimRight(b.String(), "\n")
}
