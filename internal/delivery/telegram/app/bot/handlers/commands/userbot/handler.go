// internal/delivery/telegram/app/bot/handlers/commands/userbot/handler.go
package userbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/queue"
)

// Links mints one-time login links.
type Links interface {
	Mint(ctx context.Context, ownerID int64) (string, error)
	Link(baseURL, token string) string
	TTL() time.Duration
}

type userbotHandler struct {
	*base.BaseHandler
	links   Links
	baseURL string
	health  queue.Health
	clock   calendar.Clock
}

// NewHandler creates /userbot setup|status. links may be nil when the login page
// is not configured.
func NewHandler(links Links, baseURL string, health queue.Health, clock calendar.Clock) handlers.Handler {
	return &userbotHandler{
		BaseHandler: &base.BaseHandler{Name: "userbot_handler", Command: constants.CommandUserbot, Type: handlers.TypeCommand},
		links:       links,
		baseURL:     baseURL,
		health:      health,
		clock:       clock,
	}
}

func (h *userbotHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	switch strings.ToLower(strings.TrimSpace(params.Args)) {
	case "setup":
		return h.setup(ctx, params.UserID)
	case "status", "":
		hl, err := h.health.Check(ctx)
		if err != nil {
			return handlers.HandlerResult{}, err
		}
		return base.Message(queue.Render(hl, h.clock.Now())), nil
	default:
		return base.Text("Usage: /userbot setup | status"), nil
	}
}

func (h *userbotHandler) setup(ctx context.Context, ownerID int64) (handlers.HandlerResult, error) {
	if h.links == nil || h.baseURL == "" {
		return base.Text("❌ Login page is not configured (LOGIN_BASE_URL, LOGIN_SECRET)."), nil
	}
	token, err := h.links.Mint(ctx, ownerID)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	var b strings.Builder
	b.WriteString("🔑 Userbot login\n\n")
	fmt.Fprintf(&b, "Open this link within %s and sign in with the userbot account:\n", h.links.TTL())
	b.WriteString(h.links.Link(h.baseURL, token))
	b.WriteString("\n\nThe link works once; a new /userbot setup invalidates it.")
	return base.Message(b.String()), nil
}
