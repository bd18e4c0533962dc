// internal/delivery/telegram/app/bot/handlers/commands/active/handler.go
package active

import (
	"context"
	"fmt"
	"strings"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/tracker"
	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

// Positions prices the mirrored trades.
type Positions interface {
	Positions(ctx context.Context) []tracker.PositionRow
}

// ChatNames labels trade chats, e.g. {vip: "VIP", free: "Free"}.
type ChatNames map[int64]string

type activeHandler struct {
	*base.BaseHandler
	positions Positions
	names     ChatNames
}

// NewHandler creates /active
func NewHandler(positions Positions, names ChatNames) handlers.Handler {
	return &activeHandler{
		BaseHandler: &base.BaseHandler{Name: "active_handler", Command: constants.CommandActive, Type: handlers.TypeCommand},
		positions:   positions,
		names:       names,
	}
}

// NewCallbackHandler creates the menu button variant
func NewCallbackHandler(positions Positions, names ChatNames) handlers.Handler {
	return &activeHandler{
		BaseHandler: &base.BaseHandler{Name: "active_callback", Command: constants.CallbackActive, Type: handlers.TypeCallback},
		positions:   positions,
		names:       names,
	}
}

func (h *activeHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	rows := h.positions.Positions(ctx)
	return handlers.HandlerResult{
		Message:  Render(rows, h.names),
		Keyboard: buttons.NewButtonBuilder().CreateRefreshKeyboard(constants.CallbackActive),
		Edit:     params.Data != "",
	}, nil
}

// Render formats the active list with the legend.
func Render(rows []tracker.PositionRow, names ChatNames) string {
	if len(rows) == 0 {
		return "📭 No active trades."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📈 Active trades: %d\n\n", len(rows))
	for _, r := range rows {
		tr := r.Trade
		fmt.Fprintf(&b, "%s %s %s %s @ %s", r.Position, tr.Pair, tr.Action, tr.EntryType, r.Spec.FormatPrice(tr.Reference()))
		if r.HasPrice {
			fmt.Fprintf(&b, " → %s", r.Spec.FormatPrice(r.Price))
		}
		if len(tr.TPHits) > 0 {
			fmt.Fprintf(&b, " [%s]", tr.TPHits)
		}
		if tr.BreakevenActive {
			b.WriteString(" BE")
		}
		fmt.Fprintf(&b, "\n   %s · %s · %s\n", names.label(tr.Key), tr.AssignedAPI, calendar.Local(tr.CreatedAt).Format("Mon 02 Jan 15:04"))
	}
	b.WriteString("\n")
	b.WriteString(trades.PositionLegend)
	return b.String()
}

func (n ChatNames) label(key trades.Key) string {
	if name, ok := n[key.ChatID]; ok {
		return fmt.Sprintf("%s #%d", name, key.MessageID)
	}
	return key.String()
}
