// internal/delivery/telegram/app/bot/handlers/commands/override/handler.go
package override

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal-desk-bot/internal/core/domain/tracker"
	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

const stepOverride = "override"

// Selection is the operator's pending override, kept in the dialog slot.
type Selection struct {
	Step     string   `json:"step"`
	Selected []string `json:"selected"`
}

func (s *Selection) has(key string) bool {
	for _, k := range s.Selected {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Selection) toggle(key string) bool {
	for i, k := range s.Selected {
		if k == key {
			s.Selected = append(s.Selected[:i], s.Selected[i+1:]...)
			return true
		}
	}
	if len(s.Selected) >= tracker.MaxOverride {
		return false
	}
	s.Selected = append(s.Selected, key)
	return true
}

// DialogStore keeps the selection between button presses.
type DialogStore interface {
	LoadDialog(ctx context.Context, userID int64, dest interface{}) (bool, error)
	SaveDialog(ctx context.Context, userID int64, state interface{}, ttl time.Duration) error
	ClearDialog(ctx context.Context, userID int64) error
}

// Tracker lists and overrides trades.
type Tracker interface {
	Active() []*trades.Trade
	Override(ctx context.Context, keys []trades.Key, outcome tracker.Outcome) ([]tracker.OverrideResult, error)
}

type overrideHandler struct {
	*base.BaseHandler
	dialogs DialogStore
	tracker Tracker
}

// NewHandlers returns /override and its callback
func NewHandlers(dialogs DialogStore, t Tracker) []handlers.Handler {
	return []handlers.Handler{
		&overrideHandler{
			BaseHandler: &base.BaseHandler{Name: "override_command_handler", Command: constants.CommandOverride, Type: handlers.TypeCommand},
			dialogs:     dialogs, tracker: t,
		},
		&overrideHandler{
			BaseHandler: &base.BaseHandler{Name: "override_callback_handler", Command: constants.CallbackOverride, Type: handlers.TypeCallback},
			dialogs:     dialogs, tracker: t,
		},
	}
}

func (h *overrideHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	args := h.CallbackArgs(params.Data)
	if h.Type == handlers.TypeCommand || len(args) == 0 || args[0] == "start" {
		sel := &Selection{Step: stepOverride}
		if err := h.dialogs.SaveDialog(ctx, params.UserID, sel, time.Hour); err != nil {
			return handlers.HandlerResult{}, err
		}
		res := h.list(sel)
		res.Edit = params.Data != ""
		return res, nil
	}

	sel, err := h.load(ctx, params.UserID)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	if sel == nil {
		return handlers.HandlerResult{Message: "⌛ Selection expired. Start again with /override.", Edit: true}, nil
	}

	switch args[0] {
	case "t":
		if len(args) < 2 {
			return handlers.HandlerResult{}, fmt.Errorf("malformed callback %q", params.Data)
		}
		if !sel.toggle(args[1]) {
			return handlers.HandlerResult{Toast: fmt.Sprintf("At most %d trades", tracker.MaxOverride)}, nil
		}
		if err := h.dialogs.SaveDialog(ctx, params.UserID, sel, time.Hour); err != nil {
			return handlers.HandlerResult{}, err
		}
		res := h.list(sel)
		res.Edit = true
		return res, nil

	case "clear":
		sel.Selected = nil
		if err := h.dialogs.SaveDialog(ctx, params.UserID, sel, time.Hour); err != nil {
			return handlers.HandlerResult{}, err
		}
		res := h.list(sel)
		res.Edit = true
		return res, nil

	case "next":
		if len(sel.Selected) == 0 {
			return handlers.HandlerResult{Toast: "Select at least one trade"}, nil
		}
		var rows [][]telegram.InlineKeyboardButton
		for _, o := range tracker.Outcomes {
			rows = append(rows, buttons.Row(buttons.Button(o.Label(), constants.CallbackOverride+":o:"+string(o))))
		}
		rows = append(rows, buttons.Row(buttons.Button(constants.ButtonTexts.Back, constants.CallbackOverride+":back")))
		return handlers.HandlerResult{
			Message:  fmt.Sprintf("✍️ %d trade(s) selected\n\nOutcome?", len(sel.Selected)),
			Keyboard: buttons.Keyboard(rows...),
			Edit:     true,
		}, nil

	case "back":
		res := h.list(sel)
		res.Edit = true
		return res, nil

	case "o":
		if len(args) < 2 {
			return handlers.HandlerResult{}, fmt.Errorf("malformed callback %q", params.Data)
		}
		outcome, ok := tracker.ParseOutcome(args[1])
		if !ok {
			return handlers.HandlerResult{Toast: "Unknown outcome"}, nil
		}
		keys := make([]trades.Key, 0, len(sel.Selected))
		for _, s := range sel.Selected {
			key, err := ParseKey(s)
			if err != nil {
				return handlers.HandlerResult{}, err
			}
			keys = append(keys, key)
		}
		results, err := h.tracker.Override(ctx, keys, outcome)
		if err != nil {
			return base.Text("❌ %v", err), nil
		}
		_ = h.dialogs.ClearDialog(ctx, params.UserID)
		return handlers.HandlerResult{Message: renderResults(outcome, results), Edit: true}, nil
	}
	return handlers.HandlerResult{Toast: "Unknown action"}, nil
}

func (h *overrideHandler) load(ctx context.Context, userID int64) (*Selection, error) {
	var sel Selection
	ok, err := h.dialogs.LoadDialog(ctx, userID, &sel)
	if err != nil {
		return nil, err
	}
	if !ok || sel.Step != stepOverride {
		return nil, nil
	}
	return &sel, nil
}

func (h *overrideHandler) list(sel *Selection) handlers.HandlerResult {
	active := h.tracker.Active()
	if len(active) == 0 {
		return handlers.HandlerResult{Message: "📭 No active trades to override."}
	}
	var rows [][]telegram.InlineKeyboardButton
	for _, tr := range active {
		mark := "⬜"
		if sel.has(tr.Key.String()) {
			mark = "✅"
		}
		label := fmt.Sprintf("%s %s %s %s", mark, tr.Pair, tr.Action, tr.Key)
		if len(tr.TPHits) > 0 {
			label += " [" + tr.TPHits.String() + "]"
		}
		rows = append(rows, buttons.Row(buttons.Button(label, constants.CallbackOverride+":t:"+tr.Key.String())))
	}
	rows = append(rows, buttons.Row(
		buttons.Button(constants.ButtonTexts.Clear, constants.CallbackOverrideClear),
		buttons.Button(constants.ButtonTexts.Next, constants.CallbackOverrideNext),
	))
	return handlers.HandlerResult{
		Message:  fmt.Sprintf("✍️ Select up to %d trades (%d selected)", tracker.MaxOverride, len(sel.Selected)),
		Keyboard: buttons.Keyboard(rows...),
	}
}

// ParseKey reads the "<chat>_<message>" form of trades.Key.
func ParseKey(s string) (trades.Key, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 {
		return trades.Key{}, fmt.Errorf("bad trade key %q", s)
	}
	chat, err1 := strconv.ParseInt(s[:i], 10, 64)
	msg, err2 := strconv.ParseInt(s[i+1:], 10, 64)
	if err1 != nil || err2 != nil {
		return trades.Key{}, fmt.Errorf("bad trade key %q", s)
	}
	return trades.Key{ChatID: chat, MessageID: msg}, nil
}

func renderResults(outcome tracker.Outcome, results []tracker.OverrideResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✍️ %s\n\n", outcome.Label())
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "❌ %s %s: %v\n", r.Key, r.Pair, r.Err)
			continue
		}
		applied := make([]string, len(r.Applied))
		for i, l := range r.Applied {
			applied[i] = string(l)
		}
		status := "updated"
		if r.Archived {
			status = "archived"
		}
		if len(applied) > 0 {
			fmt.Fprintf(&b, "✅ %s %s: %s, %s\n", r.Key, r.Pair, strings.Join(applied, ","), status)
		} else {
			fmt.Fprintf(&b, "✅ %s %s: %s\n", r.Key, r.Pair, status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
