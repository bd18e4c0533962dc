// internal/delivery/telegram/app/bot/handlers/commands/signal/handler.go
package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
	"signal-desk-bot/pkg/logger"
)

// DialogTTL bounds an abandoned dialog.
const DialogTTL = 30 * time.Minute

const (
	stepAction    = "action"
	stepEntryType = "entry_type"
	stepPair      = "pair"
	stepPrice     = "price"
	stepDest      = "dest"
)

// Dialog is the per-operator state of a signal being composed.
type Dialog struct {
	Step      string `json:"step"`
	Action    string `json:"action,omitempty"`
	EntryType string `json:"entry_type,omitempty"`
	Pair      string `json:"pair,omitempty"`
	Price     string `json:"price,omitempty"`
}

// DialogStore keeps dialog state between updates.
type DialogStore interface {
	LoadDialog(ctx context.Context, userID int64, dest interface{}) (bool, error)
	SaveDialog(ctx context.Context, userID int64, state interface{}, ttl time.Duration) error
	ClearDialog(ctx context.Context, userID int64) error
}

// Tracker composes and registers signals.
type Tracker interface {
	Compose(action trades.Action, entryType trades.EntryType, pair string, entry decimal.Decimal) (trades.Signal, string)
	Register(ctx context.Context, key trades.Key, sig trades.Signal) (*trades.Trade, error)
	RegisterManual(ctx context.Context, key trades.Key, sig trades.Signal) (*trades.Trade, error)
}

// Poster publishes a message into a broadcast chat and returns its id.
type Poster interface {
	Post(ctx context.Context, chatID int64, text string) (int64, error)
}

// Chats are the broadcast targets.
type Chats struct {
	VIP  int64
	Free int64
}

type signalHandler struct {
	*base.BaseHandler
	dialogs DialogStore
	tracker Tracker
	poster  Poster
	chats   Chats
	buttons *buttons.ButtonBuilder
}

// NewHandlers returns the /signal command, its callback and the text-answer handler.
func NewHandlers(dialogs DialogStore, tracker Tracker, poster Poster, chats Chats) []handlers.Handler {
	mk := func(name, command string, typ handlers.HandlerType) handlers.Handler {
		return &signalHandler{
			BaseHandler: &base.BaseHandler{Name: name, Command: command, Type: typ},
			dialogs:     dialogs,
			tracker:     tracker,
			poster:      poster,
			chats:       chats,
			buttons:     buttons.NewButtonBuilder(),
		}
	}
	return []handlers.Handler{
		mk("signal_command_handler", constants.CommandSignal, handlers.TypeCommand),
		mk("signal_callback_handler", constants.CallbackSignal, handlers.TypeCallback),
		mk("signal_text_handler", "text", handlers.TypeMessage),
	}
}

func (h *signalHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	switch h.Type {
	case handlers.TypeCommand:
		return h.begin(ctx, params.UserID)
	case handlers.TypeCallback:
		return h.callback(ctx, params)
	}
	return h.answer(ctx, params)
}

func (h *signalHandler) begin(ctx context.Context, userID int64) (handlers.HandlerResult, error) {
	if err := h.dialogs.SaveDialog(ctx, userID, Dialog{Step: stepAction}, DialogTTL); err != nil {
		return handlers.HandlerResult{}, err
	}
	return handlers.HandlerResult{
		Message: "📝 New signal\n\nDirection?",
		Keyboard: buttons.Keyboard(
			buttons.Row(
				buttons.Button("🟢 Buy", constants.CallbackSignal+":"+constants.SignalBuy),
				buttons.Button("🔴 Sell", constants.CallbackSignal+":"+constants.SignalSell),
			),
			buttons.Row(buttons.Button(constants.ButtonTexts.Cancel, constants.CallbackSignalCancel)),
		),
	}, nil
}

func (h *signalHandler) load(ctx context.Context, userID int64) (*Dialog, error) {
	var d Dialog
	ok, err := h.dialogs.LoadDialog(ctx, userID, &d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (h *signalHandler) callback(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	args := h.CallbackArgs(params.Data)
	if len(args) == 0 {
		return handlers.HandlerResult{}, fmt.Errorf("malformed callback %q", params.Data)
	}
	switch args[0] {
	case "new":
		return h.begin(ctx, params.UserID)
	case "cancel":
		if err := h.dialogs.ClearDialog(ctx, params.UserID); err != nil {
			return handlers.HandlerResult{}, err
		}
		return handlers.HandlerResult{Message: "❌ Signal cancelled.", Edit: true}, nil
	}

	d, err := h.load(ctx, params.UserID)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	if d == nil {
		return handlers.HandlerResult{Message: "⌛ This dialog expired. Start again with /signal.", Edit: true}, nil
	}

	switch {
	case d.Step == stepAction && (args[0] == constants.SignalBuy || args[0] == constants.SignalSell):
		d.Action = args[0]
		d.Step = stepEntryType
		if err := h.dialogs.SaveDialog(ctx, params.UserID, d, DialogTTL); err != nil {
			return handlers.HandlerResult{}, err
		}
		return handlers.HandlerResult{
			Message: fmt.Sprintf("📝 %s\n\nEntry type?", strings.ToUpper(d.Action)),
			Keyboard: buttons.Keyboard(
				buttons.Row(
					buttons.Button("⚡ Execution", constants.CallbackSignal+":"+constants.SignalExecution),
					buttons.Button("⏳ Limit", constants.CallbackSignal+":"+constants.SignalLimit),
				),
				buttons.Row(buttons.Button(constants.ButtonTexts.Cancel, constants.CallbackSignalCancel)),
			),
			Edit: true,
		}, nil

	case d.Step == stepEntryType && (args[0] == constants.SignalExecution || args[0] == constants.SignalLimit):
		d.EntryType = string(trades.EntryExecution)
		if args[0] == constants.SignalLimit {
			d.EntryType = string(trades.EntryLimit)
		}
		d.Step = stepPair
		if err := h.dialogs.SaveDialog(ctx, params.UserID, d, DialogTTL); err != nil {
			return handlers.HandlerResult{}, err
		}
		return handlers.HandlerResult{
			Message:  fmt.Sprintf("📝 %s %s\n\nSend the pair, e.g. EURUSD or XAUUSD.", strings.ToUpper(d.Action), d.EntryType),
			Keyboard: h.buttons.CreateCancelKeyboard(),
			Edit:     true,
		}, nil

	case d.Step == stepDest && len(args) == 2 && args[0] == constants.SignalDest:
		return h.post(ctx, params.UserID, d, args[1])
	}
	return handlers.HandlerResult{Toast: "Not expected at this step"}, nil
}

func (h *signalHandler) answer(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	d, err := h.load(ctx, params.UserID)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	if d == nil {
		return base.Text("Send /help for the command list."), nil
	}
	text := strings.TrimSpace(params.Text)

	switch d.Step {
	case stepPair:
		pair := trades.NormalizePair(text)
		if len(pair) < 6 {
			return handlers.HandlerResult{Message: fmt.Sprintf("⚠️ %q is not a pair. Send e.g. EURUSD.", text), Keyboard: h.buttons.CreateCancelKeyboard()}, nil
		}
		d.Pair = pair
		d.Step = stepPrice
		if err := h.dialogs.SaveDialog(ctx, params.UserID, d, DialogTTL); err != nil {
			return handlers.HandlerResult{}, err
		}
		return handlers.HandlerResult{
			Message:  fmt.Sprintf("📝 %s %s %s\n\nSend the entry price.", strings.ToUpper(d.Action), d.EntryType, pair),
			Keyboard: h.buttons.CreateCancelKeyboard(),
		}, nil

	case stepPrice:
		price, err := decimal.NewFromString(strings.TrimPrefix(strings.ReplaceAll(text, ",", "."), "$"))
		if err != nil || !price.IsPositive() {
			return handlers.HandlerResult{Message: fmt.Sprintf("⚠️ %q is not a price.", text), Keyboard: h.buttons.CreateCancelKeyboard()}, nil
		}
		d.Price = price.String()
		d.Step = stepDest
		if err := h.dialogs.SaveDialog(ctx, params.UserID, d, DialogTTL); err != nil {
			return handlers.HandlerResult{}, err
		}
		_, preview, err := h.compose(d)
		if err != nil {
			return handlers.HandlerResult{}, err
		}
		return handlers.HandlerResult{
			Message: "👀 Preview\n\n" + preview + "\n\nWhere to post?",
			Keyboard: buttons.Keyboard(
				buttons.Row(
					buttons.Button(constants.DestinationTexts[constants.DestVIP], constants.CallbackSignal+":dest:"+constants.DestVIP),
					buttons.Button(constants.DestinationTexts[constants.DestFree], constants.CallbackSignal+":dest:"+constants.DestFree),
				),
				buttons.Row(buttons.Button(constants.DestinationTexts[constants.DestBoth], constants.CallbackSignal+":dest:"+constants.DestBoth)),
				buttons.Row(buttons.Button(constants.DestinationTexts[constants.DestManual], constants.CallbackSignal+":dest:"+constants.DestManual)),
				buttons.Row(buttons.Button(constants.ButtonTexts.Cancel, constants.CallbackSignalCancel)),
			),
		}, nil
	}
	return base.Text("Use the buttons above, or /signal to start over."), nil
}

func (h *signalHandler) compose(d *Dialog) (trades.Signal, string, error) {
	action, ok := trades.ParseAction(d.Action)
	if !ok {
		return trades.Signal{}, "", fmt.Errorf("bad action %q in dialog", d.Action)
	}
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return trades.Signal{}, "", fmt.Errorf("bad price %q in dialog", d.Price)
	}
	sig, text := h.tracker.Compose(action, trades.EntryType(d.EntryType), d.Pair, price)
	return sig, text, nil
}

func (h *signalHandler) post(ctx context.Context, userID int64, d *Dialog, dest string) (handlers.HandlerResult, error) {
	var chats []int64
	manual := false
	switch dest {
	case constants.DestVIP:
		chats = []int64{h.chats.VIP}
	case constants.DestFree:
		chats = []int64{h.chats.Free}
	case constants.DestBoth:
		chats = []int64{h.chats.VIP, h.chats.Free}
	case constants.DestManual:
		chats = []int64{h.chats.VIP, h.chats.Free}
		manual = true
	default:
		return handlers.HandlerResult{Toast: "Unknown destination"}, nil
	}

	sig, text, err := h.compose(d)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	if err := h.dialogs.ClearDialog(ctx, userID); err != nil {
		logger.Warn("⚠️ Clear dialog for %d: %v", userID, err)
	}

	var lines []string
	for _, chatID := range chats {
		msgID, err := h.poster.Post(ctx, chatID, text)
		if err != nil {
			lines = append(lines, fmt.Sprintf("❌ %d: post failed: %v", chatID, err))
			continue
		}
		key := trades.Key{ChatID: chatID, MessageID: msgID}
		var tr *trades.Trade
		if manual {
			tr, err = h.tracker.RegisterManual(ctx, key, sig)
		} else {
			tr, err = h.tracker.Register(ctx, key, sig)
		}
		if err != nil {
			lines = append(lines, fmt.Sprintf("⚠️ %s posted but not tracked: %v", key, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("✅ %s tracked (%s, %s)", key, tr.Status, tr.AssignedAPI))
	}
	if len(lines) == 0 {
		return handlers.HandlerResult{}, errors.New("nothing posted")
	}
	return handlers.HandlerResult{
		Message: fmt.Sprintf("📣 %s %s posted\n\n%s", sig.Pair, strings.ToUpper(d.Action), strings.Join(lines, "\n")),
		Edit:    true,
	}, nil
}
