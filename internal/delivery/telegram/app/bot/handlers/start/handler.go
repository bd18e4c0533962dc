// internal/delivery/telegram/app/bot/handlers/start/handler.go
package start

import (
	"context"

	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

// Summary is the one-line state shown above the menu.
type Summary interface {
	Count() int
}

type startHandlerImpl struct {
	*base.BaseHandler
	trades  Summary
	buttons *buttons.ButtonBuilder
}

// NewHandler creates the /start handler
func NewHandler(trades Summary) handlers.Handler {
	return newHandler(trades, constants.CommandStart, handlers.TypeCommand)
}

// NewMenuHandler creates the "back to menu" callback
func NewMenuHandler(trades Summary) handlers.Handler {
	return newHandler(trades, constants.CallbackMenu, handlers.TypeCallback)
}

func newHandler(trades Summary, command string, typ handlers.HandlerType) handlers.Handler {
	return &startHandlerImpl{
		BaseHandler: &base.BaseHandler{
			Name:    command + "_handler",
			Command: command,
			Type:    typ,
		},
		trades:  trades,
		buttons: buttons.NewButtonBuilder(),
	}
}

func (h *startHandlerImpl) Execute(_ context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	result := base.Text("🤖 Signal desk\n\n📈 Active trades: %d\n\nChoose an action or send /help.", h.trades.Count())
	result.Keyboard = h.buttons.CreateMainMenuKeyboard()
	result.Edit = params.Data != ""
	return result, nil
}
