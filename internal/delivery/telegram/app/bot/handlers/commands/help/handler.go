// internal/delivery/telegram/app/bot/handlers/commands/help/handler.go
package help

import (
	"context"

	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

type helpCommandHandler struct {
	*base.BaseHandler
}

// NewHandler creates the /help handler
func NewHandler() handlers.Handler {
	return &helpCommandHandler{
		BaseHandler: &base.BaseHandler{
			Name:    "help_command_handler",
			Command: constants.CommandHelp,
			Type:    handlers.TypeCommand,
		},
	}
}

func (h *helpCommandHandler) Execute(_ context.Context, _ handlers.HandlerParams) (handlers.HandlerResult, error) {
	return handlers.HandlerResult{
		Message:  constants.HelpText,
		Keyboard: buttons.NewButtonBuilder().CreateBackKeyboard(),
	}, nil
}
