// internal/delivery/telegram/app/bot/handlers/commands/preview/handler.go
package preview

import (
	"context"
	"fmt"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/trial"
	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

// Templates renders DM texts.
type Templates interface {
	DMKeys() []string
	DM(key string, vars map[string]string) string
}

type previewHandler struct {
	*base.BaseHandler
	templates Templates
	clock     calendar.Clock
}

// NewHandler creates /preview
func NewHandler(t Templates, clock calendar.Clock) handlers.Handler {
	return &previewHandler{
		BaseHandler: &base.BaseHandler{Name: "preview_handler", Command: constants.CommandPreview, Type: handlers.TypeCommand},
		templates:   t,
		clock:       clock,
	}
}

// NewCallbackHandler handles prev and prev:<key>
func NewCallbackHandler(t Templates, clock calendar.Clock) handlers.Handler {
	return &previewHandler{
		BaseHandler: &base.BaseHandler{Name: "preview_callback", Command: constants.CallbackPreview, Type: handlers.TypeCallback},
		templates:   t,
		clock:       clock,
	}
}

func (h *previewHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	args := h.CallbackArgs(params.Data)
	if len(args) == 0 {
		return handlers.HandlerResult{
			Message:  "🧾 Choose a DM template to preview:",
			Keyboard: h.keyboard(),
			Edit:     params.Data != "",
		}, nil
	}
	key := args[0]
	text := h.templates.DM(key, h.sampleVars())
	if text == "" {
		return handlers.HandlerResult{Toast: "Unknown template"}, nil
	}
	return handlers.HandlerResult{
		Message:  fmt.Sprintf("🧾 %s\n\n%s", dmqueue.LabelFor(key), text),
		Keyboard: h.keyboard(),
		Edit:     true,
	}, nil
}

// sampleVars fill placeholders with a trial started now.
func (h *previewHandler) sampleVars() map[string]string {
	now := h.clock.Now()
	return map[string]string{
		"expiry": trial.FormatExpiry(calendar.TrialExpiry(now)),
		"days":   "3",
	}
}

func (h *previewHandler) keyboard() *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	var row []telegram.InlineKeyboardButton
	for _, key := range h.templates.DMKeys() {
		row = append(row, buttons.Button(dmqueue.LabelFor(key), constants.CallbackPreview+":"+key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, buttons.Row(buttons.Button(constants.ButtonTexts.Back, constants.CallbackMenu)))
	return buttons.Keyboard(rows...)
}
