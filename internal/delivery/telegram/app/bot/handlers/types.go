// internal/delivery/telegram/app/bot/handlers/types.go
package handlers

import (
	"context"

	"signal-desk-bot/internal/delivery/telegram"
)

// HandlerType is how a handler is reached
type HandlerType string

const (
	TypeCommand  HandlerType = "command"
	TypeCallback HandlerType = "callback"
	TypeMessage  HandlerType = "message"
)

// Handler is one console verb.
type Handler interface {
	Execute(ctx context.Context, params HandlerParams) (HandlerResult, error)
	GetName() string
	GetCommand() string // command or callback key
	GetType() HandlerType
}

// HandlerParams carries one operator interaction.
type HandlerParams struct {
	UserID    int64
	ChatID    int64
	MessageID int64  // message the callback button belongs to
	Text      string // full message text
	Args      string // command arguments after the verb
	Data      string // callback data
	UpdateID  int64
}

// HandlerResult is what goes back to the operator.
type HandlerResult struct {
	Message  string
	Keyboard *telegram.InlineKeyboardMarkup
	// Edit replaces the callback's message instead of sending a new one
	Edit bool
	// Toast is the callback answer text
	Toast string
}
