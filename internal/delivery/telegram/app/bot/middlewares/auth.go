// internal/delivery/telegram/app/bot/middlewares/auth.go
package middlewares

import (
	"strings"

	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/router"
	"signal-desk-bot/pkg/logger"
)

// Access is the console standing of an update's author
type Access int

const (
	// AccessIgnore - not a console interaction
	AccessIgnore Access = iota
	// AccessStranger - someone else writing to the bot in private
	AccessStranger
	// AccessOwner - the operator
	AccessOwner
)

// Request is a routed console interaction
type Request struct {
	Command    string
	Params     handlers.HandlerParams
	CallbackID string
}

// AuthMiddleware admits only the owner to the console.
type AuthMiddleware struct {
	ownerID int64
}

func NewAuthMiddleware(ownerID int64) *AuthMiddleware {
	return &AuthMiddleware{ownerID: ownerID}
}

// IsOwner reports whether userID is the operator
func (m *AuthMiddleware) IsOwner(userID int64) bool {
	return m.ownerID != 0 && userID == m.ownerID
}

// ProcessUpdate turns a private message or a callback into a console request.
func (m *AuthMiddleware) ProcessUpdate(update *telegram.Update) (Request, Access) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if !msg.Chat.IsPrivate() || msg.From == nil {
			return Request{}, AccessIgnore
		}
		if !m.IsOwner(msg.From.ID) {
			logger.Debug("🔒 Private message from non-owner %d", msg.From.ID)
			return Request{}, AccessStranger
		}
		text := strings.TrimSpace(msg.Body())
		command, args := SplitCommand(text)
		return Request{
			Command: command,
			Params: handlers.HandlerParams{
				UserID:    msg.From.ID,
				ChatID:    msg.Chat.ID,
				MessageID: msg.MessageID,
				Text:      text,
				Args:      args,
				UpdateID:  update.UpdateID,
			},
		}, AccessOwner

	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if !m.IsOwner(cb.From.ID) {
			logger.Debug("🔒 Callback from non-owner %d", cb.From.ID)
			return Request{CallbackID: cb.ID}, AccessStranger
		}
		req := Request{
			Command:    cb.Data,
			CallbackID: cb.ID,
			Params: handlers.HandlerParams{
				UserID:   cb.From.ID,
				ChatID:   cb.From.ID,
				Data:     cb.Data,
				UpdateID: update.UpdateID,
			},
		}
		if cb.Message != nil {
			req.Params.ChatID = cb.Message.Chat.ID
			req.Params.MessageID = cb.Message.MessageID
		}
		return req, AccessOwner
	}
	return Request{}, AccessIgnore
}

// SplitCommand splits "/verb@bot args" into "/verb" and "args". Free text routes
// to the text handler.
func SplitCommand(text string) (command, args string) {
	if !strings.HasPrefix(text, "/") {
		return router.TextKey, ""
	}
	verb, rest, _ := strings.Cut(text, " ")
	if at := strings.Index(verb, "@"); at > 0 {
		verb = verb[:at]
	}
	return strings.ToLower(verb), strings.TrimSpace(rest)
}
