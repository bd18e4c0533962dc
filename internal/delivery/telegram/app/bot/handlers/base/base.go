// internal/delivery/telegram/app/bot/handlers/base/base.go
package base

import (
	"fmt"
	"strconv"
	"strings"

	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
)

// BaseHandler holds the routing identity of a handler
type BaseHandler struct {
	Name    string
	Command string
	Type    handlers.HandlerType
}

func (h *BaseHandler) GetName() string {
	return h.Name
}

func (h *BaseHandler) GetCommand() string {
	return h.Command
}

func (h *BaseHandler) GetType() handlers.HandlerType {
	return h.Type
}

// GetBoolDisplay renders a flag
func (h *BaseHandler) GetBoolDisplay(value bool) string {
	if value {
		return "✅"
	}
	return "❌"
}

// CallbackArgs splits "key:a:b" into [a b].
func (h *BaseHandler) CallbackArgs(data string) []string {
	parts := strings.Split(data, ":")
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}

// ParseUserID reads a numeric user id argument.
func (h *BaseHandler) ParseUserID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a user id", s)
	}
	return id, nil
}

// Text is a formatted plain reply.
func Text(format string, args ...interface{}) handlers.HandlerResult {
	return handlers.HandlerResult{Message: fmt.Sprintf(format, args...)}
}

// Message is a plain reply of prebuilt text, sent verbatim.
func Message(text string) handlers.HandlerResult {
	return handlers.HandlerResult{Message: text}
}
