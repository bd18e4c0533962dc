// internal/delivery/telegram/app/bot/handlers/router/router.go
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/pkg/logger"
)

// TextKey is the route of free text (dialog answers).
const TextKey = "text"

// ErrNoHandler is returned when nothing is registered for a command.
var ErrNoHandler = errors.New("no handler")

// Router maps commands and callback keys to handlers
type Router struct {
	handlers map[string]handlers.Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]handlers.Handler)}
}

// RegisterHandler registers a handler under its GetCommand()
func (r *Router) RegisterHandler(handler handlers.Handler) {
	switch handler.GetType() {
	case handlers.TypeCommand:
		r.RegisterCommand(handler.GetCommand(), handler)
	case handlers.TypeCallback:
		r.RegisterCallback(handler.GetCommand(), handler)
	default:
		r.handlers[TextKey] = handler
		logger.Debug("Registered text handler %s", handler.GetName())
	}
}

// RegisterCommand registers a command, always with a leading /
func (r *Router) RegisterCommand(command string, handler handlers.Handler) {
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	r.handlers[command] = handler
	logger.Debug("Registered command %s → %s", command, handler.GetName())
}

// RegisterCallback registers a callback key, never with a leading /
func (r *Router) RegisterCallback(callback string, handler handlers.Handler) {
	callback = strings.TrimPrefix(callback, "/")
	r.handlers[callback] = handler
	logger.Debug("Registered callback %s → %s", callback, handler.GetName())
}

// Handle resolves command by exact match, then by "key:" prefix, then with or
// without the leading slash.
func (r *Router) Handle(ctx context.Context, command string, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	if handler, ok := r.handlers[command]; ok {
		return r.executeHandler(ctx, handler, command, params)
	}

	if i := strings.Index(command, ":"); i > 0 {
		if handler, ok := r.handlers[command[:i]]; ok {
			params.Data = command
			return r.executeHandler(ctx, handler, command, params)
		}
	}

	var alt string
	if strings.HasPrefix(command, "/") {
		alt = command[1:]
	} else {
		alt = "/" + command
	}
	if handler, ok := r.handlers[alt]; ok {
		return r.executeHandler(ctx, handler, command, params)
	}

	return handlers.HandlerResult{}, fmt.Errorf("%w for %q", ErrNoHandler, command)
}

func (r *Router) executeHandler(ctx context.Context, handler handlers.Handler, command string, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	logger.Debug("Handler %s for %s", handler.GetName(), command)
	result, err := handler.Execute(ctx, params)
	if err != nil {
		logger.Warn("⚠️ Handler %s for %s: %v", handler.GetName(), command, err)
		return handlers.HandlerResult{}, err
	}
	return result, nil
}

// GetHandler returns the handler registered under command
func (r *Router) GetHandler(command string) (handlers.Handler, bool) {
	handler, ok := r.handlers[command]
	return handler, ok
}

// GetCommands lists the registered slash commands, sorted
func (r *Router) GetCommands() []string {
	commands := make([]string, 0, len(r.handlers))
	for cmd := range r.handlers {
		if strings.HasPrefix(cmd, "/") {
			commands = append(commands, cmd)
		}
	}
	sort.Strings(commands)
	return commands
}
