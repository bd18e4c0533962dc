// internal/delivery/telegram/app/bot/message_sender/sender.go
package message_sender

import (
	"context"
	"errors"
	"time"

	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/internal/delivery/telegram/app/http_client"
	"signal-desk-bot/pkg/logger"
)

// maxRetryAfter caps how long a single 429 may hold a send.
const maxRetryAfter = 60 * time.Second

// MessageSender sends paced messages and retries once on flood control.
type MessageSender struct {
	client  *http_client.TelegramClient
	limiter *RateLimiter
}

func NewMessageSender(client *http_client.TelegramClient) *MessageSender {
	return &MessageSender{client: client, limiter: NewRateLimiter()}
}

// Client exposes the underlying Bot API client
func (ms *MessageSender) Client() *http_client.TelegramClient {
	return ms.client
}

// Send posts a message to chatID.
func (ms *MessageSender) Send(ctx context.Context, chatID int64, text string, opts http_client.SendOptions) (*telegram.Message, error) {
	var msg *telegram.Message
	err := ms.withRetry(ctx, chatID, "sendMessage", func() error {
		var err error
		msg, err = ms.client.SendMessage(ctx, chatID, text, opts)
		return err
	})
	return msg, err
}

// SendText posts text with an optional keyboard.
func (ms *MessageSender) SendText(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	_, err := ms.Send(ctx, chatID, text, http_client.SendOptions{Keyboard: keyboard})
	return err
}

// Edit replaces the text and keyboard of a bot message.
func (ms *MessageSender) Edit(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	return ms.withRetry(ctx, chatID, "editMessageText", func() error {
		return ms.client.EditMessageText(ctx, chatID, messageID, text, keyboard)
	})
}

// AnswerCallback stops the button spinner, optionally with a toast.
func (ms *MessageSender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return ms.client.AnswerCallbackQuery(ctx, callbackID, text)
}

func (ms *MessageSender) withRetry(ctx context.Context, chatID int64, method string, call func() error) error {
	if err := ms.limiter.Wait(ctx, chatID); err != nil {
		return err
	}
	err := call()
	var apiErr *http_client.APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
		return err
	}
	wait := apiErr.RetryAfter
	if wait > maxRetryAfter {
		return err
	}
	logger.Warn("⏳ %s to %d throttled, retrying in %s", method, chatID, wait)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return call()
}
