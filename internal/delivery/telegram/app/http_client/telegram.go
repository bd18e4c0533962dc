// internal/delivery/telegram/app/http_client/telegram.go
package http_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"signal-desk-bot/internal/delivery/telegram"
)

// ErrMessageNotFound is wrapped by APIError when Telegram definitively reports a
// message as missing.
var ErrMessageNotFound = errors.New("message not found")

// APIError is a non-ok Bot API answer.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %s)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Is lets errors.Is(err, ErrMessageNotFound) match deleted-message answers.
func (e *APIError) Is(target error) bool {
	return target == ErrMessageNotFound && e.MessageGone()
}

// MessageGone reports the answers that mean the message no longer exists.
func (e *APIError) MessageGone() bool {
	d := strings.ToLower(e.Description)
	return strings.Contains(d, "message to edit not found") ||
		strings.Contains(d, "message_id_invalid") ||
		strings.Contains(d, "message to be replied not found") ||
		strings.Contains(d, "message to delete not found")
}

// NotModified reports the edit answers that prove the message still exists.
func (e *APIError) NotModified() bool {
	d := strings.ToLower(e.Description)
	return strings.Contains(d, "message is not modified") ||
		strings.Contains(d, "message can't be edited")
}

// NotParticipant reports a getChatMember answer for a user outside the chat.
func (e *APIError) NotParticipant() bool {
	d := strings.ToLower(e.Description)
	return strings.Contains(d, "user not found") || strings.Contains(d, "participant_id_invalid") ||
		strings.Contains(d, "not a member") || strings.Contains(d, "user_not_participant")
}

// TelegramClient calls Bot API methods
type TelegramClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewTelegramClient creates a client for https://api.telegram.org/bot<token>/ style base URLs.
func NewTelegramClient(apiBase, token string) *TelegramClient {
	return &TelegramClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: BaseURL(apiBase, token),
	}
}

// BaseURL joins the API host and the bot token.
func BaseURL(apiBase, token string) string {
	return strings.TrimRight(apiBase, "/") + "/bot" + token + "/"
}

// SetTimeout sets the request timeout
func (c *TelegramClient) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// Call posts a JSON payload to method and decodes the result into out (when non-nil).
func (c *TelegramClient) Call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	return call(ctx, c.httpClient, c.baseURL, method, payload, out)
}

func call(ctx context.Context, hc *http.Client, baseURL, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read: %w", method, err)
	}

	var envelope telegram.Response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode: %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}
