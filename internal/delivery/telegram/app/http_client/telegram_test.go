package http_client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal-desk-bot/internal/delivery/telegram"
)

// botAPI answers each method with a canned body and records the last payload.
type botAPI struct {
	answers map[string]string
	last    map[string]map[string]interface{}
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	raw, _ := io.ReadAll(r.Body)
	var payload map[string]interface{}
	_ = json.Unmarshal(raw, &payload)
	b.last[method] = payload
	body, ok := b.answers[method]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		return
	}
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, answers map[string]string) (*TelegramClient, *botAPI) {
	t.Helper()
	api := &botAPI{answers: answers, last: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewTelegramClient(srv.URL, "TOKEN"), api
}

func TestSendMessageWithReply(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":77,"chat":{"id":-100,"type":"supergroup"},"date":1}}`,
	})
	msg, err := c.SendMessage(context.Background(), -100, "TP1 hit", SendOptions{ReplyTo: 5})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.MessageID != 77 || msg.Chat.ID != -100 {
		t.Fatalf("unexpected message %+v", msg)
	}
	reply, ok := api.last["sendMessage"]["reply_parameters"].(map[string]interface{})
	if !ok || reply["message_id"].(float64) != 5 {
		t.Fatalf("reply_parameters not sent: %v", api.last["sendMessage"])
	}
}

func TestMessageExistsClassification(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		exists  bool
		wantErr bool
	}{
		{"not modified", `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`, true, false},
		{"foreign message", `{"ok":false,"error_code":400,"description":"Bad Request: message can't be edited"}`, true, false},
		{"deleted", `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`, false, false},
		{"invalid id", `{"ok":false,"error_code":400,"description":"Bad Request: MESSAGE_ID_INVALID"}`, false, false},
		{"edited", `{"ok":true,"result":true}`, true, false},
		{"transient", `{"ok":false,"error_code":500,"description":"Internal Server Error"}`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, map[string]string{"editMessageReplyMarkup": tt.answer})
			exists, err := c.MessageExists(context.Background(), -100, 5)
			if exists != tt.exists || (err != nil) != tt.wantErr {
				t.Fatalf("got (%v, %v), want (%v, err=%v)", exists, err, tt.exists, tt.wantErr)
			}
		})
	}
}

func TestAPIErrorDetails(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`,
	})
	_, err := c.SendMessage(context.Background(), 1, "x", SendOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 7*time.Second {
		t.Fatalf("unexpected %+v", apiErr)
	}

	c, _ = newTestClient(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":400,"description":"Bad Request: message to be replied not found"}`,
	})
	_, err = c.SendMessage(context.Background(), 1, "x", SendOptions{ReplyTo: 9})
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestGetChatMemberAndUpdates(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"getChatMember": `{"ok":true,"result":{"status":"left","user":{"id":42,"first_name":"A"}}}`,
	})
	m, err := c.GetChatMember(context.Background(), -100, 42)
	if err != nil {
		t.Fatalf("GetChatMember: %v", err)
	}
	if m.Present() {
		t.Fatal("left member reported present")
	}

	api := &botAPI{answers: map[string]string{
		"getUpdates": `{"ok":true,"result":[{"update_id":10,"chat_join_request":{"chat":{"id":-1,"type":"supergroup"},"from":{"id":42,"first_name":"A"},"user_chat_id":42,"date":1}}]}`,
	}, last: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(api)
	defer srv.Close()
	p := NewPollingClient(srv.URL, "TOKEN", 0)
	updates, err := p.GetUpdates(context.Background(), 10, 0, telegram.AllowedUpdates)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 1 || updates[0].Kind() != telegram.UpdateChatJoinRequest {
		t.Fatalf("unexpected updates %+v", updates)
	}
	if api.last["getUpdates"]["offset"].(float64) != 10 {
		t.Fatalf("offset not sent: %v", api.last["getUpdates"])
	}
}
