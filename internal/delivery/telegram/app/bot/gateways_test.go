package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"signal-desk-bot/internal/core/domain/tracker"
	"signal-desk-bot/internal/delivery/telegram/app/bot/message_sender"
	"signal-desk-bot/internal/delivery/telegram/app/http_client"
)

// replyAPI rejects every sendMessage that carries reply_parameters with the given description.
type replyAPI struct {
	mu        sync.Mutex
	rejection string
	replies   int
	plain     int
}

func (a *replyAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var payload map[string]interface{}
	_ = json.Unmarshal(raw, &payload)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := payload["reply_parameters"]; ok {
		a.replies++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"` + a.rejection + `"}`))
		return
	}
	a.plain++
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":9,"chat":{"id":-100,"type":"supergroup"},"date":1}}`))
}

func newReplyGateway(t *testing.T, rejection string) (*ChatGateway, *replyAPI) {
	t.Helper()
	api := &replyAPI{rejection: rejection}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client := http_client.NewTelegramClient(srv.URL, "TOKEN")
	return NewChatGateway(message_sender.NewMessageSender(client)), api
}

func TestReplyFallsBackToPlainSend(t *testing.T) {
	g, api := newReplyGateway(t, "Bad Request: message thread not found")
	if err := g.Reply(context.Background(), -100, 5, "TP1 hit"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.replies != 1 || api.plain != 1 {
		t.Fatalf("reply attempts %d, plain sends %d", api.replies, api.plain)
	}
}

func TestReplyToDeletedMessageIsNotResent(t *testing.T) {
	g, api := newReplyGateway(t, "Bad Request: message to be replied not found")
	err := g.Reply(context.Background(), -100, 5, "TP1 hit")
	if !errors.Is(err, tracker.ErrMessageGone) {
		t.Fatalf("expected ErrMessageGone, got %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.plain != 0 {
		t.Fatalf("deleted source must not get a plain send, got %d", api.plain)
	}
}
