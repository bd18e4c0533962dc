package middlewares

import (
	"testing"

	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/router"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text, command, args string
	}{
		{"/price EURUSD", "/price", "EURUSD"},
		{"/trial_edit@desk_bot 42 +2h", "/trial_edit", "42 +2h"},
		{"/START", "/start", ""},
		{"EURUSD", router.TextKey, ""},
	}
	for _, tt := range tests {
		command, args := SplitCommand(tt.text)
		if command != tt.command || args != tt.args {
			t.Errorf("SplitCommand(%q) = %q, %q", tt.text, command, args)
		}
	}
}

func TestProcessUpdateAccess(t *testing.T) {
	m := NewAuthMiddleware(7)
	private := telegram.Chat{ID: 7, Type: "private"}

	req, access := m.ProcessUpdate(&telegram.Update{Message: &telegram.Message{
		MessageID: 3, From: &telegram.User{ID: 7}, Chat: private, Text: "/peer 42",
	}})
	if access != AccessOwner || req.Command != "/peer" || req.Params.Args != "42" {
		t.Fatalf("owner message: %+v %v", req, access)
	}

	_, access = m.ProcessUpdate(&telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: 9}, Chat: telegram.Chat{ID: 9, Type: "private"}, Text: "hi",
	}})
	if access != AccessStranger {
		t.Fatalf("stranger private message: %v", access)
	}

	_, access = m.ProcessUpdate(&telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: 9}, Chat: telegram.Chat{ID: -100, Type: "supergroup"}, Text: "hi",
	}})
	if access != AccessIgnore {
		t.Fatalf("group message: %v", access)
	}

	req, access = m.ProcessUpdate(&telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID: "cb", From: telegram.User{ID: 7}, Data: "ovr:o:tp1",
		Message: &telegram.Message{MessageID: 11, Chat: private},
	}})
	if access != AccessOwner || req.Command != "ovr:o:tp1" || req.Params.MessageID != 11 || req.CallbackID != "cb" {
		t.Fatalf("owner callback: %+v %v", req, access)
	}

	if NewAuthMiddleware(0).IsOwner(0) {
		t.Fatal("unset owner matched")
	}
}
