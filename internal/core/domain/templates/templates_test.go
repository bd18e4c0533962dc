package templates

import (
	"strings"
	"testing"

	"signal-desk-bot/internal/core/domain/trades"
)

func TestShippedTemplatesAreValid(t *testing.T) {
	set, err := Load("../../../../configs/templates.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, lvl := range []trades.Level{trades.LevelTP1, trades.LevelTP2, trades.LevelTP3, trades.LevelSL, trades.LevelBreakeven} {
		if set.Reply(lvl) == "" {
			t.Errorf("empty reply for %s", lvl)
		}
	}
	if got := set.EntryHit(trades.ActionSell); got != "@everyone our sell limit has been hit" {
		t.Errorf("EntryHit = %q", got)
	}
	for _, key := range set.DMKeys() {
		if set.DM(key, nil) == "" {
			t.Errorf("DM %s empty", key)
		}
	}
}

func TestParseRejectsSmallPools(t *testing.T) {
	_, err := Parse([]byte("replies:\n  tp1: [a, b]\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "replies.tp1 has 2 entries") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "dms.welcome is missing") {
		t.Errorf("missing dm not reported: %v", err)
	}
}

func TestReplyUsesPicker(t *testing.T) {
	set, err := Load("../../../../configs/templates.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	first := set.WithPicker(func(int) int { return 0 })
	if first.Reply(trades.LevelTP1) != first.Reply(trades.LevelTP1) {
		t.Fatal("fixed picker must be deterministic")
	}
	seen := map[string]bool{}
	for i := 0; i < MinPoolSize; i++ {
		n := i
		seen[set.WithPicker(func(int) int { return n }).Reply(trades.LevelSL)] = true
	}
	if len(seen) != MinPoolSize {
		t.Fatalf("expected %d distinct SL replies, got %d", MinPoolSize, len(seen))
	}
}

func TestDMPlaceholders(t *testing.T) {
	set, err := Load("../../../../configs/templates.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	text := set.DM(DMWarning24h, map[string]string{"expiry": "Wed 11 Mar 22:59"})
	if !strings.Contains(text, "Wed 11 Mar 22:59") || strings.Contains(text, "{expiry}") {
		t.Fatalf("placeholder not filled: %q", text)
	}
}
