package channel

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("", 10); len(got) != 0 {
		t.Errorf("empty text: %q", got)
	}
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text: %q", got)
	}

	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitMessage(text, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Errorf("newline split: %q", got)
	}

	got = splitMessage(strings.Repeat("x", 25), 10)
	if len(got) != 3 || len(got[0]) != 10 || len(got[2]) != 5 {
		t.Errorf("hard split: %q", got)
	}

	// Multi-byte runes are never cut in half.
	got = splitMessage(strings.Repeat("é", 6), 5)
	for _, c := range got {
		if !utf8.ValidString(c) {
			t.Errorf("broken rune in chunk %q", c)
		}
	}
	if strings.Join(got, "") != strings.Repeat("é", 6) {
		t.Errorf("chunks lost data: %q", got)
	}
}

func TestSessionID(t *testing.T) {
	if got := sessionID(-100123); got != "tg--100123" {
		t.Errorf("sessionID = %q", got)
	}
}

func TestTelegram_AllowList(t *testing.T) {
	tg := NewTelegram(TelegramConfig{AllowFrom: []string{"42", " 7 ", "bogus"}})
	if !tg.isAllowed(42) || !tg.isAllowed(7) {
		t.Error("listed users should be allowed")
	}
	if tg.isAllowed(8) {
		t.Error("unlisted user allowed")
	}
	if !NewTelegram(TelegramConfig{}).isAllowed(8) {
		t.Error("empty allow list should allow everyone")
	}
}

func TestTelegram_CommandReply(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Catalogue: staticCatalogue{}})
	if got := tg.commandReply(context.Background(), "tools"); !strings.Contains(got, "filesystem.list_dir") {
		t.Errorf("/tools = %q", got)
	}
	if got := tg.commandReply(context.Background(), "help"); !strings.Contains(got, "/tools") {
		t.Errorf("/help = %q", got)
	}
	if got := tg.commandReply(context.Background(), "nope"); !strings.HasPrefix(got, "Unknown command") {
		t.Errorf("unknown = %q", got)
	}
}
