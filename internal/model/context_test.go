package model

import (
	"strings"
	"testing"

	"github.com/phonectl/phonectl/internal/provider"
)

func makeConversation(turns, size int) []provider.Message {
	text := strings.Repeat("x", size)
	var msgs []provider.Message
	for i := 0; i < turns; i++ {
		msgs = append(msgs,
			provider.Message{Role: provider.RoleUser, Content: []provider.Content{provider.TextContent(text)}},
			provider.Message{Role: provider.RoleAssistant, Content: []provider.Content{provider.TextContent(text)}},
		)
	}
	return msgs
}

func TestTrimContext_UnderThreshold(t *testing.T) {
	msgs := makeConversation(3, 10)
	if got := TrimContext(msgs, 10000); len(got) != len(msgs) {
		t.Errorf("len = %d, want %d", len(got), len(msgs))
	}
}

func TestTrimContext_KeepsTaskAndRecent(t *testing.T) {
	msgs := makeConversation(20, 400) // 40 messages, ~100 tokens each
	msgs[0].Content[0].Text = "TASK" + msgs[0].Content[0].Text[4:]

	got := TrimContext(msgs, 1000)
	if got[0].Content[0].Text[:4] != "TASK" {
		t.Error("first message must be kept")
	}
	if len(got) >= len(msgs) {
		t.Fatalf("expected trimming, got %d messages", len(got))
	}
	if len(got) > 1 && got[1].Role != provider.RoleAssistant {
		t.Errorf("second message role = %s, want assistant", got[1].Role)
	}
	if got[len(got)-1].Role != provider.RoleAssistant {
		t.Error("most recent message must be kept")
	}
}

func TestTrimContext_Disabled(t *testing.T) {
	msgs := makeConversation(20, 400)
	if got := TrimContext(msgs, 0); len(got) != len(msgs) {
		t.Errorf("limit 0 must not trim")
	}
}

func TestStripOldImages(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.RoleUser, Content: []provider.Content{provider.ImageContent("a"), provider.TextContent("1")}},
		{Role: provider.RoleAssistant, Content: []provider.Content{provider.TextContent("ok")}},
		{Role: provider.RoleUser, Content: []provider.Content{provider.ImageContent("b"), provider.TextContent("2")}},
	}
	stripOldImages(msgs)
	if msgs[0].HasImage() {
		t.Error("old image must be stripped")
	}
	if !msgs[2].HasImage() {
		t.Error("newest image must be kept")
	}
}
