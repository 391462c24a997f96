package prompts

import (
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mpetralia/anima/internal/memory"
)

func TestBuildMessagesOrder(t *testing.T) {
	msgs := BuildMessages(ChatRequest{
		System: "SYSTEM BLOCK",
		History: []memory.Message{
			{Role: "user", Text: "earlier question"},
			{Role: "assistant", Text: "earlier answer"},
		},
		RetrievedSummaries: []string{"[2026-01-01 10:00:00] old summary"},
		RetrievedTurns:     []string{"[2026-01-01 10:00:00] User: old turn"},
		CurrentTime:        "2026-02-01 12:00:00 UTC",
		CurrentRequest:     "what now?",
	})

	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != "SYSTEM BLOCK" {
		t.Errorf("first message = %+v, want system block", msgs[0])
	}

	last := msgs[len(msgs)-1]
	if last.Role != openai.ChatMessageRoleUser {
		t.Errorf("last message role = %s, want user", last.Role)
	}
	if !strings.Contains(last.Content, "[Current Request]") || !strings.Contains(last.Content, "what now?") {
		t.Errorf("last message content = %q", last.Content)
	}

	var sawBegin, sawEnd, sawSummaries, sawTurns, sawTime bool
	for _, m := range msgs {
		switch {
		case strings.Contains(m.Content, "BEGINNING OF THE CURRENT CONVERSATION"):
			sawBegin = true
		case strings.Contains(m.Content, "END OF THE CURRENT CONVERSATION"):
			sawEnd = true
		case strings.Contains(m.Content, "Related Historical Summaries"):
			sawSummaries = true
		case strings.Contains(m.Content, "Related Historical Conversations"):
			sawTurns = true
		case strings.Contains(m.Content, "**Current Time**"):
			sawTime = true
		}
	}
	for name, ok := range map[string]bool{
		"begin marker": sawBegin, "end marker": sawEnd,
		"summaries section": sawSummaries, "turns section": sawTurns,
		"current time": sawTime,
	} {
		if !ok {
			t.Errorf("missing %s", name)
		}
	}
}

func TestBuildMessagesEmptySections(t *testing.T) {
	msgs := BuildMessages(ChatRequest{
		System:         "S",
		CurrentTime:    "now",
		CurrentRequest: "hi",
	})

	// System, current time, and request only.
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for _, m := range msgs {
		if strings.Contains(m.Content, "CURRENT CONVERSATION") {
			t.Error("history markers emitted for empty history")
		}
		if strings.Contains(m.Content, "Related Historical") {
			t.Error("retrieval sections emitted with no results")
		}
	}
}

func TestSystemPromptEmbedsProfileVerbatim(t *testing.T) {
	profileJSON := `{"bot": {"name": "Mira"}, "user": {"name": "Sam"}}`
	out := SystemPrompt(profileJSON, "Mira", "Sam", []string{"first summary", "second summary"})

	if !strings.Contains(out, "<persona_document>\n"+profileJSON+"\n</persona_document>") {
		t.Error("profile JSON not embedded verbatim in delimited region")
	}
	if !strings.Contains(out, `You are "Mira"`) {
		t.Error("bot name not in persona prose")
	}
	if !strings.Contains(out, "1. first summary") || !strings.Contains(out, "2. second summary") {
		t.Error("recent summaries section missing entries")
	}

	// Without summaries the section is omitted.
	out = SystemPrompt(profileJSON, "Mira", "Sam", nil)
	if strings.Contains(out, "Recent Conversation Summaries") {
		t.Error("summaries section emitted with no summaries")
	}
}

func TestFormatLines(t *testing.T) {
	if got := FormatTurnLine("2026-01-01 10:00:00", "assistant", "hello"); got != "[2026-01-01 10:00:00] Assistant: hello" {
		t.Errorf("FormatTurnLine = %q", got)
	}
	if got := FormatTurnLine("t", "user", "x"); got != "[t] User: x" {
		t.Errorf("FormatTurnLine = %q", got)
	}
	if got := FormatSummaryLine("t", "s"); got != "[t] s" {
		t.Errorf("FormatSummaryLine = %q", got)
	}
}
