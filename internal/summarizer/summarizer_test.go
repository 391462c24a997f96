package summarizer

import (
	"testing"

	"github.com/mpetralia/anima/internal/memory"
)

func TestRenderConversation(t *testing.T) {
	got := renderConversation([]memory.Message{
		{Role: "user", Text: "hello"},
		{Role: "assistant", Text: "hi there"},
	})
	want := "user: hello\nassistant: hi there"
	if got != want {
		t.Errorf("renderConversation = %q, want %q", got, want)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		open, close byte
		want        string
	}{
		{
			name: "bare array",
			in:   `[{"op": "add"}]`,
			open: '[', close: ']',
			want: `[{"op": "add"}]`,
		},
		{
			name: "fenced array",
			in:   "Here is the patch:\n```json\n[{\"op\": \"replace\"}]\n```\nDone.",
			open: '[', close: ']',
			want: `[{"op": "replace"}]`,
		},
		{
			name: "plain fence",
			in:   "```\n{\"bot\": {}}\n```",
			open: '{', close: '}',
			want: `{"bot": {}}`,
		},
		{
			name: "surrounding prose",
			in:   `Sure! {"bot": {"name": "x"}} hope that helps`,
			open: '{', close: '}',
			want: `{"bot": {"name": "x"}}`,
		},
		{
			name: "no json",
			in:   "I could not produce a patch.",
			open: '[', close: ']',
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in, tt.open, tt.close); got != tt.want {
				t.Errorf("extractJSON = %q, want %q", got, tt.want)
			}
		})
	}
}
