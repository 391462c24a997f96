package prompts

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mpetralia/anima/internal/memory"
)

// ChatRequest carries everything the builder needs to produce the
// ordered transcript for one LLM call.
type ChatRequest struct {
	System string

	// History is the window tail, excluding the current request.
	History []memory.Message

	// RetrievedSummaries and RetrievedTurns are pre-formatted lines with
	// human-readable timestamps.
	RetrievedSummaries []string
	RetrievedTurns     []string

	// CurrentTime is the human-readable current time line.
	CurrentTime string

	// CurrentRequest is the new user message, or the scheduler-synthesised
	// prompt.
	CurrentRequest string
}

// BuildMessages assembles the ordered transcript:
//
//  1. the system block (persona document + recent summaries),
//  2. the current conversation tail bracketed by markers,
//  3. retrieved summaries and conversations,
//  4. the current time,
//  5. the current request, emphasised at the end.
func BuildMessages(req ChatRequest) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.System},
	}

	if len(req.History) > 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "BEGINNING OF THE CURRENT CONVERSATION.",
		})
		for _, m := range req.History {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    m.Role,
				Content: m.Text,
			})
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "END OF THE CURRENT CONVERSATION.",
		})
	}

	if len(req.RetrievedSummaries) > 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "## Related Historical Summaries\n\n" + strings.Join(req.RetrievedSummaries, "\n\n"),
		})
	}

	if len(req.RetrievedTurns) > 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "## Related Historical Conversations\n\n" + strings.Join(req.RetrievedTurns, "\n\n"),
		})
	}

	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: "END OF ALL CONTEXT.\n\n**Current Time**: " + req.CurrentTime,
	})

	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: "Please respond to the request below based on all context provided.\n\n[Current Request]\n" + req.CurrentRequest,
	})

	return msgs
}

// FormatSummaryLine renders a retrieved summary for the prompt.
func FormatSummaryLine(humanTime, text string) string {
	return "[" + humanTime + "] " + text
}

// FormatTurnLine renders a retrieved turn for the prompt.
func FormatTurnLine(humanTime, role, text string) string {
	display := "User"
	if role == "assistant" {
		display = "Assistant"
	}
	return "[" + humanTime + "] " + display + ": " + text
}
