// Package summarizer condenses slices of turns into summaries and
// derives persona-document patches from them, both through the tool
// model. These calls never advertise tools, so the model cannot query its
// own memory while a summary is being generated.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mpetralia/anima/internal/llm"
	"github.com/mpetralia/anima/internal/memory"
	"github.com/mpetralia/anima/internal/profile"
	"github.com/mpetralia/anima/internal/prompts"
	"github.com/mpetralia/anima/internal/timeutil"
)

// completeDocRetries bounds the whole-document fallback when a patch
// fails.
const completeDocRetries = 2

// Summarizer implements memory.Condenser on top of the tool model.
type Summarizer struct {
	llm     *llm.Client
	profile *profile.Profile
	tz      *time.Location
	logger  *slog.Logger
}

// New creates a summarizer.
func New(client *llm.Client, prof *profile.Profile, tz *time.Location, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Summarizer{llm: client, profile: prof, tz: tz, logger: logger}
}

// Summarize condenses msgs into an independent prose summary.
func (s *Summarizer) Summarize(ctx context.Context, msgs []memory.Message) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}

	botName := s.profile.BotName("Assistant")
	userName := s.profile.UserName("User")
	prompt := prompts.SummaryPrompt(botName, userName, renderConversation(msgs))

	out, err := s.llm.Generate(ctx, prompts.SummarySystem, prompt)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	summary := strings.TrimSpace(out)
	if summary == "" {
		return "", fmt.Errorf("generate summary: empty response")
	}
	return summary, nil
}

// UpdateProfile asks the tool model for a JSON Patch against the persona
// document and applies it. A patch that fails to parse or apply falls
// back to whole-document regeneration; if that also fails the error is
// returned and the caller keeps the summary regardless.
func (s *Summarizer) UpdateProfile(ctx context.Context, msgs []memory.Message, firstTS, lastTS int64) error {
	if len(msgs) == 0 {
		return nil
	}

	conv := renderConversation(msgs)
	timeInfo := s.timeContext(firstTS, lastTS)
	current := string(s.profile.JSON())

	raw, err := s.llm.Generate(ctx, prompts.MemoryUpdateSystem,
		prompts.MemoryUpdatePrompt(conv, current, timeInfo))
	if err != nil {
		return fmt.Errorf("generate profile patch: %w", err)
	}

	patch := extractJSON(raw, '[', ']')
	if patch != "" {
		if err := s.profile.ApplyPatch([]byte(patch)); err == nil {
			return nil
		} else {
			s.logger.Warn("profile patch failed, regenerating complete document", "error", err)
			return s.regenerateDocument(ctx, conv, timeInfo, err.Error())
		}
	}

	s.logger.Warn("profile patch response held no JSON array, regenerating complete document")
	return s.regenerateDocument(ctx, conv, timeInfo, "response did not contain a JSON Patch array")
}

// regenerateDocument is the fallback path: ask for the full document,
// validating and installing it atomically. The error from each failed
// attempt feeds the next prompt.
func (s *Summarizer) regenerateDocument(ctx context.Context, conv, timeInfo, errorMessage string) error {
	var lastErr error

	for attempt := 1; attempt <= completeDocRetries; attempt++ {
		current := string(s.profile.JSON())
		raw, err := s.llm.Generate(ctx, prompts.CompleteDocumentSystem,
			prompts.CompleteDocumentPrompt(conv, current, errorMessage, timeInfo))
		if err != nil {
			return fmt.Errorf("generate complete document: %w", err)
		}

		doc := extractJSON(raw, '{', '}')
		if doc == "" {
			lastErr = fmt.Errorf("response held no JSON object")
			errorMessage = lastErr.Error()
			continue
		}

		if err := s.profile.Replace([]byte(doc)); err != nil {
			s.logger.Warn("complete document rejected",
				"attempt", attempt,
				"error", err,
			)
			lastErr = err
			errorMessage = fmt.Sprintf("previous attempt was rejected: %v. Ensure proper JSON syntax and all required fields (bot, user, memorable_events, commands_and_agreements).", err)
			continue
		}

		s.logger.Info("persona document regenerated after patch failure", "attempt", attempt)
		return nil
	}

	return fmt.Errorf("complete document fallback failed after %d attempts: %w", completeDocRetries, lastErr)
}

func (s *Summarizer) timeContext(firstTS, lastTS int64) string {
	if firstTS == 0 || lastTS == 0 {
		return ""
	}
	return fmt.Sprintf("\n**TIME CONTEXT**: These conversations occurred between %s and %s. Use this when updating time-sensitive fields like short_term emotions or memorable_events.\n",
		timeutil.Format(firstTS, s.tz), timeutil.Format(lastTS, s.tz))
}

// renderConversation flattens turns to "role: text" lines.
func renderConversation(msgs []memory.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// extractJSON pulls the first open..last close region out of a model
// response, stripping markdown fences first.
func extractJSON(response string, open, close byte) string {
	if i := strings.Index(response, "```json"); i >= 0 {
		response = response[i+len("```json"):]
		if j := strings.Index(response, "```"); j >= 0 {
			response = response[:j]
		}
	} else if i := strings.Index(response, "```"); i >= 0 {
		response = response[i+3:]
		if j := strings.Index(response, "```"); j >= 0 {
			response = response[:j]
		}
	}
	response = strings.TrimSpace(response)

	start := strings.IndexByte(response, open)
	end := strings.LastIndexByte(response, close)
	if start < 0 || end <= start {
		return ""
	}
	return response[start : end+1]
}
