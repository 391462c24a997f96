// Package agent implements the orchestrator: the per-turn pipeline that
// assembles the prompt, runs the tool-calling loop against the chat
// model, and persists the final assistant turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mpetralia/anima/internal/memory"
	"github.com/mpetralia/anima/internal/profile"
	"github.com/mpetralia/anima/internal/prompts"
	"github.com/mpetralia/anima/internal/retriever"
	"github.com/mpetralia/anima/internal/store"
	"github.com/mpetralia/anima/internal/timeutil"
	"github.com/mpetralia/anima/internal/tools"
)

// maxToolIterations bounds the tool-calling loop per turn.
const maxToolIterations = 8

// maxToolIterationsReply is persisted as the assistant turn when the
// loop bound is exceeded.
const maxToolIterationsReply = "I hit the maximum number of tool iterations while working on that. Could you rephrase or simplify the request?"

// ChatClient is the slice of the LLM client the orchestrator needs.
// Satisfied by llm.Client.
type ChatClient interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error)
}

// Agent is the orchestrator. A single mutex serialises user turns,
// scheduler firings, and session control; concurrent turns never
// interleave.
type Agent struct {
	mu sync.Mutex

	memory    *memory.Manager
	retriever *retriever.Retriever
	llm       ChatClient
	profile   *profile.Profile
	registry  *tools.Registry
	tz        *time.Location
	logger    *slog.Logger
	now       func() int64
}

// New creates the orchestrator. now may be nil for the real clock.
func New(mem *memory.Manager, ret *retriever.Retriever, chat ChatClient, prof *profile.Profile, registry *tools.Registry, tz *time.Location, logger *slog.Logger, now func() int64) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if tz == nil {
		tz = time.UTC
	}
	if now == nil {
		now = timeutil.Now
	}
	return &Agent{
		memory:    mem,
		retriever: ret,
		llm:       chat,
		profile:   prof,
		registry:  registry,
		tz:        tz,
		logger:    logger,
		now:       now,
	}
}

// HandleUserMessage runs one user turn: persist the input, recall
// related memories, run the tool loop, persist the reply.
func (a *Agent) HandleUserMessage(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, userVec, err := a.memory.AddUserTurn(ctx, text)
	if err != nil {
		return "", fmt.Errorf("persist user turn: %w", err)
	}

	// The window now ends with the input we are responding to; the
	// builder renders the request separately.
	history := a.memory.ContextMessages()
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	recalled := a.retriever.Retrieve(ctx, text, userVec,
		a.memory.LastAssistantText(), a.memory.SessionID(), a.memory.RecentSummaryIDs())

	reply, err := a.converse(ctx, history, recalled, text, a.registry)
	if err != nil {
		return "", err
	}

	if _, _, err := a.memory.AddAssistantTurn(ctx, reply); err != nil {
		return "", fmt.Errorf("persist assistant turn: %w", err)
	}
	return reply, nil
}

// HandleScheduledTask runs a scheduler-initiated turn. The synthetic
// prompt is never persisted; only the assistant response is. The
// task-management tool is hidden so the model cannot schedule further
// tasks from inside a scheduled turn.
func (a *Agent) HandleScheduledTask(ctx context.Context, task *store.Task, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := a.memory.ContextMessages()

	// Retrieval keys off the task message, not the wrapped prompt.
	recalled := a.retriever.Retrieve(ctx, task.Message, nil,
		a.memory.LastAssistantText(), a.memory.SessionID(), a.memory.RecentSummaryIDs())

	reply, err := a.converse(ctx, history, recalled, prompt,
		a.registry.Without(tools.ScheduledTaskToolName))
	if err != nil {
		return "", err
	}

	if _, _, err := a.memory.AddAssistantTurn(ctx, reply); err != nil {
		return "", fmt.Errorf("persist assistant turn: %w", err)
	}
	return reply, nil
}

// NewSession finalises and rotates the active session (/new).
func (a *Agent) NewSession(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.NewSession(ctx)
}

// ResetSession hard-deletes the active session (/reset).
func (a *Agent) ResetSession(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.ResetSession(ctx)
}

// converse assembles the request and runs the tool-calling loop until
// the model produces a final text or the iteration bound is hit.
func (a *Agent) converse(ctx context.Context, history []memory.Message, recalled retriever.Result, currentRequest string, registry *tools.Registry) (string, error) {
	system := prompts.SystemPrompt(
		string(a.profile.JSON()),
		a.profile.BotName("Assistant"),
		a.profile.UserName("User"),
		a.memory.RecentSummaries(),
	)

	sumLines := make([]string, len(recalled.Summaries))
	for i, s := range recalled.Summaries {
		sumLines[i] = prompts.FormatSummaryLine(s.HumanTime, s.Text)
	}
	turnLines := make([]string, len(recalled.Turns))
	for i, t := range recalled.Turns {
		turnLines[i] = prompts.FormatTurnLine(t.HumanTime, t.Role, t.Text)
	}

	msgs := prompts.BuildMessages(prompts.ChatRequest{
		System:             system,
		History:            history,
		RetrievedSummaries: sumLines,
		RetrievedTurns:     turnLines,
		CurrentTime:        timeutil.FormatWithZone(a.now(), a.tz),
		CurrentRequest:     currentRequest,
	})

	toolDefs := registry.List()

	for iter := 0; iter < maxToolIterations; iter++ {
		msg, err := a.llm.Chat(ctx, msgs, toolDefs)
		if err != nil {
			return "", fmt.Errorf("chat call: %w", err)
		}

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		msgs = append(msgs, msg)

		for _, call := range msg.ToolCalls {
			a.logger.Info("executing tool",
				"tool", call.Function.Name,
				"iteration", iter,
			)

			out, err := registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				// Tool failures go back to the model; the loop continues.
				a.logger.Warn("tool execution failed",
					"tool", call.Function.Name,
					"error", err,
				)
				out = "Error: " + err.Error()
			}

			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				ToolCallID: call.ID,
			})
		}
	}

	a.logger.Warn("tool iteration bound exceeded", "max", maxToolIterations)
	return maxToolIterationsReply, nil
}
