// Package llm provides the chat, embedding, and rerank clients. All three
// speak to OpenAI-compatible endpoints; each model family can point at a
// different base URL and key.
package llm

import (
	"context"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mpetralia/anima/internal/config"
	"github.com/mpetralia/anima/internal/httpkit"
)

// Config holds chat client settings.
type Config struct {
	APIBase   string
	APIKey    string
	ChatModel string
	ToolModel string

	// Timeout applies to every completion request. Zero means two
	// minutes.
	Timeout time.Duration

	// DebugShowFullPrompt logs complete request payloads at TRACE.
	DebugShowFullPrompt bool
}

// Client wraps an OpenAI-compatible chat endpoint. The chat model carries
// the conversation; the tool model runs summarisation and profile
// updates.
type Client struct {
	api       *openai.Client
	chatModel string
	toolModel string
	debugFull bool
	logger    *slog.Logger
}

// New creates a chat client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		oc.BaseURL = cfg.APIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	oc.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(timeout))

	return &Client{
		api:       openai.NewClientWithConfig(oc),
		chatModel: cfg.ChatModel,
		toolModel: cfg.ToolModel,
		debugFull: cfg.DebugShowFullPrompt,
		logger:    logger,
	}
}

// ChatModel returns the conversational model identifier.
func (c *Client) ChatModel() string { return c.chatModel }

// ToolModel returns the summarisation/utility model identifier.
func (c *Client) ToolModel() string { return c.toolModel }

// Chat issues a single chat-model completion. The conversation model is
// always used, even when tools are advertised; tool-call iteration is the
// orchestrator's job.
func (c *Client) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	}
	if len(tools) > 0 {
		req.Tools = tools
	}

	if c.debugFull {
		c.logger.Log(ctx, config.LevelTrace, "chat request",
			"model", c.chatModel,
			"messages", len(messages),
			"tools", len(tools),
		)
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, wrapUpstream("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, upstreamf("chat completion: empty choices")
	}

	msg := resp.Choices[0].Message
	if c.debugFull {
		c.logger.Log(ctx, config.LevelTrace, "chat response",
			"content_len", len(msg.Content),
			"tool_calls", len(msg.ToolCalls),
		)
	}
	return msg, nil
}

// Generate issues a tool-model completion with a system/user prompt pair
// and no tools. Used by the summariser and profile patcher.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.toolModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", wrapUpstream("tool model completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", upstreamf("tool model completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
