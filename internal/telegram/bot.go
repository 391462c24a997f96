// Package telegram is the chat transport adapter: it long-polls the Bot
// API for messages from the single authorised correspondent and renders
// assistant replies back to them.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Orchestrator is the slice of the agent the transport drives.
type Orchestrator interface {
	HandleUserMessage(ctx context.Context, text string) (string, error)
	NewSession(ctx context.Context) (int64, error)
	ResetSession(ctx context.Context) (int64, error)
}

// storageApology is sent when a turn fails; the input is never silently
// dropped — the user sees the failure and can retry.
const storageApology = "Sorry, an error occurred while processing your message. Please try again."

// Bot is the Telegram transport.
type Bot struct {
	api    *tgbotapi.BotAPI
	userID int64
	agent  Orchestrator
	logger *slog.Logger
}

// New creates the transport for the given bot token and authorised user.
func New(token string, userID int64, agent Orchestrator, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to Telegram: %w", err)
	}

	logger.Info("telegram bot connected", "username", api.Self.UserName)
	return &Bot{api: api, userID: userID, agent: agent, logger: logger}, nil
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil {
		return
	}

	if msg.From.ID != b.userID {
		b.logger.Warn("unauthorized message", "from", msg.From.ID)
		b.reply(msg.Chat.ID, "Unauthorized.")
		return
	}

	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID,
			"Hi! Just talk to me.\n\n/new — archive this session and start fresh\n/reset — discard this session entirely")
	case "new":
		b.handleNew(ctx, msg.Chat.ID)
	case "reset":
		b.handleReset(ctx, msg.Chat.ID)
	default:
		b.handleText(ctx, msg.Chat.ID, msg.Text)
	}
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	stopTyping := b.keepTyping(ctx, chatID)
	defer stopTyping()

	response, err := b.agent.HandleUserMessage(ctx, text)
	if err != nil {
		b.logger.Error("turn failed", "error", err)
		b.reply(chatID, storageApology)
		return
	}

	b.SendFormatted(chatID, response)
}

func (b *Bot) handleNew(ctx context.Context, chatID int64) {
	if _, err := b.agent.NewSession(ctx); err != nil {
		b.logger.Error("session rotation failed", "error", err)
		b.reply(chatID, "Error creating a new session.")
		return
	}
	b.reply(chatID,
		"New session started. Previous conversations were summarized and archived — I can still recall them when relevant.")
}

func (b *Bot) handleReset(ctx context.Context, chatID int64) {
	if _, err := b.agent.ResetSession(ctx); err != nil {
		b.logger.Error("session reset failed", "error", err)
		b.reply(chatID, "Error resetting the session.")
		return
	}
	b.reply(chatID,
		"Session reset. The current conversation was deleted; memories from earlier sessions remain.")
}

// SendFormatted renders text as Telegram HTML and delivers it in
// segments, falling back to plain text when HTML parsing fails.
func (b *Bot) SendFormatted(chatID int64, text string) {
	formatted := FormatHTML(text)
	segments := SplitSegments(formatted, maxSegmentLen)

	for i, segment := range segments {
		out := tgbotapi.NewMessage(chatID, segment)
		out.ParseMode = tgbotapi.ModeHTML

		if _, err := b.api.Send(out); err != nil {
			b.logger.Warn("HTML send failed, retrying as plain text",
				"segment", i+1,
				"error", err,
			)
			if _, err := b.api.Send(tgbotapi.NewMessage(chatID, segment)); err != nil {
				b.logger.Error("sending segment failed", "segment", i+1, "error", err)
			}
		}

		if i < len(segments)-1 {
			time.Sleep(time.Second)
		}
	}
}

// SendToUser delivers text to the authorised user's chat. Used for
// scheduler-initiated responses.
func (b *Bot) SendToUser(text string) {
	b.SendFormatted(b.userID, text)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("sending reply failed", "error", err)
	}
}

// keepTyping shows the typing indicator until the returned stop function
// is called.
func (b *Bot) keepTyping(ctx context.Context, chatID int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for {
			action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
			if _, err := b.api.Request(action); err != nil {
				b.logger.Debug("typing indicator failed", "error", err)
			}
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() { close(done) }
}
