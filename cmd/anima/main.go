// Anima is a persona chatbot daemon with a three-tier memory: the live
// context window, vector/full-text retrieval over past sessions, and an
// LLM-curated persona document embedded in every prompt.
//
// It talks to a single authorised correspondent over Telegram, condenses
// old turns into retrievable summaries, and runs a persistent scheduler
// that can start conversations on its own.
//
// Usage:
//
//	anima [-profile name] [-log-level level]
//
// Configuration is environment-keyed; a .env file in the profile's data
// directory (data/<profile>/.env) is loaded first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mpetralia/anima/internal/agent"
	"github.com/mpetralia/anima/internal/config"
	"github.com/mpetralia/anima/internal/llm"
	"github.com/mpetralia/anima/internal/mcp"
	"github.com/mpetralia/anima/internal/memory"
	"github.com/mpetralia/anima/internal/profile"
	"github.com/mpetralia/anima/internal/retriever"
	"github.com/mpetralia/anima/internal/scheduler"
	"github.com/mpetralia/anima/internal/store"
	"github.com/mpetralia/anima/internal/summarizer"
	"github.com/mpetralia/anima/internal/telegram"
	"github.com/mpetralia/anima/internal/tools"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	profileFlag := flag.String("profile", "default", "profile name (state lives under data/<profile>/)")
	logLevelFlag := flag.String("log-level", "", "log level: trace, debug, info, warn, error (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load(*profileFlag)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	levelStr := cfg.LogLevel
	if *logLevelFlag != "" {
		levelStr = *logLevelFlag
	}
	level, err := config.ParseLogLevel(levelStr)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	slog.SetDefault(logger)

	logger.Info("starting anima",
		"profile", cfg.Profile,
		"chat_model", cfg.ChatModel,
		"embedding_dimension", cfg.EmbeddingDimension,
	)

	if cfg.TelegramBotToken == "" || cfg.TelegramUserID == 0 {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_USER_ID are required")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage.
	st, err := store.Open(cfg.DBPath(), cfg.EmbeddingDimension, logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Persona document.
	prof := profile.New(cfg.ProfileDocumentPath(), logger.With("component", "profile"))
	if err := prof.Load(); err != nil {
		return fmt.Errorf("load persona document: %w", err)
	}

	// Model clients.
	chatClient := llm.New(llm.Config{
		APIBase:             cfg.OpenAIAPIBase,
		APIKey:              cfg.OpenAIAPIKey,
		ChatModel:           cfg.ChatModel,
		ToolModel:           cfg.ToolModel,
		DebugShowFullPrompt: cfg.DebugShowFullPrompt,
	}, logger.With("component", "llm"))

	embedder := llm.NewEmbedding(llm.EmbeddingConfig{
		APIBase:   cfg.EmbeddingAPIBase,
		APIKey:    cfg.EmbeddingAPIKey,
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	}, logger.With("component", "embeddings"))

	reranker := llm.NewReranker(llm.RerankerConfig{
		APIBase: cfg.RerankAPIBase,
		APIKey:  cfg.RerankAPIKey,
		Model:   cfg.RerankModel,
	}, logger.With("component", "reranker"))

	// Memory.
	condenser := summarizer.New(chatClient, prof, cfg.Timezone, logger.With("component", "summarizer"))
	mem := memory.NewManager(st, embedder, condenser, memory.Config{
		KeepMin:            cfg.ContextWindowKeepMin,
		Trigger:            cfg.ContextWindowTriggerSummary,
		RecentSummariesMax: cfg.RecentSummariesMax,
	}, logger.With("component", "memory"), nil)
	if err := mem.Start(ctx); err != nil {
		return fmt.Errorf("start memory manager: %w", err)
	}

	ret := retriever.New(st, embedder, reranker, retriever.Config{
		SummaryPerQuery: cfg.RecallSummaryPerQuery,
		ConvPerSummary:  cfg.RecallConvPerSummary,
		TopSummaries:    cfg.RerankTopSummaries,
		TopConvs:        cfg.RerankTopConvs,
	}, cfg.Timezone, logger.With("component", "retriever"))

	// Scheduler and tools. The scheduler's fire callback is wired after
	// the agent and transport exist.
	sched := scheduler.New(st, nil, cfg.Timezone, cfg.PollInterval, logger.With("component", "scheduler"), nil)

	registry := tools.NewRegistry()
	registry.Register(tools.NewMemorySearchTool(st, mem.SessionID, cfg.Timezone))
	registry.Register(tools.NewScheduledTaskTool(sched))

	// External tool servers.
	var mcpClients []*mcp.Client
	if cfg.EnableMCP {
		servers, err := mcp.LoadServersFile(cfg.MCPConfigPath, logger.With("component", "mcp"))
		if err != nil {
			return fmt.Errorf("load tool server config: %w", err)
		}
		for _, sc := range servers {
			mcpLogger := logger.With("component", "mcp")
			transport, err := mcp.NewTransport(sc, mcpLogger)
			if err != nil {
				logger.Error("tool server transport failed", "server", sc.Name, "error", err)
				continue
			}
			client := mcp.NewClient(sc.Name, transport, mcpLogger)

			connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err = client.Initialize(connectCtx)
			if err == nil {
				_, err = mcp.BridgeTools(connectCtx, client, registry, mcpLogger)
			}
			cancel()

			if err != nil {
				logger.Error("tool server connection failed", "server", sc.Name, "error", err)
				client.Close()
				continue
			}
			mcpClients = append(mcpClients, client)
		}
	}
	defer func() {
		for _, c := range mcpClients {
			c.Close()
		}
	}()

	// Orchestrator.
	orch := agent.New(mem, ret, chatClient, prof, registry, cfg.Timezone, logger.With("component", "agent"), nil)

	// Transport.
	bot, err := telegram.New(cfg.TelegramBotToken, cfg.TelegramUserID, orch, logger.With("component", "telegram"))
	if err != nil {
		return err
	}

	// Scheduler firings run through the orchestrator (with its recursion
	// guard) and the response is pushed to the user.
	sched.SetFire(func(fireCtx context.Context, task *store.Task, prompt string) error {
		response, err := orch.HandleScheduledTask(fireCtx, task, prompt)
		if err != nil {
			return err
		}
		bot.SendToUser(response)
		return nil
	})

	if added, err := sched.LoadSeedFile(cfg.ScheduledTasksConfigPath); err != nil {
		logger.Warn("loading seed tasks failed", "error", err)
	} else if added > 0 {
		logger.Info("seed tasks loaded", "added", added)
	}

	sched.Start(ctx)
	defer sched.Stop()

	logger.Info("anima ready")
	return bot.Run(ctx)
}
