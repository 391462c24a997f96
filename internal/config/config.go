// Package config handles Anima configuration loading.
//
// Configuration is environment-keyed and profile-scoped: all state for a
// profile lives under data/<profile>/, and a .env file in that directory
// (if present) is loaded before the environment is read. Real environment
// variables always win over .env values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all Anima configuration.
type Config struct {
	Profile string
	DataDir string

	// Timezone for human-readable renderings. Stored values are always
	// UTC epoch seconds; this only affects formatting.
	Timezone *time.Location

	// Context window parameters.
	ContextWindowKeepMin        int
	ContextWindowTriggerSummary int
	RecentSummariesMax          int

	// Retrieval parameters.
	RecallSummaryPerQuery int
	RecallConvPerSummary  int
	RerankTopSummaries    int
	RerankTopConvs        int

	// Models.
	ChatModel          string
	ToolModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	RerankModel        string

	// Provider endpoints. Embedding falls back to the chat endpoint when
	// unset; rerank is optional and disabled when incomplete.
	OpenAIAPIBase    string
	OpenAIAPIKey     string
	EmbeddingAPIBase string
	EmbeddingAPIKey  string
	RerankAPIBase    string
	RerankAPIKey     string

	// Transport.
	TelegramBotToken string
	TelegramUserID   int64

	// External tool servers.
	EnableMCP     bool
	MCPConfigPath string

	// Scheduler.
	ScheduledTasksConfigPath string
	PollInterval             time.Duration

	// Logging. DEBUG_* flags raise verbosity only; they never alter
	// behaviour.
	LogLevel            string
	DebugShowFullPrompt bool
	DebugLogDatabaseOps bool
}

// Load reads configuration for the given profile. The profile's .env file
// is loaded first (missing file is fine), then every recognised key is
// read from the environment.
func Load(profile string) (*Config, error) {
	if profile == "" {
		profile = "default"
	}
	dataDir := filepath.Join("data", profile)

	// godotenv.Load never overrides variables already present in the
	// environment, which is the precedence we want.
	envPath := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	tzName := getenv("TIMEZONE", "UTC")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tzName, err)
	}

	userID, err := getenvInt64("TELEGRAM_USER_ID", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Profile:  profile,
		DataDir:  dataDir,
		Timezone: tz,

		ContextWindowKeepMin:        getenvInt("CONTEXT_WINDOW_KEEP_MIN", 12),
		ContextWindowTriggerSummary: getenvInt("CONTEXT_WINDOW_TRIGGER_SUMMARY", 24),
		RecentSummariesMax:          getenvInt("RECENT_SUMMARIES_MAX", 3),

		RecallSummaryPerQuery: getenvInt("RECALL_SUMMARY_PER_QUERY", 3),
		RecallConvPerSummary:  getenvInt("RECALL_CONV_PER_SUMMARY", 4),
		RerankTopSummaries:    getenvInt("RERANK_TOP_SUMMARIES", 3),
		RerankTopConvs:        getenvInt("RERANK_TOP_CONVS", 6),

		ChatModel:          getenv("CHAT_MODEL", "gpt-4o-mini"),
		ToolModel:          getenv("TOOL_MODEL", "gpt-4o-mini"),
		EmbeddingModel:     getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getenvInt("EMBEDDING_DIMENSION", 1536),
		RerankModel:        os.Getenv("RERANK_MODEL"),

		OpenAIAPIBase:    getenv("OPENAI_API_BASE", "https://api.openai.com/v1"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		EmbeddingAPIBase: os.Getenv("EMBEDDING_API_BASE"),
		EmbeddingAPIKey:  os.Getenv("EMBEDDING_API_KEY"),
		RerankAPIBase:    os.Getenv("RERANK_API_BASE"),
		RerankAPIKey:     os.Getenv("RERANK_API_KEY"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramUserID:   userID,

		EnableMCP:     getenvBool("ENABLE_MCP", false),
		MCPConfigPath: getenv("MCP_CONFIG_PATH", filepath.Join(dataDir, "mcp_servers.json")),

		ScheduledTasksConfigPath: getenv("SCHEDULED_TASKS_CONFIG_PATH", filepath.Join(dataDir, "scheduled_tasks.json")),
		PollInterval:             time.Duration(getenvInt("POLL_INTERVAL", 10)) * time.Second,

		LogLevel:            getenv("LOG_LEVEL", "info"),
		DebugShowFullPrompt: getenvBool("DEBUG_SHOW_FULL_PROMPT", false),
		DebugLogDatabaseOps: getenvBool("DEBUG_LOG_DATABASE_OPS", false),
	}

	if cfg.EmbeddingAPIBase == "" {
		cfg.EmbeddingAPIBase = cfg.OpenAIAPIBase
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = cfg.OpenAIAPIKey
	}

	if cfg.EmbeddingDimension <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", cfg.EmbeddingDimension)
	}
	if cfg.ContextWindowKeepMin <= 0 || cfg.ContextWindowTriggerSummary <= cfg.ContextWindowKeepMin {
		return nil, fmt.Errorf("context window parameters invalid: keep_min=%d trigger=%d",
			cfg.ContextWindowKeepMin, cfg.ContextWindowTriggerSummary)
	}

	return cfg, nil
}

// DBPath returns the SQLite database path for this profile.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "chatbot.db")
}

// ProfileDocumentPath returns the persona document (seele.json) path.
func (c *Config) ProfileDocumentPath() string {
	return filepath.Join(c.DataDir, "seele.json")
}

// RerankEnabled reports whether all three rerank settings are present.
func (c *Config) RerankEnabled() bool {
	return c.RerankAPIBase != "" && c.RerankAPIKey != "" && c.RerankModel != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
