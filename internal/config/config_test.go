package config

import (
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("testprofile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ContextWindowKeepMin != 12 {
		t.Errorf("ContextWindowKeepMin = %d, want 12", cfg.ContextWindowKeepMin)
	}
	if cfg.ContextWindowTriggerSummary != 24 {
		t.Errorf("ContextWindowTriggerSummary = %d, want 24", cfg.ContextWindowTriggerSummary)
	}
	if cfg.RecallSummaryPerQuery != 3 || cfg.RecallConvPerSummary != 4 {
		t.Errorf("recall params = %d/%d, want 3/4", cfg.RecallSummaryPerQuery, cfg.RecallConvPerSummary)
	}
	if cfg.PollInterval.Seconds() != 10 {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.Timezone.String() != "UTC" {
		t.Errorf("Timezone = %v, want UTC", cfg.Timezone)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONTEXT_WINDOW_KEEP_MIN", "2")
	t.Setenv("CONTEXT_WINDOW_TRIGGER_SUMMARY", "4")
	t.Setenv("TIMEZONE", "America/Chicago")
	t.Setenv("TELEGRAM_USER_ID", "12345")

	cfg, err := Load("testprofile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ContextWindowKeepMin != 2 || cfg.ContextWindowTriggerSummary != 4 {
		t.Errorf("window params = %d/%d, want 2/4", cfg.ContextWindowKeepMin, cfg.ContextWindowTriggerSummary)
	}
	if cfg.Timezone.String() != "America/Chicago" {
		t.Errorf("Timezone = %v, want America/Chicago", cfg.Timezone)
	}
	if cfg.TelegramUserID != 12345 {
		t.Errorf("TelegramUserID = %d, want 12345", cfg.TelegramUserID)
	}
}

func TestLoadRejectsInvalidWindow(t *testing.T) {
	t.Setenv("CONTEXT_WINDOW_KEEP_MIN", "24")
	t.Setenv("CONTEXT_WINDOW_TRIGGER_SUMMARY", "12")

	if _, err := Load("testprofile"); err == nil {
		t.Error("expected error for trigger <= keep_min")
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Setenv("TIMEZONE", "Not/AZone")

	if _, err := Load("testprofile"); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

func TestRerankEnabled(t *testing.T) {
	cfg := &Config{}
	if cfg.RerankEnabled() {
		t.Error("rerank should be disabled with no settings")
	}

	cfg.RerankAPIBase = "https://api.example.com/v1"
	cfg.RerankAPIKey = "key"
	if cfg.RerankEnabled() {
		t.Error("rerank should be disabled without a model")
	}

	cfg.RerankModel = "rerank-v2"
	if !cfg.RerankEnabled() {
		t.Error("rerank should be enabled with all three settings")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  info  ", slog.LevelInfo, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
