package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.Calendar.TimeZone != "Asia/Beirut" {
		t.Fatalf("unexpected timezone %q", cfg.Calendar.TimeZone)
	}
	if cfg.Knowledge.TopK != 3 {
		t.Fatalf("unexpected top k %d", cfg.Knowledge.TopK)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("provider should be lower-cased, got %q", cfg.LLM.Provider)
	}
	if cfg.RateLimit.WindowDuration != 30*time.Second {
		t.Fatalf("unexpected window %v", cfg.RateLimit.WindowDuration)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("malformed duration should fall back, got %v", cfg.SessionTTL)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "cohere")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{AppEnv: "production", FrontendURL: "http://localhost:3000"}
	if cfg.IsDevelopment() {
		t.Fatal("APP_ENV should take precedence over frontend URL")
	}
	cfg = &Config{FrontendURL: "http://127.0.0.1:5173"}
	if !cfg.IsDevelopment() {
		t.Fatal("loopback frontend should count as development")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Port:   "8080",
		DBPath: "",
		LLM:    LLMConfig{Provider: "openai"},
		ConversationLog: ConversationLogConfig{
			Dir: "logs", GlobalPath: "logs/all.ndjson", QueueSize: 1,
		},
		RateLimit: RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute},
		Breaker:   BreakerConfig{FailureRatio: 2},
		Knowledge: KnowledgeConfig{TopK: 3},
		Calendar:  CalendarConfig{TimeZone: "Asia/Beirut"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DB_PATH", "BREAKER_FAILURE_RATIO"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %q", want, err)
		}
	}
}

func TestEnvParsersFallBack(t *testing.T) {
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_INT", " 42 ")
	t.Setenv("X_DUR", "-5s")
	if !getEnvBool("X_BOOL", true) {
		t.Error("unparseable bool should fall back")
	}
	if got := getEnvInt("X_INT", 1); got != 42 {
		t.Errorf("expected trimmed int, got %d", got)
	}
	if got := getEnvDuration("X_DUR", time.Second); got != time.Second {
		t.Errorf("negative duration should fall back, got %v", got)
	}
}
