// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

var providers = []string{"openai", "anthropic", "gemini"}

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	AppEnv          string
	DBPath          string
	SessionTTL      time.Duration
	GRPCHealthAddr  string
	MetricsEnabled  bool
	ConversationLog ConversationLogConfig
	RateLimit       RateLimitConfig
	SSE             SSEConfig
	LLM             LLMConfig
	Breaker         BreakerConfig
	Knowledge       KnowledgeConfig
	Namespaces      NamespaceConfig
	Catalog         CatalogConfig
	Calendar        CalendarConfig
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// SSEConfig tunes the streaming chat endpoint.
type SSEConfig struct {
	MaxRequestBodySize int64
	RetryDelay         time.Duration
	KeepaliveInterval  time.Duration
}

// LLMConfig selects the chat provider and models.
type LLMConfig struct {
	Provider        string // "openai", "anthropic" or "gemini"
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	ChatModel       string
	ClassifierModel string
	EmbeddingModel  string
	MaxTokens       int
	Timeout         time.Duration
	MaxRetries      int
}

// BreakerConfig configures the circuit breaker in front of LLM calls.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// KnowledgeConfig tunes retrieval.
type KnowledgeConfig struct {
	TopK               int
	ClassifierCacheTTL time.Duration
	EmbeddingCacheSize int
}

// NamespaceConfig locates the agent namespace registry.
type NamespaceConfig struct {
	JSON      string
	Path      string
	HotReload bool
}

// CatalogConfig locates the scraped course catalog.
type CatalogConfig struct {
	Path string
}

// CalendarConfig holds Google OAuth client settings.
type CalendarConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TimeZone     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AppEnv:         getEnv("APP_ENV", ""),
		DBPath:         getEnv("DB_PATH", "./data/advisor.db"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			MaxRequestBodySize: int64(getEnvInt("SSE_MAX_REQUEST_BODY_SIZE", 1<<20)),
			RetryDelay:         getEnvDuration("SSE_RETRY_DELAY", 5*time.Second),
			KeepaliveInterval:  getEnvDuration("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
		},
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			ChatModel:       getEnv("CHAT_MODEL", "gpt-4o"),
			ClassifierModel: getEnv("CLASSIFIER_MODEL", "gpt-4o-mini"),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 2048),
			Timeout:         getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:      getEnvInt("LLM_MAX_RETRIES", 2),
		},
		Breaker: BreakerConfig{
			MaxRequests:  uint32(getEnvInt("BREAKER_MAX_REQUESTS", 5)),
			Interval:     getEnvDuration("BREAKER_INTERVAL", 30*time.Second),
			Timeout:      getEnvDuration("BREAKER_TIMEOUT", 60*time.Second),
			FailureRatio: getEnvFloat("BREAKER_FAILURE_RATIO", 0.8),
			MinRequests:  uint32(getEnvInt("BREAKER_MIN_REQUESTS", 5)),
		},
		Knowledge: KnowledgeConfig{
			TopK:               getEnvInt("KNOWLEDGE_TOP_K", 3),
			ClassifierCacheTTL: getEnvDuration("CLASSIFIER_CACHE_TTL", 10*time.Minute),
			EmbeddingCacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 1024),
		},
		Namespaces: NamespaceConfig{
			JSON:      getEnv("AGENT_NAMESPACE_CONFIG", ""),
			Path:      getEnv("AGENT_NAMESPACE_CONFIG_PATH", "agent_namespaces.yaml"),
			HotReload: getEnvBool("NAMESPACE_HOT_RELOAD", false),
		},
		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", "./data/courses.json"),
		},
		Calendar: CalendarConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/gcalendar/callback"),
			TimeZone:     getEnv("CALENDAR_TIMEZONE", "Asia/Beirut"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.Port == "", "PORT cannot be empty"},
		{c.DBPath == "", "DB_PATH cannot be empty"},
		{c.ConversationLog.Dir == "", "CONVERSATION_LOG_DIR cannot be empty"},
		{c.ConversationLog.GlobalPath == "", "CONVERSATION_LOG_GLOBAL_PATH cannot be empty"},
		{c.ConversationLog.QueueSize <= 0, "CONVERSATION_LOG_QUEUE_SIZE must be > 0"},
		{c.RateLimit.RequestsPerWindow <= 0, "RATE_LIMIT_REQUESTS must be > 0"},
		{c.RateLimit.WindowDuration <= 0, "RATE_LIMIT_WINDOW must be > 0"},
		{!slices.Contains(providers, c.LLM.Provider), fmt.Sprintf("LLM_PROVIDER must be one of %s (got %q)", strings.Join(providers, ", "), c.LLM.Provider)},
		{c.LLM.MaxRetries < 0, "LLM_MAX_RETRIES must be >= 0"},
		{c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1, "BREAKER_FAILURE_RATIO must be in (0, 1]"},
		{c.Knowledge.TopK <= 0, "KNOWLEDGE_TOP_K must be > 0"},
	}
	var errs []error
	for _, ch := range checks {
		if ch.bad {
			errs = append(errs, errors.New(ch.msg))
		}
	}
	if _, err := time.LoadLocation(c.Calendar.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("CALENDAR_TIMEZONE is invalid: %w", err))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.AppEnv != "" {
		return c.AppEnv == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// CalendarEnabled reports whether Google OAuth credentials are configured.
func (c *Config) CalendarEnabled() bool {
	return c.Calendar.ClientID != "" && c.Calendar.ClientSecret != ""
}

// lookup returns the parsed value of key, or fallback when the variable is
// unset or does not parse.
func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	return lookup(key, fallback, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	})
}

func getEnvInt(key string, fallback int) int {
	return lookup(key, fallback, strconv.Atoi)
}

func getEnvFloat(key string, fallback float64) float64 {
	return lookup(key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return lookup(key, fallback, func(s string) (time.Duration, error) {
		d, err := time.ParseDuration(s)
		if err == nil && d <= 0 {
			err = fmt.Errorf("duration must be positive: %s", s)
		}
		return d, err
	})
}
