// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds all application configuration.
type Config struct {
	Port   string
	DBPath string

	// Completion provider settings.
	Provider          string
	ModelName         string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	GeminiAPIKey      string
	CompletionTimeout time.Duration

	// Persistence debounce. A turn is flushed to the store when the session has
	// never been saved and SaveFirstTurn is set, or when SaveInterval has elapsed
	// since the last successful flush.
	SaveInterval  time.Duration
	SaveFirstTurn bool

	// Session cache bounds.
	SessionTTL      time.Duration
	SessionLimit    int
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "./data/chat_history.db"),
		Provider:          strings.ToLower(getEnv("PROVIDER", ProviderOpenAI)),
		ModelName:         getEnv("MODEL_NAME", "deepseek-ai/DeepSeek-V2.5"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.siliconflow.cn/v1"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 2*time.Minute),
		SaveInterval:      getEnvDuration("SAVE_INTERVAL", 10*time.Second),
		SaveFirstTurn:     getEnvBool("SAVE_FIRST_TURN", true),
		SessionTTL:        getEnvDuration("SESSION_TTL", time.Hour),
		SessionLimit:      getEnvInt("SESSION_LIMIT", 1024),
		CleanupInterval:   getEnvDuration("CLEANUP_INTERVAL", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Provider)
	}
	if c.ModelName == "" {
		return fmt.Errorf("MODEL_NAME cannot be empty")
	}
	if c.SaveInterval <= 0 {
		return fmt.Errorf("SAVE_INTERVAL must be > 0")
	}
	if c.SessionLimit <= 0 {
		return fmt.Errorf("SESSION_LIMIT must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
