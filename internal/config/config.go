// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Reward store settings. The first non-empty DSN wins: Postgres,
	// then Redis, then SQLite. With none set the in-memory store is used.
	DatabaseURL string
	RedisURL    string
	SQLitePath  string
	PendingTTL  time.Duration // Reservations older than this are reaped.

	// Scoring rules settings.
	RulesDir string // Directory searched for scoring-rules JSON files.
	RulesEnv string // Environment name used for per-environment rule files.

	// Discord settings.
	DiscordToken   string
	DiscordAPIBase string // Override for tests; empty means the public API.

	// Reward issuance settings.
	RewardAPIURL    string // Empty means the stub issuer.
	RewardAPISecret string
	AgentID         string
	SelfUserID      string // Messages authored by this user are skipped.
	IssueTimeout    time.Duration

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("REWARDER_PORT", 8080),
		ReadTimeout:         envDuration("REWARDER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("REWARDER_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		RedisURL:            envStr("REDIS_URL", ""),
		SQLitePath:          envStr("REWARDER_SQLITE_PATH", ""),
		PendingTTL:          envDuration("REWARDER_PENDING_TTL", 10*time.Minute),
		RulesDir:            envStr("REWARDER_RULES_DIR", ""),
		RulesEnv:            envStr("REWARDER_ENV", ""),
		DiscordToken:        envStr("DISCORD_BOT_TOKEN", ""),
		DiscordAPIBase:      envStr("REWARDER_DISCORD_API_BASE", ""),
		RewardAPIURL:        envStr("REWARDER_REWARD_API_URL", ""),
		RewardAPISecret:     envStr("REWARDER_REWARD_API_SECRET", ""),
		AgentID:             envStr("REWARDER_AGENT_ID", "rewarder"),
		SelfUserID:          envStr("REWARDER_SELF_USER_ID", ""),
		IssueTimeout:        envDuration("REWARDER_ISSUE_TIMEOUT", 15*time.Second),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "rewarder"),
		LogLevel:            envStr("REWARDER_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("REWARDER_MAX_REQUEST_BODY_BYTES", 1*1024*1024)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: REWARDER_PORT must be in 1..65535")
	}
	if c.PendingTTL <= 0 {
		return fmt.Errorf("config: REWARDER_PENDING_TTL must be positive")
	}
	if c.IssueTimeout < 0 {
		return fmt.Errorf("config: REWARDER_ISSUE_TIMEOUT must not be negative")
	}
	if c.AgentID == "" {
		return fmt.Errorf("config: REWARDER_AGENT_ID is required")
	}
	if c.RewardAPIURL != "" && c.RewardAPISecret == "" {
		return fmt.Errorf("config: REWARDER_REWARD_API_SECRET is required when REWARDER_REWARD_API_URL is set")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: REWARDER_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
