package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the reply service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string

	AllowAnyOrigin bool

	BrainAdapterMode string
	BrainHTTPURL     string
	BrainAPIKey      string
	BrainModel       string
	BrainTimeout     time.Duration
	BrainConcurrency int

	SocialBaseURL      string
	SocialAccessToken  string
	SocialBotAccount   string
	SocialPollInterval time.Duration
	SocialPageSize     int

	ReplyVisibility string
	ReplyMaxChars   int

	TickInterval    time.Duration
	MaxChainSteps   int
	JanitorInterval time.Duration
	DoneRetention   time.Duration

	RetryLimit   int
	RetryBackoff time.Duration

	DeckPath string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "oblique"),
		LogLevel:           envOrDefault("APP_LOG_LEVEL", "info"),
		AllowAnyOrigin:     false,
		BrainAdapterMode:   envOrDefault("BRAIN_ADAPTER_MODE", "auto"),
		BrainHTTPURL:       stringsTrimSpace("BRAIN_HTTP_URL"),
		BrainAPIKey:        stringsTrimSpace("BRAIN_API_KEY"),
		BrainModel:         envOrDefault("BRAIN_MODEL", "oblique-chat"),
		SocialBaseURL:      stringsTrimSpace("SOCIAL_BASE_URL"),
		SocialAccessToken:  stringsTrimSpace("SOCIAL_ACCESS_TOKEN"),
		SocialBotAccount:   stringsTrimSpace("SOCIAL_BOT_ACCOUNT"),
		ReplyVisibility:    envOrDefault("REPLY_VISIBILITY", "unlisted"),
		DeckPath:           stringsTrimSpace("DECK_PATH"),
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:    15 * time.Second,
		BrainTimeout:       30 * time.Second,
		BrainConcurrency:   4,
		SocialPollInterval: 30 * time.Second,
		SocialPageSize:     20,
		TickInterval:       250 * time.Millisecond,
		MaxChainSteps:      1000,
		JanitorInterval:    time.Minute,
		DoneRetention:      time.Hour,
		ReplyMaxChars:      480,
		RetryLimit:         3,
		RetryBackoff:       2 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTimeout, err = durationFromEnv("BRAIN_TIMEOUT", cfg.BrainTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainConcurrency, err = intFromEnv("BRAIN_CONCURRENCY", cfg.BrainConcurrency)
	if err != nil {
		return Config{}, err
	}
	cfg.SocialPollInterval, err = durationFromEnv("SOCIAL_POLL_INTERVAL", cfg.SocialPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SocialPageSize, err = intFromEnv("SOCIAL_PAGE_SIZE", cfg.SocialPageSize)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyMaxChars, err = intFromEnv("REPLY_MAX_CHARS", cfg.ReplyMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.TickInterval, err = durationFromEnv("ENGINE_TICK_INTERVAL", cfg.TickInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxChainSteps, err = intFromEnv("ENGINE_MAX_CHAIN_STEPS", cfg.MaxChainSteps)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("ENGINE_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.DoneRetention, err = durationFromEnv("ENGINE_DONE_RETENTION", cfg.DoneRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryLimit, err = intFromEnv("REPLY_RETRY_LIMIT", cfg.RetryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoff, err = durationFromEnv("REPLY_RETRY_BACKOFF", cfg.RetryBackoff)
	if err != nil {
		return Config{}, err
	}

	if cfg.BrainConcurrency <= 0 {
		return Config{}, fmt.Errorf("BRAIN_CONCURRENCY must be positive")
	}
	if cfg.SocialPageSize <= 0 {
		return Config{}, fmt.Errorf("SOCIAL_PAGE_SIZE must be positive")
	}
	if cfg.ReplyMaxChars <= 0 {
		return Config{}, fmt.Errorf("REPLY_MAX_CHARS must be positive")
	}
	if cfg.SocialPollInterval < time.Second {
		return Config{}, fmt.Errorf("SOCIAL_POLL_INTERVAL must be at least 1s")
	}
	if cfg.TickInterval < 10*time.Millisecond {
		return Config{}, fmt.Errorf("ENGINE_TICK_INTERVAL must be at least 10ms")
	}
	if cfg.MaxChainSteps < 0 {
		return Config{}, fmt.Errorf("ENGINE_MAX_CHAIN_STEPS must be >= 0")
	}
	if cfg.RetryLimit < 0 {
		return Config{}, fmt.Errorf("REPLY_RETRY_LIMIT must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
