package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	Catalog            CatalogConfig
	Entry              EntryConfig
	RateLimit          RateLimitConfig
}

// CatalogConfig configures the catalog backend client.
type CatalogConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	CacheTTL    time.Duration
}

// EntryConfig holds the local defaults of the entry engine.
type EntryConfig struct {
	BarcodeMode          string
	Debounce             time.Duration
	CodeMinLength        int
	DescriptionMinLength int
	MaxSuggestions       int
	BlurGrace            time.Duration
	SessionTTL           time.Duration
	StrictStock          bool
	AutoFocusCode        bool
	AutoFocusQuantity    bool
}

// RateLimitConfig bounds field input per client.
type RateLimitConfig struct {
	InputPerSecond int
	OpenPerMinute  int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Catalog: CatalogConfig{
			BaseURL:     strings.TrimSpace(k.String("CATALOG_BASE_URL")),
			Timeout:     parseDuration(k.String("CATALOG_TIMEOUT"), "3s"),
			MaxAttempts: parseInt(k.String("CATALOG_MAX_ATTEMPTS"), 2),
			CacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),
		},
		Entry: EntryConfig{
			BarcodeMode:          strings.ToUpper(valueOrDefault(k.String("ENTRY_BARCODE_MODE"), "DEFAULT")),
			Debounce:             parseDuration(k.String("ENTRY_DEBOUNCE"), "250ms"),
			CodeMinLength:        parseInt(k.String("ENTRY_CODE_MIN_LENGTH"), 1),
			DescriptionMinLength: parseInt(k.String("ENTRY_DESCRIPTION_MIN_LENGTH"), 2),
			MaxSuggestions:       parseInt(k.String("ENTRY_MAX_SUGGESTIONS"), 50),
			BlurGrace:            parseDuration(k.String("ENTRY_BLUR_GRACE"), "200ms"),
			SessionTTL:           parseDuration(k.String("ENTRY_SESSION_TTL"), "2h"),
			StrictStock:          parseBool(k.String("ENTRY_STRICT_STOCK")),
			AutoFocusCode:        parseBoolDefault(k.String("ENTRY_AUTOFOCUS_CODE"), true),
			AutoFocusQuantity:    parseBool(k.String("ENTRY_AUTOFOCUS_QUANTITY")),
		},
		RateLimit: RateLimitConfig{
			InputPerSecond: parseInt(k.String("RATE_LIMIT_INPUT_PER_SECOND"), 20),
			OpenPerMinute:  parseInt(k.String("RATE_LIMIT_OPEN_PER_MINUTE"), 30),
		},
	}

	if cfg.Catalog.BaseURL == "" {
		return nil, errors.New("CATALOG_BASE_URL is required")
	}
	switch cfg.Entry.BarcodeMode {
	case "DEFAULT", "CANTIDAD", "DIRECTO":
	default:
		return nil, fmt.Errorf("ENTRY_BARCODE_MODE %q is not one of DEFAULT, CANTIDAD, DIRECTO", cfg.Entry.BarcodeMode)
	}
	if cfg.Entry.Debounce < 150*time.Millisecond || cfg.Entry.Debounce > 300*time.Millisecond {
		return nil, fmt.Errorf("ENTRY_DEBOUNCE %s must be between 150ms and 300ms", cfg.Entry.Debounce)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
