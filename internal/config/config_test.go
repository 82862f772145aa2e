package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"CATALOG_BASE_URL":           "http://catalog.local",
		"ENTRY_BARCODE_MODE":         "",
		"ENTRY_DEBOUNCE":             "",
		"ENTRY_STRICT_STOCK":         "",
		"ENTRY_AUTOFOCUS_CODE":       "",
		"ENTRY_AUTOFOCUS_QUANTITY":   "",
		"CATALOG_MAX_ATTEMPTS":       "",
		"CORS_ALLOWED_ORIGINS":       "",
		"PORT":                       "",
		"RATE_LIMIT_OPEN_PER_MINUTE": "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "http://catalog.local", cfg.Catalog.BaseURL)
	require.Equal(t, 3*time.Second, cfg.Catalog.Timeout)
	require.Equal(t, 2, cfg.Catalog.MaxAttempts)
	require.Equal(t, "DEFAULT", cfg.Entry.BarcodeMode)
	require.Equal(t, 250*time.Millisecond, cfg.Entry.Debounce)
	require.Equal(t, 2, cfg.Entry.DescriptionMinLength)
	require.Equal(t, 50, cfg.Entry.MaxSuggestions)
	require.False(t, cfg.Entry.StrictStock)
	require.True(t, cfg.Entry.AutoFocusCode)
	require.False(t, cfg.Entry.AutoFocusQuantity)
	require.Equal(t, 30, cfg.RateLimit.OpenPerMinute)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["ENTRY_BARCODE_MODE"] = "directo"
	env["ENTRY_DEBOUNCE"] = "150ms"
	env["ENTRY_STRICT_STOCK"] = "yes"
	env["ENTRY_AUTOFOCUS_CODE"] = "false"
	env["ENTRY_AUTOFOCUS_QUANTITY"] = "on"
	env["CATALOG_MAX_ATTEMPTS"] = "abc"
	env["CORS_ALLOWED_ORIGINS"] = " http://a.test , ,http://b.test"
	env["PORT"] = ":9090"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "DIRECTO", cfg.Entry.BarcodeMode)
	require.Equal(t, 150*time.Millisecond, cfg.Entry.Debounce)
	require.True(t, cfg.Entry.StrictStock)
	require.False(t, cfg.Entry.AutoFocusCode)
	require.True(t, cfg.Entry.AutoFocusQuantity)
	require.Equal(t, 2, cfg.Catalog.MaxAttempts)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := baseEnv()
	env["CATALOG_BASE_URL"] = ""
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "CATALOG_BASE_URL")

	env = baseEnv()
	env["ENTRY_BARCODE_MODE"] = "SCANNER"
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "ENTRY_BARCODE_MODE")

	env = baseEnv()
	env["ENTRY_DEBOUNCE"] = "1s"
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "ENTRY_DEBOUNCE")
}
