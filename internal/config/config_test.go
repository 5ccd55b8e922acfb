package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "https://pl.example.com"
	cfg.Defaults.Accounts = []string{"BNP", "Revolut"}
	cfg.Display.SavingsRateUnit = SavingsRateRatio

	path := filepath.Join(t.TempDir(), "plctl", "config.yaml")
	err := Save(path, cfg)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://pl.example.com", got.API.BaseURL)
	assert.Equal(t, 30*time.Second, got.API.Timeout)
	assert.Equal(t, []string{"BNP", "Revolut"}, got.Defaults.Accounts)
	assert.True(t, got.Defaults.ExcludeTransfers)
	assert.Equal(t, SavingsRateRatio, got.Display.SavingsRateUnit)
	assert.Equal(t, int64(10<<20), got.Import.MaxUploadBytes)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Defaults.ExcludeTransfers)
	assert.Equal(t, "native", cfg.Defaults.CurrencyView)
	assert.Equal(t, "EUR", cfg.Display.Currency)
	assert.Equal(t, SavingsRatePercent, cfg.Display.SavingsRateUnit)
	assert.Equal(t, 3, cfg.Import.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Defaults.Accounts)
	assert.NoError(t, cfg.Validate())
}

func TestLoadNotFound(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().API.BaseURL, cfg.API.BaseURL)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://api:9000\ndefaults:\n  exclude_transfers: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api:9000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.False(t, cfg.Defaults.ExcludeTransfers)
	assert.Equal(t, "EUR", cfg.Display.Currency)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadOverridesRescueInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: not a url\nlog:\n  level: debug\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api.base_url")

	cfg, err := Load(path, func(c *Config) { c.API.BaseURL = "http://localhost:8000" })
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = Load(path, func(c *Config) { c.API.BaseURL = "http://localhost:8000" }, func(c *Config) { c.Log.Format = "xml" })
	assert.ErrorContains(t, err, "invalid log.format")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLCTL_API_URL", "https://env.example.com")
	t.Setenv("PLCTL_API_TIMEOUT", "5s")
	t.Setenv("PLCTL_ACCOUNTS", "BNP,Boursorama")
	t.Setenv("PLCTL_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://file:9000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, []string{"BNP", "Boursorama"}, cfg.Defaults.Accounts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PLCTL_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PLCTL_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("PLCTL_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad url", func(c *Config) { c.API.BaseURL = "not a url" }, "api.base_url"},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "api.timeout"},
		{"savings unit", func(c *Config) { c.Display.SavingsRateUnit = "basis-points" }, "savings_rate_unit"},
		{"currency view", func(c *Config) { c.Defaults.CurrencyView = "usd" }, "currency_view"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"upload size", func(c *Config) { c.Import.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"concurrency", func(c *Config) { c.Import.Concurrency = 0 }, "concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolvedPaths(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/etc/plctl", "session.json"), cfg.SessionFile("/etc/plctl/config.yaml"))
	assert.Equal(t, filepath.Join("/etc/plctl", "import-ledger.csv"), cfg.LedgerFile("/etc/plctl/config.yaml"))

	cfg.Session.Path = "/tmp/s.json"
	cfg.Import.LedgerPath = "/tmp/l.csv"
	assert.Equal(t, "/tmp/s.json", cfg.SessionFile("/etc/plctl/config.yaml"))
	assert.Equal(t, "/tmp/l.csv", cfg.LedgerFile("/etc/plctl/config.yaml"))
}

func TestYAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, Default()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "base_url: http://localhost:8000")
	assert.Contains(t, contents, "savings_rate_unit: percent")
	assert.Contains(t, contents, "exclude_transfers: true")
}
