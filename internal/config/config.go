package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level config.yaml.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Display  DisplayConfig  `yaml:"display"`
	Import   ImportConfig   `yaml:"import"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"PLCTL_API_URL"`
	Timeout time.Duration `yaml:"timeout" env:"PLCTL_API_TIMEOUT"`
}

// SessionConfig controls where the session token is persisted.
type SessionConfig struct {
	Path string `yaml:"path,omitempty" env:"PLCTL_SESSION_FILE"` // empty = next to config.yaml
}

// DefaultsConfig holds default filters for summary and listing commands.
type DefaultsConfig struct {
	Accounts         []string `yaml:"accounts,omitempty" env:"PLCTL_ACCOUNTS" envSeparator:","`
	ExcludeTransfers bool     `yaml:"exclude_transfers"`
	CurrencyView     string   `yaml:"currency_view" env:"PLCTL_CURRENCY_VIEW"`
}

// DisplayConfig controls presentation only.
type DisplayConfig struct {
	Currency        string `yaml:"currency" env:"PLCTL_CURRENCY"`
	SavingsRateUnit string `yaml:"savings_rate_unit" env:"PLCTL_SAVINGS_RATE_UNIT"` // "percent" or "ratio"
}

// ImportConfig controls directory imports.
type ImportConfig struct {
	Dir            string `yaml:"dir,omitempty" env:"PLCTL_IMPORT_DIR"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	Concurrency    int    `yaml:"concurrency"`
	Schedule       string `yaml:"schedule" env:"PLCTL_IMPORT_SCHEDULE"`
	LedgerPath     string `yaml:"ledger_path,omitempty" env:"PLCTL_IMPORT_LEDGER"` // empty = <dir>/import-ledger.csv
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"PLCTL_LOG_LEVEL"`
	Format string `yaml:"format" env:"PLCTL_LOG_FORMAT"` // "text" or "json"
}

const (
	// SavingsRatePercent means the backend sends savings_rate as a percentage.
	SavingsRatePercent = "percent"
	// SavingsRateRatio means the backend sends savings_rate as a fraction.
	SavingsRateRatio = "ratio"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Defaults: DefaultsConfig{
			ExcludeTransfers: true,
			CurrencyView:     "native",
		},
		Display: DisplayConfig{
			Currency:        "EUR",
			SavingsRateUnit: SavingsRatePercent,
		},
		Import: ImportConfig{
			MaxUploadBytes: 10 << 20,
			Concurrency:    3,
			Schedule:       "0 7 * * *",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/plctl/config.yaml, or the
// PLCTL_CONFIG override.
func DefaultPath() (string, error) {
	if p := os.Getenv("PLCTL_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "plctl", "config.yaml"), nil
}

// Load reads a config.yaml file from disk, then applies environment
// overrides and then overrides, in order. The result is validated once at
// the end. A missing file yields the defaults.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overlays non-empty environment values onto cfg.
func applyEnv(cfg *Config) error {
	var fromEnv Config
	if err := env.Parse(&fromEnv); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	if err := mergo.Merge(cfg, fromEnv, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging environment: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	switch c.Display.SavingsRateUnit {
	case SavingsRatePercent, SavingsRateRatio:
	default:
		return fmt.Errorf("invalid display.savings_rate_unit %q (want %s or %s)", c.Display.SavingsRateUnit, SavingsRatePercent, SavingsRateRatio)
	}
	switch c.Defaults.CurrencyView {
	case "native", "eur":
	default:
		return fmt.Errorf("invalid defaults.currency_view %q", c.Defaults.CurrencyView)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	if c.Import.MaxUploadBytes <= 0 {
		return fmt.Errorf("import.max_upload_bytes must be positive")
	}
	if c.Import.Concurrency < 1 {
		return fmt.Errorf("import.concurrency must be at least 1")
	}
	return nil
}

// SessionFile resolves the session path relative to the config directory.
func (c *Config) SessionFile(configPath string) string {
	if c.Session.Path != "" {
		return c.Session.Path
	}
	return filepath.Join(filepath.Dir(configPath), "session.json")
}

// LedgerFile resolves the import ledger path.
func (c *Config) LedgerFile(configPath string) string {
	if c.Import.LedgerPath != "" {
		return c.Import.LedgerPath
	}
	return filepath.Join(filepath.Dir(configPath), "import-ledger.csv")
}

// Save writes a Config to a YAML file, creating its directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
