// Package config loads the shl configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	accounting "github.com/priitl/stocks-helper-sub000"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of a ledger.
type Config struct {
	Portfolio    string        `yaml:"portfolio"`
	BaseCurrency string        `yaml:"base_currency"`
	Database     string        `yaml:"database"`
	Log          LogConfig     `yaml:"log"`
	Rates        RatesConfig   `yaml:"rates"`
	EODHD        EODHDConfig   `yaml:"eodhd"`
	Posting      PostingConfig `yaml:"posting"`
}

// LogConfig configures the logger package.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// RatesConfig configures the exchange rate client.
type RatesConfig struct {
	BaseURL           string        `yaml:"base_url"`
	MaxBackoffDays    int           `yaml:"max_backoff_days"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// EODHDConfig configures the market data client.
type EODHDConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// PostingConfig holds the posting policy.
type PostingConfig struct {
	RecognizeRealizedGains bool `yaml:"recognize_realized_gains"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Portfolio:    "default",
		BaseCurrency: "EUR",
		Database:     "shl.db",
		Log:          LogConfig{Level: "info", Format: "text"},
		Rates: RatesConfig{
			BaseURL:           "https://api.frankfurter.app",
			MaxBackoffDays:    7,
			RequestsPerSecond: 5,
			CacheTTL:          24 * time.Hour,
		},
		EODHD: EODHDConfig{
			BaseURL:           "https://eodhd.com/api",
			RequestsPerSecond: 5,
		},
		Posting: PostingConfig{RecognizeRealizedGains: true},
	}
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load returns the configuration from path, when it exists, overridden by
// the environment. The env files are loaded into the environment first,
// without replacing variables already set. Missing files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		c, err := LoadFromFile(path)
		switch {
		case err == nil:
			cfg = c
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables:
// SHL_PORTFOLIO, SHL_BASE_CURRENCY, SHL_DATABASE, SHL_LOG_LEVEL,
// SHL_LOG_FORMAT, SHL_RATES_URL, SHL_RECOGNIZE_GAINS and EODHD_API_KEY.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SHL_PORTFOLIO", &c.Portfolio)
	str("SHL_BASE_CURRENCY", &c.BaseCurrency)
	str("SHL_DATABASE", &c.Database)
	str("SHL_LOG_LEVEL", &c.Log.Level)
	str("SHL_LOG_FORMAT", &c.Log.Format)
	str("SHL_RATES_URL", &c.Rates.BaseURL)
	str("EODHD_API_KEY", &c.EODHD.APIKey)
	if v, ok := lookup("SHL_RECOGNIZE_GAINS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SHL_RECOGNIZE_GAINS: %w", err)
		}
		c.Posting.RecognizeRealizedGains = b
	}
	c.BaseCurrency = strings.ToUpper(c.BaseCurrency)
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Portfolio == "" {
		errs = append(errs, errors.New("portfolio is required"))
	}
	if len(c.BaseCurrency) != 3 || !accounting.ValidCurrency(c.BaseCurrency) {
		errs = append(errs, fmt.Errorf("base_currency %q is not an ISO 4217 code", c.BaseCurrency))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.Rates.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rates.requests_per_second must be positive"))
	}
	if c.Rates.MaxBackoffDays < 0 {
		errs = append(errs, errors.New("rates.max_backoff_days must not be negative"))
	}
	if c.EODHD.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("eodhd.requests_per_second must be positive"))
	}
	return errors.Join(errs...)
}
