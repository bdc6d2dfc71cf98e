// Package config centralizes configuration for the candle archive: supported
// trading pairs, OKX API parameters, dataset storage paths, chart styling,
// and logging. Values are resolved in priority order: environment variables
// override the config file, which overrides built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	// Pairs is the list of supported trading pairs in OKX instId form.
	Pairs []string `json:"pairs" yaml:"pairs" env:"PAIRS"`

	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Charts   ChartConfig    `json:"charts" yaml:"charts"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ExchangeConfig configures the OKX REST client.
type ExchangeConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" env:"OKX_BASE_URL"`

	// PageLimit is the maximum candles per request; OKX caps market
	// endpoints at 300 rows.
	PageLimit int `json:"page_limit" yaml:"page_limit" env:"OKX_PAGE_LIMIT"`

	// RequestsPerSecond feeds the client-side rate limiter. OKX allows
	// 10 requests per 2 seconds on the candle endpoints.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" env:"OKX_RATE_LIMIT"`

	Timeout string `json:"timeout" yaml:"timeout" env:"OKX_TIMEOUT"`

	// Timezone is the exchange-local zone used for daily bucket alignment
	// and chart axis labels. OKX business days roll over at UTC+8.
	Timezone string `json:"timezone" yaml:"timezone" env:"OKX_TIMEZONE"`
}

// StorageConfig configures dataset persistence.
type StorageConfig struct {
	// DataDir is the base directory holding one parquet file per symbol.
	DataDir string `json:"data_dir" yaml:"data_dir" env:"DATA_DIR"`
}

// ChartConfig configures rendered chart output and styling.
type ChartConfig struct {
	OutputDir string `json:"output_dir" yaml:"output_dir" env:"CHART_OUTPUT_DIR"`

	Width  string `json:"width" yaml:"width"`
	Height string `json:"height" yaml:"height"`

	// MAWindows are the simple moving average window lengths overlaid on
	// candlestick charts.
	MAWindows []int `json:"ma_windows" yaml:"ma_windows"`

	UpColor   string `json:"up_color" yaml:"up_color"`
	DownColor string `json:"down_color" yaml:"down_color"`

	// LineColors is the palette cycled through on comparison charts.
	LineColors []string `json:"line_colors" yaml:"line_colors"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`           // debug, info, warn, error
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`       // json, text
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`       // stdout, stderr, file
	FilePath   string `json:"file_path" yaml:"file_path" env:"LOG_FILE"`   // used when output is "file"
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`              // rotation threshold
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`              // rotated files to keep
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`            // days to keep rotated files
	Compress   bool   `json:"compress" yaml:"compress" env:"LOG_COMPRESS"` // gzip rotated files
}

// Default returns the built-in configuration: fifteen major USDT pairs,
// OKX public API parameters, and chart styling.
func Default() *Config {
	return &Config{
		Pairs: []string{
			"BTC-USDT", "ETH-USDT", "BNB-USDT", "ADA-USDT", "XRP-USDT",
			"SOL-USDT", "DOGE-USDT", "MATIC-USDT", "DOT-USDT", "AVAX-USDT",
			"LINK-USDT", "UNI-USDT", "LTC-USDT", "BCH-USDT", "ATOM-USDT",
		},
		Exchange: ExchangeConfig{
			BaseURL:           "https://www.okx.com",
			PageLimit:         300,
			RequestsPerSecond: 5,
			Timeout:           "15s",
			Timezone:          "Asia/Shanghai",
		},
		Storage: StorageConfig{
			DataDir: "./crypto_data",
		},
		Charts: ChartConfig{
			OutputDir: "./charts",
			Width:     "1600px",
			Height:    "800px",
			MAWindows: []int{20, 50, 200},
			UpColor:   "#00b46a",
			DownColor: "#ec0000",
			LineColors: []string{
				"#c23531", "#2f4554", "#61a0a8", "#d48265",
				"#91c7ae", "#749f83", "#ca8622", "#bda29a",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Load resolves the configuration from defaults, an optional config file
// (YAML or JSON, detected by content), and environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile merges a YAML or JSON config file over cfg. A missing file is
// not an error; the defaults stand.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	// Try YAML first, fall back to JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config %s (tried YAML and JSON): %w", path, err)
		}
	}
	return nil
}

// loadFromEnv applies environment variable overrides.
func loadFromEnv(cfg *Config) {
	if val := os.Getenv("PAIRS"); val != "" {
		cfg.Pairs = strings.Split(val, ",")
	}
	if val := os.Getenv("OKX_BASE_URL"); val != "" {
		cfg.Exchange.BaseURL = val
	}
	if val := os.Getenv("OKX_PAGE_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			cfg.Exchange.PageLimit = limit
		}
	}
	if val := os.Getenv("OKX_RATE_LIMIT"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Exchange.RequestsPerSecond = rps
		}
	}
	if val := os.Getenv("OKX_TIMEOUT"); val != "" {
		cfg.Exchange.Timeout = val
	}
	if val := os.Getenv("OKX_TIMEZONE"); val != "" {
		cfg.Exchange.Timezone = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		cfg.Storage.DataDir = val
	}
	if val := os.Getenv("CHART_OUTPUT_DIR"); val != "" {
		cfg.Charts.OutputDir = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		cfg.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE"); val != "" {
		cfg.Logging.FilePath = val
	}
	if val := os.Getenv("LOG_COMPRESS"); val != "" {
		if compress, err := strconv.ParseBool(val); err == nil {
			cfg.Logging.Compress = compress
		}
	}
}

// Validate checks the configuration for consistency, aggregating every
// problem into a single error.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Pairs) == 0 {
		problems = append(problems, "pairs cannot be empty")
	}
	for _, pair := range c.Pairs {
		if !strings.Contains(pair, "-") {
			problems = append(problems, fmt.Sprintf("pair %q is not in BASE-QUOTE form", pair))
		}
	}

	if c.Exchange.BaseURL == "" {
		problems = append(problems, "exchange.base_url is required")
	}
	if c.Exchange.PageLimit <= 0 || c.Exchange.PageLimit > 300 {
		problems = append(problems, "exchange.page_limit must be between 1 and 300")
	}
	if c.Exchange.RequestsPerSecond <= 0 {
		problems = append(problems, "exchange.requests_per_second must be greater than 0")
	}
	if _, err := time.ParseDuration(c.Exchange.Timeout); err != nil {
		problems = append(problems, fmt.Sprintf("exchange.timeout is not a valid duration: %v", err))
	}
	if _, err := time.LoadLocation(c.Exchange.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("exchange.timezone is not a valid location: %v", err))
	}

	if c.Storage.DataDir == "" {
		problems = append(problems, "storage.data_dir is required")
	}

	if len(c.Charts.MAWindows) > 0 {
		for _, w := range c.Charts.MAWindows {
			if w <= 0 {
				problems = append(problems, "charts.ma_windows entries must be greater than 0")
				break
			}
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		problems = append(problems, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		problems = append(problems, "logging.format must be one of: json, text")
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		problems = append(problems, "logging.file_path is required when output is 'file'")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// SupportsPair reports whether symbol is in the configured pair list.
func (c *Config) SupportsPair(symbol string) bool {
	for _, p := range c.Pairs {
		if p == symbol {
			return true
		}
	}
	return false
}

// HTTPTimeout returns the parsed exchange request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exchange.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// Location returns the exchange-local timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Exchange.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatasetPath returns the storage path for a symbol's base-interval dataset.
func (c *Config) DatasetPath(symbol string) string {
	return filepath.Join(c.Storage.DataDir, fmt.Sprintf("%s_5m.parquet", symbol))
}

// Save writes the configuration to path as JSON, or YAML when the extension
// is .yaml or .yml.
func (c *Config) Save(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
