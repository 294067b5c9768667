package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root engine configuration loaded from YAML.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

// EngineConfig carries the construction options described for the execution
// engine: which market to trade, how to seed it, and what gets forwarded into
// strategy state untouched.
type EngineConfig struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`

	IncludeTrades   bool `yaml:"include_trades"`
	SeedCandleCount int  `yaml:"seed_candle_count"`
	CandlePrice     string `yaml:"candle_price"`

	UseMaxLeverage   bool `yaml:"use_max_leverage"`
	Leverage         int  `yaml:"leverage"`
	IncreaseLeverage bool `yaml:"increase_leverage"`
	MaxLeverage      int  `yaml:"max_leverage"`

	AddStopOrder     bool    `yaml:"add_stop_order"`
	StopOrderPercent float64 `yaml:"stop_order_percent"`

	IsDerivative  bool   `yaml:"is_derivative"`
	BaseCurrency  string `yaml:"base_currency"`
	QuoteCurrency string `yaml:"quote_currency"`
}

// FetcherConfig tunes the throttled fetcher's token bucket.
type FetcherConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
}

// LoggingConfig mirrors the teacher's logging section: level/format/output are
// forwarded to logger.Log.Configure.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
	DashboardName string `yaml:"dashboard_name"`
}

// MetricsConfig controls the Prometheus /metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// CloudWatchConfig enables optional CloudWatch metric publishing and a
// default dashboard. Log lines are not shipped to CloudWatch.
type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// LoadConfig reads and validates the engine configuration file, filling in
// defaults the same way the teacher's LoadConfig seeds Metrics defaults before
// unmarshalling.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, path, envSpecificPaths(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Engine: EngineConfig{
			SeedCandleCount: 5000,
			CandlePrice:     "close",
		},
		Fetcher: FetcherConfig{
			RequestsPerWindow: 10,
			Window:            60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			ReportInterval: 30 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("AWS_REGION"); v != "" && config.CloudWatch.Region == "" {
		config.CloudWatch.Region = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// envSpecificPaths builds the {environment: path} table resolveEnvSpecificPath
// consults: for base.yml it looks for base.<env>.yml alongside it, for each
// environment that actually has a file on disk.
func envSpecificPaths(basePath string) map[string]string {
	ext := filepath.Ext(basePath)
	stem := strings.TrimSuffix(basePath, ext)

	paths := map[string]string{}
	for _, env := range []string{EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction} {
		candidate := stem + "." + env + ext
		if _, err := os.Stat(candidate); err == nil {
			paths[env] = candidate
		}
	}
	return paths
}

func validateConfig(cfg *Config) error {
	if IsProductionLike(AppEnvironment()) && !cfg.CloudWatch.Enabled {
		return fmt.Errorf("cloudwatch must be enabled when running in a production-like environment (%s)", AppEnvironment())
	}

	if cfg.Engine.Symbol == "" {
		return fmt.Errorf("engine.symbol is required")
	}
	if cfg.Engine.Timeframe == "" {
		return fmt.Errorf("engine.timeframe is required")
	}
	if cfg.Engine.SeedCandleCount <= 0 {
		return fmt.Errorf("engine.seed_candle_count must be greater than 0")
	}
	if cfg.Engine.CandlePrice == "" {
		return fmt.Errorf("engine.candle_price is required")
	}
	switch cfg.Engine.CandlePrice {
	case "open", "high", "low", "close":
	default:
		return fmt.Errorf("engine.candle_price must be one of open/high/low/close, got %q", cfg.Engine.CandlePrice)
	}

	if cfg.Fetcher.RequestsPerWindow <= 0 {
		return fmt.Errorf("fetcher.requests_per_window must be greater than 0")
	}
	if cfg.Fetcher.Window <= 0 {
		return fmt.Errorf("fetcher.window must be greater than 0")
	}

	if cfg.CloudWatch.Enabled {
		if cfg.CloudWatch.Region == "" {
			return fmt.Errorf("cloudwatch.region is required when cloudwatch is enabled")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}

	return nil
}
