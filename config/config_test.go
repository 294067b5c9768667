package config

import (
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `engine:
  symbol: "tBTCUSD"
  timeframe: "1m"
`)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Engine.Symbol != "tBTCUSD" {
		t.Errorf("unexpected symbol: %s", cfg.Engine.Symbol)
	}
	if cfg.Engine.SeedCandleCount != 5000 {
		t.Errorf("expected default seed candle count of 5000, got %d", cfg.Engine.SeedCandleCount)
	}
	if cfg.Engine.CandlePrice != "close" {
		t.Errorf("expected default candle price of close, got %s", cfg.Engine.CandlePrice)
	}
	if cfg.Fetcher.RequestsPerWindow != 10 {
		t.Errorf("expected default requests_per_window of 10, got %d", cfg.Fetcher.RequestsPerWindow)
	}
}

func TestLoadConfigMissingSymbol(t *testing.T) {
	path := writeTempConfig(t, `engine:
  timeframe: "1m"
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for missing engine.symbol")
	}
}

func TestLoadConfigInvalidCandlePrice(t *testing.T) {
	path := writeTempConfig(t, `engine:
  symbol: "tBTCUSD"
  timeframe: "1m"
  candle_price: "vwap"
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for invalid engine.candle_price")
	}
}

func TestLoadConfigCloudWatchRequiresRegion(t *testing.T) {
	path := writeTempConfig(t, `engine:
  symbol: "tBTCUSD"
  timeframe: "1m"
cloudwatch:
  enabled: true
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error when cloudwatch is enabled without a region")
	}
}

func TestLoadConfigRequiresCloudWatchInProductionLikeEnvironment(t *testing.T) {
	path := writeTempConfig(t, `engine:
  symbol: "tBTCUSD"
  timeframe: "1m"
`)
	defer os.Remove(path)

	os.Setenv("APP_ENV", "production")
	defer os.Unsetenv("APP_ENV")

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error when running production-like without cloudwatch enabled")
	}
}

func TestLoadConfigPrefersEnvSpecificFile(t *testing.T) {
	dir := t.TempDir()
	basePath := dir + "/config.yml"
	stagingPath := dir + "/config.staging.yml"

	if err := os.WriteFile(basePath, []byte(`engine:
  symbol: "tBTCUSD"
  timeframe: "1m"
`), 0644); err != nil {
		t.Fatalf("write base config: %v", err)
	}
	if err := os.WriteFile(stagingPath, []byte(`engine:
  symbol: "tETHUSD"
  timeframe: "5m"
cloudwatch:
  enabled: true
  region: "us-east-1"
`), 0644); err != nil {
		t.Fatalf("write staging config: %v", err)
	}

	os.Setenv("APP_ENV", "staging")
	defer os.Unsetenv("APP_ENV")

	cfg, err := LoadConfig(basePath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Engine.Symbol != "tETHUSD" {
		t.Errorf("expected the staging override to win, got symbol %s", cfg.Engine.Symbol)
	}
}
