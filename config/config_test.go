package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyeddy/backtester/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "EUR_USD", cfg.Run.Symbol)
	assert.True(t, cfg.Run.Risk.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.Run.Fees.Rate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, []int{50, 200}, cfg.Indicators.EMAs)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing symbol", mutate: func(c *Config) { c.Run.Symbol = "" }, errMsg: "run.symbol is required"},
		{name: "zero lookback", mutate: func(c *Config) { c.Run.Lookback = 0 }, errMsg: "run.lookback must be positive"},
		{name: "risk above one", mutate: func(c *Config) { c.Run.Risk = decimal.NewFromInt(2) }, errMsg: "run.risk must be between 0 and 1"},
		{name: "zero balance", mutate: func(c *Config) { c.Run.InitialBalance = decimal.Zero }, errMsg: "run.initial_balance must be positive"},
		{name: "negative fee", mutate: func(c *Config) { c.Run.Fees.Rate = decimal.NewFromInt(-1) }, errMsg: "run.fees.rate"},
		{name: "unknown stop modifier", mutate: func(c *Config) { c.Run.StopModifier = "trailing" }, errMsg: "run.stop_modifier"},
		{name: "bad primary timeframe", mutate: func(c *Config) { c.Data.Primary.Timeframe = "M7" }, errMsg: "data.primary.timeframe"},
		{name: "finer secondary", mutate: func(c *Config) {
			c.Data.Secondary = []DataFile{{Path: "m5.csv", Timeframe: "M5"}}
		}, errMsg: "not coarser"},
		{name: "secondary without path", mutate: func(c *Config) {
			c.Data.Secondary = []DataFile{{Timeframe: "H1"}}
		}, errMsg: "data.secondary[0].path is required"},
		{name: "duplicate timeframe", mutate: func(c *Config) {
			c.Data.Secondary = []DataFile{{Path: "h1.csv", Timeframe: "H1"}}
			c.Data.Resample = []string{"H1"}
		}, errMsg: "given twice"},
		{name: "missing strategy", mutate: func(c *Config) { c.Strategy.Name = " " }, errMsg: "strategy.name is required"},
		{name: "bad ema", mutate: func(c *Config) { c.Indicators.EMAs = []int{0} }, errMsg: "indicators.emas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")

	cfg := Default()
	cfg.Run.Period = "2024-Q1"
	cfg.Data.Primary = DataFile{Path: "eurusd_m15.csv", Timeframe: "M15"}
	cfg.Data.Resample = []string{"H1", "H4"}
	cfg.Strategy.Params = map[string]string{"ema": "25,50"}
	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-Q1", got.Run.Period)
	assert.True(t, got.Run.Risk.Equal(cfg.Run.Risk))
	assert.True(t, got.Run.Fees.OnStopLoss)
	assert.Equal(t, cfg.Data, got.Data)
	assert.Equal(t, "25,50", got.Strategy.Params["ema"])

	tfs, err := got.Timeframes()
	require.NoError(t, err)
	assert.Equal(t, []market.Timeframe{market.M15, market.H1, market.H4}, tfs)
}

func TestLoadFromFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
run:
  symbol: GBP_USD
  risk: 0.005
strategy:
  name: bollinger-rsi
  params:
    stop_pips: 3
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GBP_USD", cfg.Run.Symbol)
	assert.True(t, cfg.Run.Risk.Equal(decimal.RequireFromString("0.005")))
	assert.Equal(t, 100, cfg.Run.Lookback, "defaults survive")
	assert.Equal(t, "3", cfg.Strategy.Params["stop_pips"])

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("run:\n  lookback: 0\n"), 0o644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "invalid config")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BACKTEST_SYMBOL":           "USD_JPY",
		"BACKTEST_LOOKBACK":         "50",
		"BACKTEST_RISK":             "0.02",
		"BACKTEST_ALLOW_CONCURRENT": "true",
		"BACKTEST_STRATEGY":         "noop",
		"BACKTEST_REDIS_ADDR":       "localhost:6379",
		"BACKTEST_PERIOD":           "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.Run.Period = "keep"
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "USD_JPY", cfg.Run.Symbol)
	assert.Equal(t, 50, cfg.Run.Lookback)
	assert.True(t, cfg.Run.Risk.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, cfg.Run.AllowConcurrent)
	assert.Equal(t, "noop", cfg.Strategy.Name)
	assert.Equal(t, "localhost:6379", cfg.Journal.Redis.Addr)
	assert.Equal(t, "keep", cfg.Run.Period, "empty values are ignored")

	env = map[string]string{"BACKTEST_LOOKBACK": "many", "BACKTEST_RISK": "lots"}
	err := Default().ApplyEnv(lookup)
	assert.ErrorContains(t, err, "BACKTEST_LOOKBACK")
	assert.ErrorContains(t, err, "BACKTEST_RISK")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  symbol: AUD_USD\n  lookback: 20\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BACKTEST_LOOKBACK=30\n"), 0o644))
	t.Setenv("BACKTEST_STRATEGY", "ema-cross")
	t.Setenv("BACKTEST_LOOKBACK", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AUD_USD", cfg.Run.Symbol)
	assert.Equal(t, "ema-cross", cfg.Strategy.Name)
	assert.Equal(t, 20, cfg.Run.Lookback, "godotenv does not override a variable that is already set")
}
