// Package config loads the run configuration: a YAML file, overlaid with
// BACKTEST_* environment variables (optionally from a .env file).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete backtest configuration
type Config struct {
	Run        RunConfig         `yaml:"run"`
	Data       DataConfig        `yaml:"data"`
	Strategy   StrategyConfig    `yaml:"strategy"`
	Indicators indicators.Config `yaml:"indicators"`
	Journal    JournalConfig     `yaml:"journal"`
	Log        LogConfig         `yaml:"log"`
}

// RunConfig holds the driver settings
type RunConfig struct {
	Symbol string `yaml:"symbol"`
	Period string `yaml:"period"`
	// Lookback is the number of primary bars in every window.
	Lookback int `yaml:"lookback"`
	// Risk is the fraction of the balance risked per trade, 0.01 = 1%.
	Risk           decimal.Decimal `yaml:"risk"`
	InitialBalance decimal.Decimal `yaml:"initial_balance"`
	Fees           trade.FeePolicy `yaml:"fees"`

	AllowConcurrent     bool `yaml:"allow_concurrent"`
	DiscardStalePending bool `yaml:"discard_stale_pending"`
	DelegateManagement  bool `yaml:"delegate_management"`
	// StopModifier names the stop-loss sizing hook: "" or "adverse-excursion".
	StopModifier string `yaml:"stop_modifier,omitempty"`
}

// DataFile is one candle file and its timeframe label (M1, M15, H1, ...).
type DataFile struct {
	Path      string `yaml:"path"`
	Timeframe string `yaml:"timeframe"`
}

// DataConfig lists the candle files of a run. Resample derives further
// secondary timeframes from the primary file.
type DataConfig struct {
	Primary   DataFile   `yaml:"primary"`
	Secondary []DataFile `yaml:"secondary,omitempty"`
	Resample  []string   `yaml:"resample,omitempty"`
	// Enrich computes indicator columns the files do not carry.
	Enrich bool `yaml:"enrich"`
}

// StrategyConfig selects a registered strategy
type StrategyConfig struct {
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params,omitempty"`
}

// JournalConfig contains report sink parameters. Empty fields disable a sink.
type JournalConfig struct {
	// Dir receives the text log and the YAML trade dump.
	Dir    string              `yaml:"dir"`
	Org    bool                `yaml:"org"`
	CSV    bool                `yaml:"csv"`
	DBPath string              `yaml:"db_path,omitempty"`
	Redis  journal.RedisConfig `yaml:"redis,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Symbol:         "EUR_USD",
			Lookback:       100,
			Risk:           decimal.RequireFromString("0.01"),
			InitialBalance: decimal.NewFromInt(10000),
			Fees:           trade.DefaultFees(),
		},
		Data: DataConfig{
			Primary: DataFile{Timeframe: "M15"},
			Enrich:  true,
		},
		Strategy: StrategyConfig{
			Name: "ema-bias",
		},
		Indicators: indicators.DefaultConfig(),
		Journal: JournalConfig{
			Dir:    "./backtest",
			DBPath: "./backtester.sqlite",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the file at path
// (if any), then the environment. A .env file in the working directory is
// loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
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

// LoadFromFile reads a YAML file over the defaults and validates it.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays BACKTEST_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dec := func(key string, dst *decimal.Decimal) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("BACKTEST_SYMBOL", &c.Run.Symbol)
	str("BACKTEST_PERIOD", &c.Run.Period)
	num("BACKTEST_LOOKBACK", &c.Run.Lookback)
	dec("BACKTEST_RISK", &c.Run.Risk)
	dec("BACKTEST_INITIAL_BALANCE", &c.Run.InitialBalance)
	dec("BACKTEST_FEE_RATE", &c.Run.Fees.Rate)
	flag("BACKTEST_ALLOW_CONCURRENT", &c.Run.AllowConcurrent)
	str("BACKTEST_DATA", &c.Data.Primary.Path)
	str("BACKTEST_TIMEFRAME", &c.Data.Primary.Timeframe)
	str("BACKTEST_STRATEGY", &c.Strategy.Name)
	str("BACKTEST_JOURNAL_DIR", &c.Journal.Dir)
	str("BACKTEST_DB", &c.Journal.DBPath)
	str("BACKTEST_REDIS_ADDR", &c.Journal.Redis.Addr)
	str("BACKTEST_REDIS_PASSWORD", &c.Journal.Redis.Password)
	num("BACKTEST_REDIS_DB", &c.Journal.Redis.DB)
	str("BACKTEST_LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Run.Symbol == "" {
		return fmt.Errorf("run.symbol is required")
	}
	if c.Run.Lookback <= 0 {
		return fmt.Errorf("run.lookback must be positive")
	}
	if !c.Run.Risk.IsPositive() || c.Run.Risk.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("run.risk must be between 0 and 1")
	}
	if !c.Run.InitialBalance.IsPositive() {
		return fmt.Errorf("run.initial_balance must be positive")
	}
	if c.Run.Fees.Rate.IsNegative() {
		return fmt.Errorf("run.fees.rate must not be negative")
	}
	switch c.Run.StopModifier {
	case "", "adverse-excursion":
	default:
		return fmt.Errorf("unknown run.stop_modifier %q", c.Run.StopModifier)
	}

	primary, err := market.ParseTimeframe(c.Data.Primary.Timeframe)
	if err != nil {
		return fmt.Errorf("data.primary.timeframe: %w", err)
	}
	seen := map[market.Timeframe]bool{primary: true}
	check := func(field, label string) error {
		tf, err := market.ParseTimeframe(label)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if tf <= primary {
			return fmt.Errorf("%s: %s is not coarser than the primary %s", field, tf, primary)
		}
		if seen[tf] {
			return fmt.Errorf("%s: timeframe %s given twice", field, tf)
		}
		seen[tf] = true
		return nil
	}
	for i, f := range c.Data.Secondary {
		if f.Path == "" {
			return fmt.Errorf("data.secondary[%d].path is required", i)
		}
		if err := check(fmt.Sprintf("data.secondary[%d]", i), f.Timeframe); err != nil {
			return err
		}
	}
	for i, label := range c.Data.Resample {
		if err := check(fmt.Sprintf("data.resample[%d]", i), label); err != nil {
			return err
		}
	}

	if strings.TrimSpace(c.Strategy.Name) == "" {
		return fmt.Errorf("strategy.name is required")
	}
	for _, p := range c.Indicators.EMAs {
		if p <= 0 {
			return fmt.Errorf("indicators.emas: period %d must be positive", p)
		}
	}
	return nil
}

// Timeframes returns the primary timeframe followed by every secondary one.
func (c *Config) Timeframes() ([]market.Timeframe, error) {
	primary, err := market.ParseTimeframe(c.Data.Primary.Timeframe)
	if err != nil {
		return nil, err
	}
	out := []market.Timeframe{primary}
	for _, f := range c.Data.Secondary {
		tf, err := market.ParseTimeframe(f.Timeframe)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	for _, label := range c.Data.Resample {
		tf, err := market.ParseTimeframe(label)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}
