package journal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"gopkg.in/yaml.v3"
)

// TextLog appends the printed report of every run to
// <Dir>/backtest_by_symbol/<symbol>/<strategy>.txt.
type TextLog struct {
	Dir string
}

func (s TextLog) Path(r backtest.Report) string {
	return filepath.Join(s.Dir, "backtest_by_symbol", safeName(r.Symbol), safeName(r.Strategy)+".txt")
}

func (s TextLog) Write(ctx context.Context, r backtest.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(r)
	if err := ensureDir(path); err != nil {
		return err
	}

	var buf bytes.Buffer
	backtest.PrintReport(&buf, r)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: text log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("journal: text log: %w", err)
	}
	return f.Close()
}

// TradeDump is the YAML document written by TradeYAML.
type TradeDump struct {
	RunID    string                 `yaml:"run_id"`
	Symbol   string                 `yaml:"symbol"`
	Period   string                 `yaml:"period"`
	Strategy string                 `yaml:"strategy"`
	Start    time.Time              `yaml:"start"`
	End      time.Time              `yaml:"end"`
	Trades   []backtest.TradeRecord `yaml:"trades"`
}

// TradeYAML overwrites <Dir>/all_trade_backtest/<symbol>/<strategy>.yaml
// with every trade of the latest run.
type TradeYAML struct {
	Dir string
}

func (s TradeYAML) Path(r backtest.Report) string {
	return filepath.Join(s.Dir, "all_trade_backtest", safeName(r.Symbol), safeName(r.Strategy)+".yaml")
}

func (s TradeYAML) Write(ctx context.Context, r backtest.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(r)
	if err := ensureDir(path); err != nil {
		return err
	}

	out, err := yaml.Marshal(TradeDump{
		RunID:    r.RunID,
		Symbol:   r.Symbol,
		Period:   r.Period,
		Strategy: r.Strategy,
		Start:    r.Start,
		End:      r.End,
		Trades:   r.TradeList,
	})
	if err != nil {
		return fmt.Errorf("journal: trade yaml: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// ReadTradeDump loads a file written by TradeYAML.
func ReadTradeDump(path string) (TradeDump, error) {
	var d TradeDump
	b, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("journal: %s: %w", path, err)
	}
	return d, nil
}
