package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/backtester/backtest"
)

// CSV writes <Dir>/<run id>_trades.csv and <Dir>/<run id>_equity.csv for
// spreadsheet work.
type CSV struct {
	Dir string
}

var (
	tradeHeader  = []string{"key", "kind", "status", "outcome", "entry", "stop_loss", "take_profit", "initial_stop", "risk_reward", "stop_ratio", "entry_time", "exit_time", "close_reason", "balance_before", "balance_after", "comment"}
	equityHeader = []string{"time", "balance"}
)

func (j CSV) Paths(r backtest.Report) (trades, equity string) {
	base := filepath.Join(j.Dir, safeName(r.RunID))
	return base + "_trades.csv", base + "_equity.csv"
}

func (j CSV) Write(ctx context.Context, r backtest.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tp, ep := j.Paths(r)

	trades := make([][]string, 0, len(r.TradeList))
	for _, t := range r.TradeList {
		trades = append(trades, []string{
			t.Key,
			string(t.Kind),
			t.Status,
			t.Outcome,
			t.Entry.String(),
			t.StopLoss.String(),
			t.TakeProfit.String(),
			t.InitialStop.String(),
			t.RiskReward.String(),
			t.StopRatio.String(),
			ts(t.EntryTime),
			ts(t.ExitTime),
			string(t.CloseReason),
			t.BalanceBefore.String(),
			t.BalanceAfter.String(),
			t.Comment,
		})
	}
	if err := writeCSV(tp, tradeHeader, trades); err != nil {
		return err
	}

	equity := make([][]string, 0, len(r.Equity))
	for _, e := range r.Equity {
		equity = append(equity, []string{ts(e.Time), e.Balance.String()})
	}
	return writeCSV(ep, equityHeader, equity)
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("journal: csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("journal: csv %s: %w", path, err)
	}
	return f.Close()
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
