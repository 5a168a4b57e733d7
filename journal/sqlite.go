package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores runs, their trades and equity history. Decimals and times
// are stored as text so nothing is lost to float conversion.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Write stores r in one transaction. Writing a run ID twice replaces the
// earlier run.
func (j *SQLite) Write(ctx context.Context, r backtest.Report) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"equity", "trades", "runs"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", r.RunID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, started_at, symbol, period, strategy, timeframes, dataset, start_time, end_time, steps,
		 risk_pct, initial_balance, final_balance, trades, wins, losses, open, purged, skipped,
		 max_drawdown, max_drawdown_pct, has_drawdown, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, fmtTime(r.StartedAt), r.Symbol, r.Period, r.Strategy, joinTimeframes(r), r.Source,
		fmtTime(r.Start), fmtTime(r.End), r.Steps,
		r.RiskPct.String(), r.InitialBalance.String(), r.FinalBalance.String(),
		r.Trades, r.Wins, r.Losses, r.Open, r.Purged, r.Skipped,
		r.MaxDrawdown.String(), r.MaxDrawdownPct.String(), r.HasDrawdown, int64(r.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("journal: insert run %s: %w", r.RunID, err)
	}

	for i, t := range r.TradeList {
		var be sql.NullString
		if t.BreakEven != nil {
			be = sql.NullString{String: t.BreakEven.String(), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trades
			(run_id, seq, trade_key, kind, status, outcome, entry_price, stop_loss, take_profit, initial_stop,
			 break_even, moved_to_break_even, risk_reward, stop_ratio, comment, entry_time, exit_time,
			 close_reason, balance_before, balance_after)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, t.Key, string(t.Kind), t.Status, t.Outcome,
			t.Entry.String(), t.StopLoss.String(), t.TakeProfit.String(), t.InitialStop.String(),
			be, t.MovedToBreakEven, t.RiskReward.String(), t.StopRatio.String(), t.Comment,
			fmtTime(t.EntryTime), fmtTime(t.ExitTime), string(t.CloseReason),
			t.BalanceBefore.String(), t.BalanceAfter.String(),
		)
		if err != nil {
			return fmt.Errorf("journal: insert trade %s: %w", t.Key, err)
		}
	}

	for i, e := range r.Equity {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO equity (run_id, seq, time, balance) VALUES (?, ?, ?, ?)`,
			r.RunID, i, fmtTime(e.Time), e.Balance.String())
		if err != nil {
			return fmt.Errorf("journal: insert equity: %w", err)
		}
	}

	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func joinTimeframes(r backtest.Report) string {
	labels := make([]string, len(r.Timeframes))
	for i, tf := range r.Timeframes {
		labels[i] = tf.String()
	}
	return strings.Join(labels, ",")
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
