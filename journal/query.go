package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/account"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
)

var ErrRunNotFound = errors.New("run not found")

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Symbol   string
	Strategy string
	Limit    int
}

const runColumns = `run_id, started_at, symbol, period, strategy, timeframes, dataset, start_time, end_time, steps,
	risk_pct, initial_balance, final_balance, trades, wins, losses, open, purged, skipped,
	max_drawdown, max_drawdown_pct, has_drawdown, elapsed_ns`

// ListRuns returns run summaries, newest first. Trade lists and equity are
// not loaded.
func (j *SQLite) ListRuns(ctx context.Context, f RunFilter) ([]backtest.Report, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, f.Strategy)
	}
	q := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, run_id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backtest.Report
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadRun returns the full report of one run.
func (j *SQLite) LoadRun(ctx context.Context, runID string) (backtest.Report, error) {
	row := j.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backtest.Report{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
		}
		return backtest.Report{}, err
	}

	if r.TradeList, err = j.ListTrades(ctx, runID); err != nil {
		return backtest.Report{}, err
	}
	if r.Equity, err = j.ListEquity(ctx, runID); err != nil {
		return backtest.Report{}, err
	}
	return r, nil
}

// ListTrades returns the trades of a run in registration order.
func (j *SQLite) ListTrades(ctx context.Context, runID string) ([]backtest.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_key, kind, status, outcome, entry_price, stop_loss, take_profit, initial_stop,
		       break_even, moved_to_break_even, risk_reward, stop_ratio, comment, entry_time, exit_time,
		       close_reason, balance_before, balance_after
		FROM trades
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backtest.TradeRecord
	for rows.Next() {
		var (
			rec                            backtest.TradeRecord
			kind, reason                   string
			entry, sl, tp, initial, rr, sr string
			entryT, exitT, before, after   string
			be                             sql.NullString
		)
		if err := rows.Scan(
			&rec.Key, &kind, &rec.Status, &rec.Outcome,
			&entry, &sl, &tp, &initial,
			&be, &rec.MovedToBreakEven, &rr, &sr, &rec.Comment,
			&entryT, &exitT, &reason, &before, &after,
		); err != nil {
			return nil, err
		}
		rec.Kind = trade.OrderKind(kind)
		rec.CloseReason = trade.CloseReason(reason)

		var p parser
		rec.Entry = p.decimal(entry)
		rec.StopLoss = p.decimal(sl)
		rec.TakeProfit = p.decimal(tp)
		rec.InitialStop = p.decimal(initial)
		rec.RiskReward = p.decimal(rr)
		rec.StopRatio = p.decimal(sr)
		rec.BalanceBefore = p.decimal(before)
		rec.BalanceAfter = p.decimal(after)
		rec.EntryTime = p.time(entryT)
		rec.ExitTime = p.time(exitT)
		if be.Valid {
			v := p.decimal(be.String)
			rec.BreakEven = &v
		}
		if p.err != nil {
			return nil, fmt.Errorf("journal: trade %s: %w", rec.Key, p.err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns the equity history of a run.
func (j *SQLite) ListEquity(ctx context.Context, runID string) ([]account.EquityPoint, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, balance
		FROM equity
		WHERE run_id = ?
		ORDER BY seq ASC;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []account.EquityPoint
	for rows.Next() {
		var at, bal string
		if err := rows.Scan(&at, &bal); err != nil {
			return nil, err
		}
		var p parser
		e := account.EquityPoint{Time: p.time(at), Balance: p.decimal(bal)}
		if p.err != nil {
			return nil, fmt.Errorf("journal: equity: %w", p.err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (backtest.Report, error) {
	var (
		r                               backtest.Report
		startedAt, tfs, start, end      string
		risk, initial, final, dd, ddPct string
		elapsed                         int64
	)
	err := s.Scan(
		&r.RunID, &startedAt, &r.Symbol, &r.Period, &r.Strategy, &tfs, &r.Source, &start, &end, &r.Steps,
		&risk, &initial, &final, &r.Trades, &r.Wins, &r.Losses, &r.Open, &r.Purged, &r.Skipped,
		&dd, &ddPct, &r.HasDrawdown, &elapsed,
	)
	if err != nil {
		return backtest.Report{}, err
	}

	var p parser
	r.StartedAt = p.time(startedAt)
	r.Start = p.time(start)
	r.End = p.time(end)
	r.RiskPct = p.decimal(risk)
	r.InitialBalance = p.decimal(initial)
	r.FinalBalance = p.decimal(final)
	r.MaxDrawdown = p.decimal(dd)
	r.MaxDrawdownPct = p.decimal(ddPct)
	r.Elapsed = time.Duration(elapsed)
	if tfs != "" {
		for _, label := range strings.Split(tfs, ",") {
			tf, err := market.ParseTimeframe(label)
			if err != nil && p.err == nil {
				p.err = err
			}
			r.Timeframes = append(r.Timeframes, tf)
		}
	}
	if p.err != nil {
		return backtest.Report{}, fmt.Errorf("journal: run %s: %w", r.RunID, p.err)
	}
	return r, nil
}

// parser keeps the first conversion error so a row can be decoded in one go.
type parser struct {
	err error
}

func (p *parser) decimal(s string) decimal.Decimal {
	v, err := parseDecimal(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *parser) time(s string) time.Time {
	t, err := parseTime(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return t
}
