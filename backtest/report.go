package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/backtester/account"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
)

// NA is printed where a ratio has no defined value.
const NA = "N/A"

// TradeRecord is the reporting view of one registered trade.
type TradeRecord struct {
	Key              string            `yaml:"key"`
	Kind             trade.OrderKind   `yaml:"kind"`
	Status           string            `yaml:"status"`
	Outcome          string            `yaml:"outcome"`
	Entry            decimal.Decimal   `yaml:"entry"`
	StopLoss         decimal.Decimal   `yaml:"stop_loss"`
	TakeProfit       decimal.Decimal   `yaml:"take_profit"`
	InitialStop      decimal.Decimal   `yaml:"initial_stop"`
	BreakEven        *decimal.Decimal  `yaml:"break_even,omitempty"`
	MovedToBreakEven bool              `yaml:"moved_to_break_even"`
	RiskReward       decimal.Decimal   `yaml:"risk_reward"`
	StopRatio        decimal.Decimal   `yaml:"stop_ratio"`
	Comment          string            `yaml:"comment,omitempty"`
	EntryTime        time.Time         `yaml:"entry_time"`
	ExitTime         time.Time         `yaml:"exit_time,omitempty"`
	CloseReason      trade.CloseReason `yaml:"close_reason,omitempty"`
	BalanceBefore    decimal.Decimal   `yaml:"balance_before"`
	BalanceAfter     decimal.Decimal   `yaml:"balance_after"`
}

func recordOf(t *trade.Trade) TradeRecord {
	return TradeRecord{
		Key:              t.Key().String(),
		Kind:             t.Kind,
		Status:           t.Status().String(),
		Outcome:          t.Outcome().String(),
		Entry:            t.Entry,
		StopLoss:         t.StopLoss,
		TakeProfit:       t.TakeProfit,
		InitialStop:      t.InitialStop,
		BreakEven:        t.BreakEven,
		MovedToBreakEven: t.MovedToBreakEven,
		RiskReward:       t.RiskReward,
		StopRatio:        t.StopRatio,
		Comment:          t.Comment,
		EntryTime:        t.EntryTime,
		ExitTime:         t.ExitTime,
		CloseReason:      t.CloseReason,
		BalanceBefore:    t.BalanceBefore,
		BalanceAfter:     t.BalanceAfter,
	}
}

// Report is the summary of one run handed to report sinks.
type Report struct {
	RunID      string             `yaml:"run_id"`
	Symbol     string             `yaml:"symbol"`
	Period     string             `yaml:"period"`
	Strategy   string             `yaml:"strategy"`
	Timeframes []market.Timeframe `yaml:"timeframes"`
	Source     string             `yaml:"source,omitempty"`

	InitialBalance decimal.Decimal `yaml:"initial_balance"`
	FinalBalance   decimal.Decimal `yaml:"final_balance"`
	RiskPct        decimal.Decimal `yaml:"risk_pct"`

	Trades  int `yaml:"trades"`
	Wins    int `yaml:"wins"`
	Losses  int `yaml:"losses"`
	Open    int `yaml:"open"`
	Purged  int `yaml:"purged"`
	Skipped int `yaml:"skipped"`

	MaxDrawdown    decimal.Decimal `yaml:"max_drawdown"`
	MaxDrawdownPct decimal.Decimal `yaml:"max_drawdown_pct"`
	HasDrawdown    bool            `yaml:"has_drawdown"`

	Steps int       `yaml:"steps"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`

	StartedAt time.Time     `yaml:"started_at"`
	Elapsed   time.Duration `yaml:"elapsed"`

	TradeList []TradeRecord         `yaml:"trade_list"`
	Equity    []account.EquityPoint `yaml:"equity"`
}

// WinRatio is wins over registered trades, in percent. ok is false with no
// trades.
func (r Report) WinRatio() (decimal.Decimal, bool) {
	if r.Trades == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(r.Wins)).
		Div(decimal.NewFromInt(int64(r.Trades))).
		Mul(decimal.NewFromInt(100)), true
}

// ReturnPct is the balance change over the run, in percent.
func (r Report) ReturnPct() (decimal.Decimal, bool) {
	if r.InitialBalance.IsZero() {
		return decimal.Zero, false
	}
	return r.FinalBalance.Sub(r.InitialBalance).Div(r.InitialBalance).Mul(decimal.NewFromInt(100)), true
}

// NetPL is the final minus the initial balance.
func (r Report) NetPL() decimal.Decimal {
	return r.FinalBalance.Sub(r.InitialBalance)
}

// Percent renders a (value, ok) pair as "12.34%" or N/A.
func Percent(v decimal.Decimal, ok bool) string {
	if !ok {
		return NA
	}
	return v.StringFixed(2) + "%"
}

// PrintReport writes a human readable summary of r.
func PrintReport(w io.Writer, r Report) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:         %s\n", r.RunID)
	fmt.Fprintf(w, "Started:        %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Strategy:       %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbol:         %s\n", r.Symbol)
	fmt.Fprintf(w, "Period:         %s\n", r.Period)
	fmt.Fprintf(w, "Timeframes:     %v\n", r.Timeframes)
	if r.Source != "" {
		fmt.Fprintf(w, "Dataset:        %s\n", r.Source)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Data")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:          %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:            %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Steps:          %d\n", r.Steps)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Risk per Trade: %s%%\n", r.RiskPct.StringFixed(2))
	fmt.Fprintf(w, "Trades:         %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:           %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:         %d\n", r.Losses)
	if r.Open > 0 {
		fmt.Fprintf(w, "Still open:     %d\n", r.Open)
	}
	fmt.Fprintf(w, "Win Ratio:      %s\n", Percent(r.WinRatio()))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance:  %s\n", r.InitialBalance.StringFixed(2))
	fmt.Fprintf(w, "End Balance:    %s\n", r.FinalBalance.StringFixed(2))
	fmt.Fprintf(w, "Net P/L:        %s\n", r.NetPL().StringFixed(2))
	fmt.Fprintf(w, "Return:         %s\n", Percent(r.ReturnPct()))
	if r.HasDrawdown {
		fmt.Fprintf(w, "Max Drawdown:   %s (%s)\n", r.MaxDrawdown.StringFixed(2), Percent(r.MaxDrawdownPct, true))
	} else {
		fmt.Fprintf(w, "Max Drawdown:   %s\n", NA)
	}
	fmt.Fprintln(w)
}

// BatchSummary aggregates runs of one strategy over several periods.
type BatchSummary struct {
	Runs               int
	MeanFinalBalance   decimal.Decimal
	MeanReturnPct      decimal.Decimal
	MeanMaxDrawdownPct decimal.Decimal

	// ReturnToDrawdown is MeanReturnPct / MeanMaxDrawdownPct. It is
	// undefined when the mean drawdown is zero.
	ReturnToDrawdown  decimal.Decimal
	HasReturnDrawdown bool
}

// Summarize averages reports. Runs with a zero initial balance count as a
// zero return.
func Summarize(reports []Report) BatchSummary {
	var s BatchSummary
	if len(reports) == 0 {
		return s
	}
	var bal, ret, dd decimal.Decimal
	for _, r := range reports {
		bal = bal.Add(r.FinalBalance)
		rp, _ := r.ReturnPct()
		ret = ret.Add(rp)
		dd = dd.Add(r.MaxDrawdownPct)
	}
	n := decimal.NewFromInt(int64(len(reports)))
	s.Runs = len(reports)
	s.MeanFinalBalance = bal.Div(n)
	s.MeanReturnPct = ret.Div(n)
	s.MeanMaxDrawdownPct = dd.Div(n)
	if !s.MeanMaxDrawdownPct.IsZero() {
		s.ReturnToDrawdown = s.MeanReturnPct.Div(s.MeanMaxDrawdownPct)
		s.HasReturnDrawdown = true
	}
	return s
}

// PrintSummary writes a batch summary in the same layout as PrintReport.
func PrintSummary(w io.Writer, s BatchSummary) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, " Batch Summary (%d runs)\n", s.Runs)
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Mean End Balance:  %s\n", s.MeanFinalBalance.StringFixed(2))
	fmt.Fprintf(w, "Mean Return:       %s\n", Percent(s.MeanReturnPct, true))
	fmt.Fprintf(w, "Mean Max Drawdown: %s\n", Percent(s.MeanMaxDrawdownPct, true))
	ratio := NA
	if s.HasReturnDrawdown {
		ratio = s.ReturnToDrawdown.StringFixed(2)
	}
	fmt.Fprintf(w, "Return/Drawdown:   %s\n", ratio)
	fmt.Fprintln(w)
}
