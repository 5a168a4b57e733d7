package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/backtester/account"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/pkg/id"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config is the per-run input of the driver. It is never mutated.
type Config struct {
	Symbol   string
	Period   string
	Lookback int

	// Risk is the fraction of balance risked per trade (0.01 = 1%).
	Risk           decimal.Decimal
	InitialBalance decimal.Decimal
	Fees           trade.FeePolicy

	// AllowConcurrent asks for signals while a trade is active.
	AllowConcurrent bool
	// DiscardStalePending drops untriggered orders when a new signal arrives.
	DiscardStalePending bool
	// DelegateManagement hands exits to the strategy's TradeManager.
	DelegateManagement bool
}

func (c Config) validate() error {
	if c.Lookback <= 0 {
		return fmt.Errorf("backtest: lookback must be positive, got %d", c.Lookback)
	}
	if !c.Risk.IsPositive() || c.Risk.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("backtest: risk fraction must be in (0, 1], got %s", c.Risk)
	}
	if !c.InitialBalance.IsPositive() {
		return fmt.Errorf("backtest: initial balance must be positive, got %s", c.InitialBalance)
	}
	if c.Fees.Rate.IsNegative() {
		return fmt.Errorf("backtest: negative fee rate %s", c.Fees.Rate)
	}
	return nil
}

// Data is the historical input: the primary series drives the step loop and
// each secondary must be coarser.
type Data struct {
	Primary   *market.Series
	Secondary []*market.Series
}

// Option customizes a Driver.
type Option func(*Driver)

// WithLogger sets the run logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithStopModifier sets the hook that sizes the loss of stop-loss closes.
func WithStopModifier(m trade.StopModifier) Option {
	return func(d *Driver) { d.stopMod = m }
}

// WithRunID fixes the run ID instead of minting one.
func WithRunID(runID string) Option {
	return func(d *Driver) { d.runID = runID }
}

// WithClock replaces time.Now for StartedAt and Elapsed.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// Driver replays historical data through a strategy, one primary bar per
// step, and settles the trades it opens.
type Driver struct {
	cfg      Config
	data     Data
	strategy Strategy
	manager  TradeManager

	log     *zap.Logger
	stopMod trade.StopModifier
	runID   string
	now     func() time.Time
}

func NewDriver(cfg Config, data Data, strategy Strategy, opts ...Option) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if data.Primary == nil {
		return nil, errors.New("backtest: primary series is required")
	}
	if strategy == nil {
		return nil, errors.New("backtest: strategy is required")
	}

	d := &Driver{
		cfg:      cfg,
		data:     data,
		strategy: strategy,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	if cfg.DelegateManagement {
		m, ok := strategy.(TradeManager)
		if !ok {
			return nil, fmt.Errorf("backtest: strategy %s does not manage trades", strategy.Name())
		}
		d.manager = m
	}
	for _, o := range opts {
		o(d)
	}
	if d.runID == "" {
		d.runID = id.At(d.now())
	}
	return d, nil
}

// Run executes the step loop until the data is exhausted or ctx is done.
// On cancellation it returns the partial report together with ctx.Err().
func (d *Driver) Run(ctx context.Context) (Report, error) {
	started := d.now()
	al, err := NewAligner(d.data.Primary, d.data.Secondary, d.cfg.Lookback)
	if err != nil {
		return Report{}, err
	}

	ledger := account.NewLedger(d.cfg.InitialBalance)
	reg := NewRegistry()
	log := d.log.With(
		zap.String("run_id", d.runID),
		zap.String("symbol", d.cfg.Symbol),
		zap.String("strategy", d.strategy.Name()),
	)
	rc := &RunContext{
		RunID:      d.runID,
		Symbol:     d.cfg.Symbol,
		Timeframes: al.Timeframes(),
		Risk:       d.cfg.Risk,
		Pip:        market.PipSize(d.cfg.Symbol),
		Ledger:     ledger,
		Log:        log,
		registry:   reg,
	}

	if gaps := d.data.Primary.Gaps(); len(gaps) > 0 {
		log.Warn("primary series has gaps", zap.Int("count", len(gaps)))
	}

	st := &runState{rc: rc, ledger: ledger, reg: reg, log: log}
	var runErr error
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		snap, err := al.Step(i)
		if errors.Is(err, ErrEndOfData) {
			break
		}
		if err != nil {
			return Report{}, err
		}
		if err := d.step(st, snap); err != nil {
			return Report{}, fmt.Errorf("step %d (%s): %w", i, snap.Time().Format(time.RFC3339), err)
		}
		st.steps++
	}

	rep := d.report(st, al, started)
	log.Info("backtest finished",
		zap.Int("steps", rep.Steps),
		zap.Int("trades", rep.Trades),
		zap.Int("wins", rep.Wins),
		zap.Int("losses", rep.Losses),
		zap.String("win_ratio", Percent(rep.WinRatio())),
		zap.String("final_balance", rep.FinalBalance.StringFixed(2)),
		zap.String("max_drawdown_pct", Percent(rep.MaxDrawdownPct, rep.HasDrawdown)),
	)
	return rep, runErr
}

type runState struct {
	rc     *RunContext
	ledger *account.Ledger
	reg    *Registry
	log    *zap.Logger

	steps   int
	purged  int
	skipped int
}

// step runs one replay step: existing trades first, then at most one new
// signal. A trade registered here is first evaluated on the next step.
func (d *Driver) step(st *runState, snap market.Snapshot) error {
	c, err := snap.LastCandle(snap.Primary, market.Requirements{})
	if err != nil {
		return err
	}

	for _, t := range st.reg.Open() {
		if err := d.advance(st, t, c, snap); err != nil {
			return err
		}
	}

	if !d.cfg.AllowConcurrent && st.reg.HasActive() {
		return nil
	}

	nt, err := d.strategy.OnStep(st.rc, snap)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", d.strategy.Name(), err)
	}
	if nt == nil {
		return nil
	}
	if nt.EntryTime.IsZero() {
		nt.EntryTime = c.Time
	}
	if err := nt.Validate(); err != nil {
		return err
	}

	if d.cfg.DiscardStalePending {
		if n := st.reg.PurgePending(); n > 0 {
			st.purged += n
			st.log.Debug("discarded stale pending orders", zap.Int("count", n))
		}
	}
	if err := st.reg.Add(nt); err != nil {
		st.skipped++
		st.log.Warn("signal not registered", zap.Error(err))
		return nil
	}
	st.log.Debug("trade registered",
		zap.Stringer("key", nt.Key()),
		zap.String("status", nt.Status().String()),
		zap.String("entry", nt.Entry.String()),
		zap.String("stop", nt.StopLoss.String()),
		zap.String("target", nt.TakeProfit.String()),
	)
	return nil
}

// advance moves one open trade through activation, exit checks and
// settlement against candle c.
func (d *Driver) advance(st *runState, t *trade.Trade, c market.Candle, snap market.Snapshot) error {
	if t.ActivateIfTriggered(c) {
		st.log.Debug("pending order triggered", zap.Stringer("key", t.Key()), zap.Time("at", c.Time))
	}
	if t.Status() != trade.Active {
		return nil
	}

	var reason trade.CloseReason
	if d.manager != nil {
		dec, err := d.manager.ManageTrade(st.rc, t, snap)
		if err != nil {
			return fmt.Errorf("manage %s: %w", t.Key(), err)
		}
		if !dec.Closed {
			return nil
		}
		reason = dec.Reason
	} else {
		reason = t.CheckClose(c)
		if reason == trade.NoClose {
			if t.MaybeMoveToBreakEven(c) {
				st.log.Debug("stop moved to break-even", zap.Stringer("key", t.Key()))
			}
			return nil
		}
	}

	if reason == trade.StopLoss && d.stopMod != nil && !t.MovedToBreakEven {
		t.StopRatio = d.stopMod(t, c)
	}

	s, err := trade.Settle(t, reason, c.Time, d.cfg.Risk, st.ledger, d.cfg.Fees)
	switch {
	case errors.Is(err, trade.ErrAlreadySettled), errors.Is(err, trade.ErrNotActive):
		st.log.Warn("settlement skipped", zap.Stringer("key", t.Key()), zap.Error(err))
		return nil
	case err != nil:
		return err
	}
	st.log.Debug("trade closed",
		zap.Stringer("key", t.Key()),
		zap.String("reason", string(s.Reason)),
		zap.String("outcome", s.Outcome.String()),
		zap.String("balance", s.BalanceAfter.StringFixed(2)),
	)
	return nil
}

func (d *Driver) report(st *runState, al *Aligner, started time.Time) Report {
	rep := Report{
		RunID:          d.runID,
		Symbol:         d.cfg.Symbol,
		Period:         d.cfg.Period,
		Strategy:       d.strategy.Name(),
		Timeframes:     al.Timeframes(),
		Source:         d.data.Primary.Source,
		InitialBalance: st.ledger.Initial(),
		FinalBalance:   st.ledger.Balance(),
		RiskPct:        d.cfg.Risk.Mul(decimal.NewFromInt(100)),
		Trades:         st.reg.Len(),
		Purged:         st.purged,
		Skipped:        st.skipped,
		Steps:          st.steps,
		StartedAt:      started,
		Elapsed:        d.now().Sub(started),
		Equity:         st.ledger.History(),
	}
	rep.MaxDrawdown, rep.MaxDrawdownPct, rep.HasDrawdown = st.ledger.MaxDrawdown()

	rows := d.data.Primary.Rows
	if st.steps > 0 {
		rep.Start = rows[0].Time
		rep.End = rows[st.steps+d.cfg.Lookback-2].Time
	}

	for _, t := range st.reg.All() {
		switch t.Outcome() {
		case trade.Won:
			rep.Wins++
		case trade.Lost:
			rep.Losses++
		default:
			rep.Open++
		}
		rep.TradeList = append(rep.TradeList, recordOf(t))
	}
	return rep
}
