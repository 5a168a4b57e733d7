package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	symbol TEXT NOT NULL,
	period TEXT NOT NULL,
	strategy TEXT NOT NULL,
	timeframes TEXT NOT NULL,
	dataset TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	steps INTEGER NOT NULL,
	risk_pct TEXT NOT NULL,
	initial_balance TEXT NOT NULL,
	final_balance TEXT NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	open INTEGER NOT NULL,
	purged INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	max_drawdown TEXT NOT NULL,
	max_drawdown_pct TEXT NOT NULL,
	has_drawdown INTEGER NOT NULL,
	elapsed_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	trade_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	outcome TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	stop_loss TEXT NOT NULL,
	take_profit TEXT NOT NULL,
	initial_stop TEXT NOT NULL,
	break_even TEXT,
	moved_to_break_even INTEGER NOT NULL,
	risk_reward TEXT NOT NULL,
	stop_ratio TEXT NOT NULL,
	comment TEXT NOT NULL,
	entry_time TEXT NOT NULL,
	exit_time TEXT NOT NULL,
	close_reason TEXT NOT NULL,
	balance_before TEXT NOT NULL,
	balance_after TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	time TEXT NOT NULL,
	balance TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_symbol_strategy ON runs(symbol, strategy);
`
