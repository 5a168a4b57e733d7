package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rustyeddy/backtester/backtest"
)

// RedisConfig locates the Redis server reports are published to.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Prefix is prepended to channel and key names. Default "backtest".
	Prefix string `yaml:"prefix"`
	// TTL of the latest-report key. Zero keeps it forever.
	TTL time.Duration `yaml:"ttl"`
}

// RedisPublisher publishes a JSON summary of each run on
// <prefix>:report:<symbol> and caches it under
// <prefix>:latest:<symbol>:<strategy>.
type RedisPublisher struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("journal: connect to redis %s: %w", cfg.Addr, err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewRedisPublisherWithClient(rdb, cfg.Prefix, cfg.TTL, log), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(rdb redis.UniversalClient, prefix string, ttl time.Duration, log *zap.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "backtest"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix, ttl: ttl, log: log}
}

func (p *RedisPublisher) Channel(symbol string) string {
	return fmt.Sprintf("%s:report:%s", p.prefix, symbol)
}

func (p *RedisPublisher) LatestKey(symbol, strategy string) string {
	return fmt.Sprintf("%s:latest:%s:%s", p.prefix, symbol, strategy)
}

func (p *RedisPublisher) Write(ctx context.Context, r backtest.Report) error {
	data, err := json.Marshal(newReportMessage(r))
	if err != nil {
		return fmt.Errorf("journal: marshal report: %w", err)
	}

	channel := p.Channel(r.Symbol)
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		p.log.Error("failed to publish report", zap.String("channel", channel), zap.Error(err))
		return fmt.Errorf("journal: publish report: %w", err)
	}
	key := p.LatestKey(r.Symbol, r.Strategy)
	if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("journal: cache report: %w", err)
	}

	p.log.Debug("published report", zap.String("channel", channel), zap.String("run_id", r.RunID))
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// ReportMessage is the wire form of a published report.
type ReportMessage struct {
	RunID          string    `json:"run_id"`
	Symbol         string    `json:"symbol"`
	Period         string    `json:"period"`
	Strategy       string    `json:"strategy"`
	Timeframes     []string  `json:"timeframes"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Steps          int       `json:"steps"`
	InitialBalance string    `json:"initial_balance"`
	FinalBalance   string    `json:"final_balance"`
	Trades         int       `json:"trades"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	WinRatio       string    `json:"win_ratio"`
	Return         string    `json:"return"`
	MaxDrawdownPct string    `json:"max_drawdown_pct"`
}

func newReportMessage(r backtest.Report) ReportMessage {
	m := ReportMessage{
		RunID:          r.RunID,
		Symbol:         r.Symbol,
		Period:         r.Period,
		Strategy:       r.Strategy,
		Start:          r.Start,
		End:            r.End,
		Steps:          r.Steps,
		InitialBalance: r.InitialBalance.String(),
		FinalBalance:   r.FinalBalance.String(),
		Trades:         r.Trades,
		Wins:           r.Wins,
		Losses:         r.Losses,
		WinRatio:       backtest.Percent(r.WinRatio()),
		Return:         backtest.Percent(r.ReturnPct()),
		MaxDrawdownPct: backtest.Percent(r.MaxDrawdownPct, r.HasDrawdown),
	}
	for _, tf := range r.Timeframes {
		m.Timeframes = append(m.Timeframes, tf.String())
	}
	return m
}
