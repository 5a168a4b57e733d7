// Package journal persists and publishes backtest reports. Every sink runs
// after a run has finished; none of them is called from the step loop.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustyeddy/backtester/backtest"
)

// Sink receives the report of a finished run.
type Sink interface {
	Write(ctx context.Context, r backtest.Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r backtest.Report) error

func (f SinkFunc) Write(ctx context.Context, r backtest.Report) error { return f(ctx, r) }

// Multi writes to every sink and joins their errors. A failing sink does not
// stop the others.
type Multi []Sink

func (m Multi) Write(ctx context.Context, r backtest.Report) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// safeName turns a symbol or strategy name into a single path element.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unnamed"
	}
	return strings.NewReplacer("/", "_", `\`, "_", " ", "_", "..", "_").Replace(s)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}
