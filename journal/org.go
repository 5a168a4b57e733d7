package journal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/shopspring/decimal"
)

// Org writes one Org-mode file per run to <Dir>/<run id>.org.
type Org struct {
	Dir string
}

func (s Org) Path(r backtest.Report) string {
	return filepath.Join(s.Dir, safeName(r.RunID)+".org")
}

func (s Org) Write(ctx context.Context, r backtest.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := FormatReportOrg(r)
	if err != nil {
		return err
	}
	path := s.Path(r)
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(out), 0o644)
}

var orgFuncs = template.FuncMap{
	"pct":       backtest.Percent,
	"fixed":     fixed2,
	"date":      orgDate,
	"stamp":     orgStamp,
	"trade":     FormatTradeOrg,
	"returnPct": func(r backtest.Report) string { return backtest.Percent(r.ReturnPct()) },
	"winRate":   func(r backtest.Report) string { return backtest.Percent(r.WinRatio()) },
}

func fixed2(v decimal.Decimal) string { return v.StringFixed(2) }

func orgDate(t time.Time) string {
	if t.IsZero() {
		return "(date?)"
	}
	return t.UTC().Format("2006-01-02")
}

func orgStamp(t time.Time) string { return t.UTC().Format("2006-01-02 Mon 15:04") }

var orgTemplate = template.Must(template.New("backtest").Funcs(orgFuncs).Parse(reportOrgTemplate))

// FormatReportOrg renders r as an Org heading with a PROPERTIES drawer, a
// summary and one sub-heading per trade.
func FormatReportOrg(r backtest.Report) (string, error) {
	var buf bytes.Buffer
	if err := orgTemplate.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("journal: org: %w", err)
	}
	return buf.String(), nil
}

const reportOrgTemplate = `* BACKTEST: {{.Strategy}} {{.Symbol}} {{.Period}}
:PROPERTIES:
:RUN_ID:      {{.RunID}}
:STRATEGY:    {{.Strategy}}
:TIMEFRAMES:  {{range $i, $tf := .Timeframes}}{{if $i}},{{end}}{{$tf}}{{end}}
:SYMBOL:      {{.Symbol}}
:DATASET:     {{if .Source}}{{.Source}}{{else}}(dataset?){{end}}
:START_DATE:  {{date .Start}}
:END_DATE:    {{date .End}}
:START_BAL:   {{fixed .InitialBalance}}
:END_BAL:     {{fixed .FinalBalance}}
:NET_PL:      {{fixed .NetPL}}
:RETURN_PCT:  {{returnPct .}}
:MAX_DD_PCT:  {{pct .MaxDrawdownPct .HasDrawdown}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{winRate .}}
:CREATED:     [{{stamp .StartedAt}}]
:END:

** Performance Summary
- Risk per Trade:   *{{fixed .RiskPct}}%*
- Net P/L:          *{{fixed .NetPL}}*
- Return:           *{{returnPct .}}*
- Max Drawdown:     *{{pct .MaxDrawdownPct .HasDrawdown}}*
- Win Rate:         *{{winRate .}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Open    | {{.Open}} |
| Total   | {{.Trades}} |
{{- if .TradeList}}

** Trades
{{- range .TradeList}}
{{trade .}}
{{- end}}
{{- end}}
`

// FormatTradeOrg renders a trade as an Org block with its facts in a
// PROPERTIES drawer and empty review headings.
func FormatTradeOrg(t backtest.TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** Trade: %s %s\n", t.Kind, t.EntryTime.UTC().Format(time.RFC3339))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":KEY: %s\n", t.Key)
	fmt.Fprintf(&b, ":STATUS: %s\n", t.Status)
	fmt.Fprintf(&b, ":OUTCOME: %s\n", t.Outcome)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", t.Entry.StringFixed(5))
	fmt.Fprintf(&b, ":STOP_LOSS: %s\n", t.StopLoss.StringFixed(5))
	fmt.Fprintf(&b, ":TAKE_PROFIT: %s\n", t.TakeProfit.StringFixed(5))
	fmt.Fprintf(&b, ":RISK_REWARD: %s\n", t.RiskReward.StringFixed(2))
	if !t.ExitTime.IsZero() {
		fmt.Fprintf(&b, ":EXIT_TIME: %s\n", t.ExitTime.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, ":REASON: %s\n", t.CloseReason)
		fmt.Fprintf(&b, ":REALIZED_PL: %s\n", t.BalanceAfter.Sub(t.BalanceBefore).StringFixed(2))
	}
	if t.Comment != "" {
		fmt.Fprintf(&b, ":COMMENT: %s\n", t.Comment)
	}
	b.WriteString(":END:\n")
	b.WriteString("**** Review\n- ")
	return b.String()
}
