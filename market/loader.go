package market

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"20060102 150405",
	"2006-01-02",
	"2006.01.02",
}

// LoadCSV reads a candle file. Files ending in .xz are decompressed and
// UTF-16 exports (MT5 "Export bars") are decoded transparently.
func LoadCSV(path string, tf Timeframe) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open xz %s: %w", path, err)
		}
		r = xr
	}

	s, err := ReadCSV(r, tf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// ReadCSV parses a headered candle table. Recognised columns are time (or
// date + time), open, high, low and close, matched case-insensitively with
// MT5 angle brackets stripped; every other column is kept as an indicator
// column under its header name. The delimiter is sniffed from the header.
func ReadCSV(r io.Reader, tf Timeframe) (*Series, error) {
	br, err := utf16Aware(r)
	if err != nil {
		return nil, err
	}

	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	header = strings.TrimPrefix(header, "\ufeff")
	if strings.TrimSpace(header) == "" {
		return nil, errors.New("empty candle file")
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	cr.Comma = sniffDelimiter(header)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	names, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(names)
	if err != nil {
		return nil, err
	}

	s := &Series{Timeframe: tf}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		row, err := cols.parse(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s.Rows = append(s.Rows, row)
	}
	return s, nil
}

// utf16Aware peeks for a UTF-16 byte order mark and decodes to UTF-8 if found.
func utf16Aware(r io.Reader) (*bufio.Reader, error) {
	br := bufio.NewReader(r)
	b, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return bufio.NewReader(transform.NewReader(br, dec)), nil
	}
	return br, nil
}

func sniffDelimiter(header string) rune {
	best, count := ',', strings.Count(header, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(header, string(d)); n > count {
			best, count = d, n
		}
	}
	return best
}

type columnMap struct {
	time, date             int
	open, high, low, close int
	extra                  map[int]string
}

func mapColumns(names []string) (columnMap, error) {
	cm := columnMap{time: -1, date: -1, open: -1, high: -1, low: -1, close: -1, extra: map[int]string{}}
	for i, raw := range names {
		name := strings.Trim(strings.TrimSpace(raw), "<>")
		switch strings.ToLower(name) {
		case "time", "datetime", "timestamp":
			cm.time = i
		case "date":
			cm.date = i
		case "open":
			cm.open = i
		case "high":
			cm.high = i
		case "low":
			cm.low = i
		case "close":
			cm.close = i
		default:
			if name != "" {
				cm.extra[i] = name
			}
		}
	}
	if cm.time < 0 && cm.date < 0 {
		return cm, errors.New("header: no time column")
	}
	for name, idx := range map[string]int{"open": cm.open, "high": cm.high, "low": cm.low, "close": cm.close} {
		if idx < 0 {
			return cm, fmt.Errorf("header: no %s column", name)
		}
	}
	return cm, nil
}

func (cm columnMap) parse(rec []string) (Row, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ts := field(cm.time)
	if cm.date >= 0 {
		ts = strings.TrimSpace(field(cm.date) + " " + ts)
	}
	t, err := parseTime(ts)
	if err != nil {
		return Row{}, err
	}

	row := Row{Time: t}
	prices := []struct {
		name string
		idx  int
		dst  *decimal.Decimal
	}{
		{"open", cm.open, &row.Open},
		{"high", cm.high, &row.High},
		{"low", cm.low, &row.Low},
		{"close", cm.close, &row.Close},
	}
	for _, p := range prices {
		v, err := decimal.NewFromString(field(p.idx))
		if err != nil {
			return Row{}, fmt.Errorf("bad %s %q: %w", p.name, field(p.idx), err)
		}
		*p.dst = v
	}

	for idx, name := range cm.extra {
		raw := field(idx)
		if raw == "" || strings.EqualFold(raw, "nan") {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		row.SetColumn(name, v)
	}
	return row, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 9 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// WriteCSV writes s with a time,open,high,low,close header followed by the
// indicator columns in name order.
func WriteCSV(w io.Writer, s *Series) error {
	colSet := map[string]struct{}{}
	for _, r := range s.Rows {
		for k := range r.Columns {
			colSet[k] = struct{}{}
		}
	}
	extra := make([]string, 0, len(colSet))
	for k := range colSet {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time", "open", "high", "low", "close"}, extra...)); err != nil {
		return err
	}
	for _, r := range s.Rows {
		rec := []string{
			r.Time.UTC().Format(time.RFC3339),
			r.Open.String(),
			r.High.String(),
			r.Low.String(),
			r.Close.String(),
		}
		for _, k := range extra {
			v, ok := r.Columns[k]
			if !ok {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, v.String())
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
