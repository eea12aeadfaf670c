package repository

import (
	"ashare-backtester/types"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

var ErrInvalidRecord = errors.New("invalid bar record")

// csvBar is one row of a <SYMBOL>.csv file. Prices stay strings so they
// parse straight into decimals.
type csvBar struct {
	Timestamp string `csv:"timestamp"`
	Open      string `csv:"open"`
	High      string `csv:"high"`
	Low       string `csv:"low"`
	Close     string `csv:"close"`
	Volume    string `csv:"volume"`
}

var timestampLayouts = []string{
	time.DateOnly,
	time.DateTime,
	"2006-01-02 15:04",
	time.RFC3339,
}

// CSVSource reads bars from <Dir>/<SYMBOL>.csv files.
type CSVSource struct {
	Dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// GetBars loads symbol's file and returns the bars in [start, end) in file
// order. A zero start or end leaves that side open. The interval is the file's own; it is
// not resampled.
func (s *CSVSource) GetBars(ctx context.Context, symbol string, _ types.Interval, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Dir, symbol+".csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("ticker %s %w", symbol, ErrAssetNotFound)
		}
		return nil, err
	}
	defer f.Close()

	all, err := LoadBarsCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	bars := make([]types.Bar, 0, len(all))
	for _, b := range all {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !b.Timestamp.Before(end) {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoBars)
	}
	return bars, nil
}

// LoadBarsCSV parses a bar file with a timestamp,open,high,low,close,volume
// header. Timestamps without a zone are read in types.MarketLocation. Rows
// keep file order; out of order or duplicate rows are for the engine to
// reject.
func LoadBarsCSV(r io.Reader, symbol string) ([]types.Bar, error) {
	var rows []csvBar
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	bars := make([]types.Bar, 0, len(rows))
	for i, row := range rows {
		bar, err := row.toBar(symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidRecord, i+1, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (row csvBar) toBar(symbol string) (types.Bar, error) {
	ts, err := parseTimestamp(row.Timestamp)
	if err != nil {
		return types.Bar{}, err
	}
	bar := types.Bar{Symbol: symbol, Timestamp: ts}
	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"open", row.Open, &bar.Open},
		{"high", row.High, &bar.High},
		{"low", row.Low, &bar.Low},
		{"close", row.Close, &bar.Close},
		{"volume", row.Volume, &bar.Volume},
	}
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" && f.name == "volume" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return types.Bar{}, fmt.Errorf("%s %q: %w", f.name, f.value, err)
		}
		*f.dst = d
	}
	return bar, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, types.MarketLocation); err == nil {
			return t.In(types.MarketLocation), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: unsupported format", s)
}
