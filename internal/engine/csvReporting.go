package engine

import (
	"ashare-backtester/types"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// WriteResultFiles writes fills.csv, equity.csv and trades.csv for res
// into a directory named after the run under dir.
func WriteResultFiles(dir string, res *Result) (string, error) {
	runDir := filepath.Join(dir, strings.NewReplacer("/", "_", ",", "+").Replace(res.Name))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"fills.csv", func(w io.Writer) error { return writeFillsCSV(w, res.Fills) }},
		{"equity.csv", func(w io.Writer) error { return writeEquityCSV(w, res.EquityCurve) }},
		{"trades.csv", func(w io.Writer) error { return writeClosedTradesCSV(w, res.ClosedTrades) }},
	}
	for _, f := range files {
		if err := writeCSVFile(filepath.Join(runDir, f.name), f.write); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	return write(f)
}

// writeFillsCSV writes the trade log in fill order.
func writeFillsCSV(w io.Writer, fills []types.Fill) error {
	header := []string{
		"time", // RFC3339
		"symbol",
		"side",
		"quantity",
		"reference_price",
		"price",
		"notional",
		"commission",
		"duty",
		"reason",
	}
	return writeRows(w, header, len(fills), func(i int) []string {
		f := fills[i]
		return []string{
			f.Time.Format(time.RFC3339),
			f.Order.Symbol,
			string(f.Order.Side),
			strconv.FormatInt(f.Order.Quantity, 10),
			f.Order.ReferencePrice.String(),
			f.Price.String(),
			f.Notional().String(),
			f.Commission.StringFixed(2),
			f.Duty.StringFixed(2),
			f.Order.Reason,
		}
	})
}

func writeEquityCSV(w io.Writer, curve []types.EquityPoint) error {
	header := []string{"time", "equity", "cash", "position"}
	return writeRows(w, header, len(curve), func(i int) []string {
		p := curve[i]
		return []string{
			p.Time.Format(time.RFC3339),
			p.Equity.String(),
			p.Cash.String(),
			strconv.FormatInt(p.Position, 10),
		}
	})
}

func writeClosedTradesCSV(w io.Writer, trades []types.ClosedTrade) error {
	header := []string{"time", "symbol", "quantity", "proceeds", "cost", "pnl"}
	return writeRows(w, header, len(trades), func(i int) []string {
		t := trades[i]
		return []string{
			t.Time.Format(time.RFC3339),
			t.Symbol,
			strconv.FormatInt(t.Quantity, 10),
			t.Proceeds.StringFixed(2),
			t.Cost.StringFixed(2),
			t.PnL.StringFixed(2),
		}
	})
}

func writeRows(w io.Writer, header []string, n int, row func(int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
