package engine

import (
	"ashare-backtester/types"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DataFeedConfig describes the bars to request from a BarSource.
type DataFeedConfig struct {
	Symbols  []string
	Interval types.Interval
	Start    time.Time
	End      time.Time
}

func NewDataFeedConfig(symbols []string, interval types.Interval, start, end time.Time) DataFeedConfig {
	return DataFeedConfig{
		Symbols:  symbols,
		Interval: interval,
		Start:    start,
		End:      end,
	}
}

// LoadBars materializes every requested symbol before any run starts. A
// symbol that fails to load is reported in failed and does not stop the
// others. The error is only set when ctx ends before loading finishes.
func LoadBars(ctx context.Context, src BarSource, cfg DataFeedConfig) (map[string]types.BarSeries, map[string]error, error) {
	var mu sync.Mutex
	out := make(map[string]types.BarSeries, len(cfg.Symbols))
	failed := make(map[string]error)

	var g errgroup.Group
	for _, symbol := range cfg.Symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := src.GetBars(ctx, symbol, cfg.Interval, cfg.Start, cfg.End)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[symbol] = fmt.Errorf("load %s: %w", symbol, err)
				return nil
			}
			out[symbol] = types.Bars(bars)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return out, failed, nil
}
