package repository

import (
	"ashare-backtester/types"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute:     "1 minute",
	types.FiveMinutes:   "5 minutes",
	types.ThirtyMinutes: "30 minutes",
	types.Hour:          "1 hour",
	types.FourHours:     "4 hours",
	types.Day:           "1 day",
	types.Week:          "1 week",
}

// GetBars resolves symbol to a tradable asset and returns its aggregated
// bars in [start, end), timestamps in types.MarketLocation.
func (db *Database) GetBars(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Bar, error) {
	asset, err := db.GetAssetByTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !asset.Tradable() {
		return nil, fmt.Errorf("%s (%s): %w", symbol, asset.Type, ErrAssetNotTradable)
	}
	return db.GetAggregates(ctx, asset.Id, symbol, interval, start, end)
}

func (db *Database) GetAggregates(ctx context.Context, assetId int, symbol string, interval types.Interval, start, end time.Time) ([]types.Bar, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntervalNotSupported, interval)
	}
	args := getAggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(assetId),
		Starttime:  start,
		Endtime:    end,
	}
	rows, err := db.bars.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrNoBars)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoBars)
	}
	return convertBars(rows, symbol), nil
}

func convertBars(rows []aggregateRow, symbol string) []types.Bar {
	bars := make([]types.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Timestamp: row.Bucket.In(types.MarketLocation),
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return bars
}
