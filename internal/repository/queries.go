package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

type assetRow struct {
	ID         int32      `db:"id"`
	Ticker     string     `db:"ticker"`
	Name       string     `db:"name"`
	Type       string     `db:"type"`
	LotSize    int64      `db:"lot_size"`
	CreatedAt  *time.Time `db:"created_at"`
	ModifiedAt *time.Time `db:"modified_at"`
}

const getAssetByTicker = `
SELECT id, ticker, name, type, lot_size, created_at, modified_at
FROM assets
WHERE ticker = $1
`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	rows, err := q.db.Query(ctx, getAssetByTicker, ticker)
	if err != nil {
		return assetRow{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[assetRow])
}

type getAggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  time.Time
	Endtime    time.Time
}

type aggregateRow struct {
	Bucket  time.Time       `db:"bucket"`
	AssetID int32           `db:"asset_id"`
	Open    decimal.Decimal `db:"open"`
	High    decimal.Decimal `db:"high"`
	Low     decimal.Decimal `db:"low"`
	Close   decimal.Decimal `db:"close"`
	Volume  decimal.Decimal `db:"volume"`
}

const getAggregates = `
SELECT time_bucket($1::interval, c.time) AS bucket,
       c.asset_id,
       first(c.open, c.time) AS open,
       max(c.high)           AS high,
       min(c.low)            AS low,
       last(c.close, c.time) AS close,
       sum(c.volume)         AS volume
FROM candles c
WHERE c.asset_id = $2
  AND c.time >= $3
  AND c.time < $4
GROUP BY bucket, c.asset_id
ORDER BY bucket
`

func (q *queries) GetAggregates(ctx context.Context, arg getAggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[aggregateRow])
}
