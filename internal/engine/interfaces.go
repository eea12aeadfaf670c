package engine

import (
	"ashare-backtester/types"
	"context"
	"time"
)

// Strategy decides one bar at a time. Decide must depend only on bars
// already passed to it, carried in the state value it returns. A strategy
// that cannot decide returns types.Hold.
type Strategy interface {
	Name() string
	// Init returns the state for a fresh run.
	Init() any
	Decide(bar types.Bar, state any) (types.Signal, any)
}

// BarSource is the data collaborator. Bars must come back fully
// materialized and ordered by timestamp.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Bar, error)
}
