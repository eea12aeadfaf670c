package base

import (
	"ashare-backtester/types"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCustomSettings is returned for a bad strategy parameter
	ErrInvalidCustomSettings = errors.New("invalid custom settings")
	// ErrStrategyNotFound is returned when a strategy name is not registered
	ErrStrategyNotFound = errors.New("strategy not found")
)

// PositiveInt reads key from params as a positive integer, falling back to def.
func PositiveInt(params map[string]float64, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	if v <= 0 || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %v", ErrInvalidCustomSettings, key, v)
	}
	return int(v), nil
}

// Float reads key from params, falling back to def.
func Float(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// CheckKeys rejects any key in params that is not in allowed.
func CheckKeys(params map[string]float64, allowed ...string) error {
	for k := range params {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unrecognised key %q", ErrInvalidCustomSettings, k)
		}
	}
	return nil
}

// Window appends v to a copy of values and keeps at most size elements.
// The input slice is never modified, so earlier states stay valid.
func Window(values []decimal.Decimal, v decimal.Decimal, size int) []decimal.Decimal {
	start := 0
	if n := len(values) + 1; n > size {
		start = n - size
	}
	out := make([]decimal.Decimal, 0, len(values)+1-start)
	if start < len(values) {
		out = append(out, values[start:]...)
	}
	return append(out, v)
}

// BarWindow is Window for bars.
func BarWindow(bars []types.Bar, b types.Bar, size int) []types.Bar {
	start := 0
	if n := len(bars) + 1; n > size {
		start = n - size
	}
	out := make([]types.Bar, 0, len(bars)+1-start)
	if start < len(bars) {
		out = append(out, bars[start:]...)
	}
	return append(out, b)
}

// Mean is the arithmetic mean of values; zero for an empty slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, values...).Div(decimal.NewFromInt(int64(len(values))))
}
