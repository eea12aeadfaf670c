package macross

import (
	"ashare-backtester/strategies/base"
	"ashare-backtester/types"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// Name is the strategy name
	Name    = "ma_cross"
	fastKey = "fast"
	slowKey = "slow"
	defFast = 5
	defSlow = 20
)

// Strategy signals on crossings of a fast and a slow simple moving average
// of closes: Buy when fast crosses above slow, Sell when it crosses below.
type Strategy struct {
	fast int
	slow int
}

type state struct {
	closes []decimal.Decimal
	// above is the fast/slow relation on the previous bar; set once both
	// averages exist.
	above *bool
}

func New(params map[string]float64) (*Strategy, error) {
	if err := base.CheckKeys(params, fastKey, slowKey); err != nil {
		return nil, err
	}
	fast, err := base.PositiveInt(params, fastKey, defFast)
	if err != nil {
		return nil, err
	}
	slow, err := base.PositiveInt(params, slowKey, defSlow)
	if err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast period %d must be below slow period %d", base.ErrInvalidCustomSettings, fast, slow)
	}
	return &Strategy{fast: fast, slow: slow}, nil
}

func (s *Strategy) Name() string { return Name }

func (s *Strategy) Init() any { return state{} }

func (s *Strategy) Decide(bar types.Bar, st any) (types.Signal, any) {
	prev, ok := st.(state)
	if !ok {
		prev = state{}
	}
	next := state{closes: base.Window(prev.closes, bar.Close, s.slow), above: prev.above}
	if len(next.closes) < s.slow {
		return types.Hold, next
	}

	fastMA := base.Mean(next.closes[len(next.closes)-s.fast:])
	slowMA := base.Mean(next.closes)
	// equal averages keep the previous relation
	if fastMA.Equal(slowMA) {
		return types.Hold, next
	}
	above := fastMA.GreaterThan(slowMA)
	next.above = &above

	if prev.above == nil || *prev.above == above {
		return types.Hold, next
	}
	if above {
		return types.Buy, next
	}
	return types.Sell, next
}
