package rsi

import (
	"ashare-backtester/strategies/base"
	"ashare-backtester/types"
	"fmt"
	"math"

	"github.com/thrasher-corp/gct-ta/indicators"
)

const (
	// Name is the strategy name
	Name          = "rsi"
	periodKey     = "period"
	overboughtKey = "overbought"
	oversoldKey   = "oversold"
)

// lookbackFactor sizes the close window RSI smoothing runs over, in periods.
const lookbackFactor = 10

// Strategy buys when RSI is at or below the oversold level and sells when
// it is at or above the overbought level.
type Strategy struct {
	period     int
	overbought float64
	oversold   float64
}

type state struct {
	closes []float64
}

// New builds the strategy. Defaults are period 14, overbought 70, oversold 30.
func New(params map[string]float64) (*Strategy, error) {
	if err := base.CheckKeys(params, periodKey, overboughtKey, oversoldKey); err != nil {
		return nil, err
	}
	period, err := base.PositiveInt(params, periodKey, 14)
	if err != nil {
		return nil, err
	}
	s := &Strategy{
		period:     period,
		overbought: base.Float(params, overboughtKey, 70),
		oversold:   base.Float(params, oversoldKey, 30),
	}
	if s.oversold <= 0 || s.overbought >= 100 || s.oversold >= s.overbought {
		return nil, fmt.Errorf("%w: need 0 < oversold < overbought < 100, got %v/%v",
			base.ErrInvalidCustomSettings, s.oversold, s.overbought)
	}
	return s, nil
}

func (s *Strategy) Name() string { return Name }

func (s *Strategy) Init() any { return state{} }

func (s *Strategy) Decide(bar types.Bar, st any) (types.Signal, any) {
	prev, ok := st.(state)
	if !ok {
		prev = state{}
	}
	next := state{closes: window(prev.closes, bar.Close.InexactFloat64(), s.period*lookbackFactor)}
	if len(next.closes) <= s.period {
		return types.Hold, next
	}

	values := indicators.RSI(next.closes, s.period)
	if len(values) == 0 {
		return types.Hold, next
	}
	latest := values[len(values)-1]
	if math.IsNaN(latest) || math.IsInf(latest, 0) {
		return types.Hold, next
	}

	switch {
	case latest >= s.overbought:
		return types.Sell, next
	case latest <= s.oversold:
		return types.Buy, next
	}
	return types.Hold, next
}

// window copies closes plus v, keeping the last size values. indicators.RSI
// does not retain its input, but a fresh slice keeps earlier states valid.
func window(closes []float64, v float64, size int) []float64 {
	start := 0
	if n := len(closes) + 1; n > size {
		start = n - size
	}
	out := make([]float64, 0, len(closes)+1-start)
	out = append(out, closes[start:]...)
	return append(out, v)
}
