package donchian

import (
	"ashare-backtester/strategies/base"
	"ashare-backtester/types"

	"github.com/shopspring/decimal"
)

const (
	// Name is the strategy name
	Name        = "donchian"
	lookbackKey = "lookback"
	atrMultKey  = "atr_mult"
)

// Strategy trades channel breakouts: buy a break of the highest high of the
// preceding lookback bars, sell a break of the lowest low. With atr_mult > 0
// a long also exits when the close falls below entry close - atr_mult*ATR.
type Strategy struct {
	lookback int
	atrMult  decimal.Decimal
}

type state struct {
	history []types.Bar
	stop    decimal.Decimal
}

func New(params map[string]float64) (*Strategy, error) {
	if err := base.CheckKeys(params, lookbackKey, atrMultKey); err != nil {
		return nil, err
	}
	lookback, err := base.PositiveInt(params, lookbackKey, 20)
	if err != nil {
		return nil, err
	}
	mult := base.Float(params, atrMultKey, 0)
	if mult < 0 {
		mult = 0
	}
	return &Strategy{lookback: lookback, atrMult: decimal.NewFromFloat(mult)}, nil
}

func (s *Strategy) Name() string { return Name }

func (s *Strategy) Init() any { return state{} }

func (s *Strategy) Decide(bar types.Bar, st any) (types.Signal, any) {
	prev, ok := st.(state)
	if !ok {
		prev = state{}
	}
	// lookback completed bars plus the current one
	next := state{history: base.BarWindow(prev.history, bar, s.lookback+1), stop: prev.stop}
	if len(next.history) <= s.lookback {
		return types.Hold, next
	}

	channel := next.history[:len(next.history)-1]
	highestHigh, lowestLow := donchianHighLow(channel)

	switch {
	case bar.High.GreaterThan(highestHigh):
		next.stop = decimal.Zero
		if s.atrMult.IsPositive() {
			next.stop = bar.Close.Sub(calcATR(next.history, s.lookback).Mul(s.atrMult))
		}
		return types.Buy, next
	case bar.Low.LessThan(lowestLow):
		next.stop = decimal.Zero
		return types.Sell, next
	case next.stop.IsPositive() && bar.Close.LessThan(next.stop):
		// ATR stop-loss exit
		next.stop = decimal.Zero
		return types.Sell, next
	}
	return types.Hold, next
}

// Utility: Donchian Channel High/Low
func donchianHighLow(bars []types.Bar) (decimal.Decimal, decimal.Decimal) {
	if len(bars) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := bars[0].High
	lowest := bars[0].Low

	for _, b := range bars {
		if b.High.GreaterThan(highest) {
			highest = b.High
		}
		if b.Low.LessThan(lowest) {
			lowest = b.Low
		}
	}
	return highest, lowest
}

// calcATR is Wilder's average true range over bars. It needs period+1 bars.
func calcATR(bars []types.Bar, period int) decimal.Decimal {
	if len(bars) < period+1 {
		return decimal.Zero
	}

	trueRanges := make([]decimal.Decimal, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high := bars[i].High
		low := bars[i].Low
		prevClose := bars[i-1].Close

		trueRanges = append(trueRanges, decimal.Max(
			high.Sub(low),
			high.Sub(prevClose).Abs(),
			low.Sub(prevClose).Abs(),
		))
	}

	n := decimal.NewFromInt(int64(period))
	atr := decimal.Sum(decimal.Zero, trueRanges[:period]...).Div(n)
	for i := period; i < len(trueRanges); i++ {
		atr = atr.Mul(decimal.NewFromInt(int64(period - 1))).Add(trueRanges[i]).Div(n)
	}
	return atr
}
