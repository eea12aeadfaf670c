package dca

import (
	"ashare-backtester/strategies/base"
	"ashare-backtester/types"
)

const (
	// Name is the strategy name
	Name     = "dca"
	everyKey = "every"
)

// Strategy is dollar cost averaging: buy on every n-th bar, never sell.
// Buy size comes from the sizer, so fixed_cash sizing gives the classic
// constant-amount purchase.
type Strategy struct {
	every int
}

type state struct {
	seen int
}

func New(params map[string]float64) (*Strategy, error) {
	if err := base.CheckKeys(params, everyKey); err != nil {
		return nil, err
	}
	every, err := base.PositiveInt(params, everyKey, 1)
	if err != nil {
		return nil, err
	}
	return &Strategy{every: every}, nil
}

func (s *Strategy) Name() string { return Name }

func (s *Strategy) Init() any { return state{} }

func (s *Strategy) Decide(_ types.Bar, st any) (types.Signal, any) {
	prev, _ := st.(state)
	next := state{seen: prev.seen + 1}
	if (next.seen-1)%s.every == 0 {
		return types.Buy, next
	}
	return types.Hold, next
}
