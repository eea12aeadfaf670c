package strategies

import (
	"ashare-backtester/internal/engine"
	"ashare-backtester/strategies/base"
	"ashare-backtester/strategies/dca"
	"ashare-backtester/strategies/donchian"
	"ashare-backtester/strategies/macross"
	"ashare-backtester/strategies/rsi"
	"fmt"
)

// Names lists the built-in strategies.
func Names() []string {
	return []string{dca.Name, donchian.Name, macross.Name, rsi.Name}
}

// New builds the named strategy with params; missing params take defaults.
func New(name string, params map[string]float64) (engine.Strategy, error) {
	var (
		s   engine.Strategy
		err error
	)
	switch name {
	case dca.Name:
		s, err = dca.New(params)
	case donchian.Name:
		s, err = donchian.New(params)
	case macross.Name:
		s, err = macross.New(params)
	case rsi.Name:
		s, err = rsi.New(params)
	default:
		return nil, fmt.Errorf("%q %w, available: %v", name, base.ErrStrategyNotFound, Names())
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}
