package engine

import (
	"ashare-backtester/types"

	"github.com/shopspring/decimal"
)

var allInFraction = decimal.RequireFromString("0.99")

// PositionSizer turns a directional signal into a lot-aligned quantity.
type PositionSizer struct {
	sizing  SizingConfig
	reserve decimal.Decimal
	costs   CostModel
}

func NewPositionSizer(sizing SizingConfig, minCashReserve decimal.Decimal, costs CostModel) PositionSizer {
	return PositionSizer{
		sizing:  sizing,
		reserve: minCashReserve,
		costs:   costs,
	}
}

// Size returns the order quantity for signal on symbol. Buys are a multiple
// of lotSize whose full cost fits in cash above the reserve. Sells are the
// symbol's settled quantity, never the locked part of the holding. Zero
// means nothing can be done and is not an error.
func (s PositionSizer) Size(signal types.Signal, view types.PortfolioView, symbol string, referencePrice decimal.Decimal, lotSize int64) int64 {
	if lotSize <= 0 || !referencePrice.IsPositive() {
		return 0
	}
	switch signal {
	case types.Buy:
		return s.sizeBuy(view.Cash, referencePrice, lotSize)
	case types.Sell:
		return view.Sellable(symbol)
	}
	return 0
}

func (s PositionSizer) sizeBuy(cash, price decimal.Decimal, lotSize int64) int64 {
	available := cash.Sub(s.reserve)
	if !available.IsPositive() {
		return 0
	}

	var budget decimal.Decimal
	switch s.sizing.Method {
	case SizingFixedFraction:
		budget = available.Mul(s.sizing.Param)
	case SizingFixedCash:
		budget = decimal.Min(s.sizing.Param, available)
	default:
		budget = available.Mul(allInFraction)
	}

	lot := decimal.NewFromInt(lotSize)
	lots := budget.Div(price).Div(lot).Floor().IntPart()

	// The formula ignores slippage and commission; drop lots until the
	// priced buy fits.
	for lots > 0 && s.costs.BuyCost(lots*lotSize, price).GreaterThan(available) {
		lots--
	}
	return lots * lotSize
}
