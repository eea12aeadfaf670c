package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PortfolioView struct {
	Cash        decimal.Decimal
	Positions   map[string]PositionSnapshot
	RealizedPnL decimal.Decimal
	Time        time.Time
}

type PositionSnapshot struct {
	Symbol    string
	Quantity  int64
	Sellable  int64
	CostBasis decimal.Decimal
	LastPrice decimal.Decimal
}

func (p PositionSnapshot) MarketValue() decimal.Decimal {
	return p.LastPrice.Mul(decimal.NewFromInt(p.Quantity))
}

func (p PositionSnapshot) UnrealizedPnL() decimal.Decimal {
	return p.MarketValue().Sub(p.CostBasis)
}

// Equity is cash plus the market value of every position.
func (v PortfolioView) Equity() decimal.Decimal {
	total := v.Cash
	for _, pos := range v.Positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

// Sellable returns the settled quantity held for symbol.
func (v PortfolioView) Sellable(symbol string) int64 {
	return v.Positions[symbol].Sellable
}
