package engine

import (
	"ashare-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// feePlaces is the rounding precision of commission and stamp duty.
const feePlaces = 2

// CostModel prices prospective fills. It holds no state besides the
// schedule, so the same inputs always give the same Fill.
type CostModel struct {
	costs CostConfig
}

func NewCostModel(costs CostConfig) CostModel {
	return CostModel{costs: costs}
}

// PriceFill executes order at marketPrice adjusted for slippage:
// buys fill higher, sells fill lower.
func (m CostModel) PriceFill(order types.Order, marketPrice decimal.Decimal, at time.Time) types.Fill {
	price := m.slippedPrice(order.Side, marketPrice)
	notional := price.Mul(decimal.NewFromInt(order.Quantity))

	duty := decimal.Zero
	if order.Side == types.SideTypeSell {
		duty = notional.Mul(m.costs.StampDutyRate).Round(feePlaces)
	}
	return types.Fill{
		Order:      order,
		Price:      price,
		Commission: m.commission(notional),
		Duty:       duty,
		Time:       at,
	}
}

// BuyCost is the cash a buy of quantity at marketPrice would consume.
func (m CostModel) BuyCost(quantity int64, marketPrice decimal.Decimal) decimal.Decimal {
	notional := m.slippedPrice(types.SideTypeBuy, marketPrice).Mul(decimal.NewFromInt(quantity))
	return notional.Add(m.commission(notional))
}

func (m CostModel) slippedPrice(side types.Side, marketPrice decimal.Decimal) decimal.Decimal {
	slip := marketPrice.Mul(m.costs.SlippageRate)
	if side == types.SideTypeBuy {
		return marketPrice.Add(slip)
	}
	return marketPrice.Sub(slip)
}

func (m CostModel) commission(notional decimal.Decimal) decimal.Decimal {
	if !notional.IsPositive() {
		return decimal.Zero
	}
	fee := notional.Mul(m.costs.CommissionRate).Round(feePlaces)
	return decimal.Max(fee, m.costs.MinCommission)
}
