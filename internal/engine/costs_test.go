package engine

import (
	"ashare-backtester/types"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testAt = time.Date(2024, 1, 2, 15, 0, 0, 0, types.MarketLocation)

func ashareCosts() CostConfig {
	return CostConfig{
		CommissionRate: decimal.RequireFromString("0.0003"),
		MinCommission:  decimal.RequireFromString("5"),
		StampDutyRate:  decimal.RequireFromString("0.001"),
		SlippageRate:   decimal.RequireFromString("0.0005"),
	}
}

func TestCostModel_PriceFill(t *testing.T) {
	tests := []struct {
		name           string
		costs          CostConfig
		side           types.Side
		qty            int64
		marketPrice    string
		wantPrice      string
		wantNotional   string
		wantCommission string
		wantDuty       string
		wantCashDelta  string
	}{
		{
			name:  "small buy hits minimum commission",
			costs: ashareCosts(), side: types.SideTypeBuy, qty: 100, marketPrice: "10",
			wantPrice: "10.005", wantNotional: "1000.5", wantCommission: "5", wantDuty: "0", wantCashDelta: "-1005.5",
		},
		{
			name:  "small sell pays minimum commission and duty",
			costs: ashareCosts(), side: types.SideTypeSell, qty: 100, marketPrice: "10",
			wantPrice: "9.995", wantNotional: "999.5", wantCommission: "5", wantDuty: "1", wantCashDelta: "993.5",
		},
		{
			name:  "large buy pays rate commission rounded to cents",
			costs: ashareCosts(), side: types.SideTypeBuy, qty: 9900, marketPrice: "10",
			wantPrice: "10.005", wantNotional: "99049.5", wantCommission: "29.71", wantDuty: "0", wantCashDelta: "-99079.21",
		},
		{
			name:  "large sell",
			costs: ashareCosts(), side: types.SideTypeSell, qty: 9900, marketPrice: "11",
			wantPrice: "10.9945", wantNotional: "108845.55", wantCommission: "32.65", wantDuty: "108.85", wantCashDelta: "108704.05",
		},
		{
			name:  "commission half rounds away from zero",
			costs: CostConfig{CommissionRate: decimal.RequireFromString("0.0003")}, side: types.SideTypeBuy, qty: 1000, marketPrice: "21.65",
			wantPrice: "21.65", wantNotional: "21650", wantCommission: "6.5", wantDuty: "0", wantCashDelta: "-21656.5",
		},
		{
			name:  "no costs",
			costs: CostConfig{}, side: types.SideTypeSell, qty: 100, marketPrice: "12.34",
			wantPrice: "12.34", wantNotional: "1234", wantCommission: "0", wantDuty: "0", wantCashDelta: "1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewCostModel(tt.costs)
			price := decimal.RequireFromString(tt.marketPrice)
			order := types.NewOrder("600000", tt.side, tt.qty, price, "test", testAt)
			fill := m.PriceFill(order, price, testAt)

			checks := []struct {
				label string
				got   decimal.Decimal
				want  string
			}{
				{"price", fill.Price, tt.wantPrice},
				{"notional", fill.Notional(), tt.wantNotional},
				{"commission", fill.Commission, tt.wantCommission},
				{"duty", fill.Duty, tt.wantDuty},
				{"cash delta", fill.CashDelta(), tt.wantCashDelta},
			}
			for _, c := range checks {
				if !c.got.Equal(decimal.RequireFromString(c.want)) {
					t.Fatalf("%s = %s, want %s", c.label, c.got, c.want)
				}
			}
			if !fill.Time.Equal(testAt) || fill.Order != order {
				t.Fatalf("fill does not carry its order and time: %+v", fill)
			}
		})
	}
}

func TestCostModel_Deterministic(t *testing.T) {
	m := NewCostModel(ashareCosts())
	price := decimal.RequireFromString("8.73")
	order := types.NewOrder("000001", types.SideTypeSell, 300, price, "test", testAt)

	first := m.PriceFill(order, price, testAt)
	for i := 0; i < 10; i++ {
		got := m.PriceFill(order, price, testAt)
		if !got.Price.Equal(first.Price) || !got.Commission.Equal(first.Commission) || !got.Duty.Equal(first.Duty) {
			t.Fatalf("run %d priced %+v, first %+v", i, got, first)
		}
	}
}

func TestCostModel_BuyCostMatchesFill(t *testing.T) {
	m := NewCostModel(ashareCosts())
	for _, p := range []string{"3.21", "10", "47.05", "1688.8"} {
		price := decimal.RequireFromString(p)
		order := types.NewOrder("600519", types.SideTypeBuy, 200, price, "test", testAt)
		fill := m.PriceFill(order, price, testAt)
		if !m.BuyCost(200, price).Equal(fill.CashDelta().Neg()) {
			t.Fatalf("price %s: BuyCost %s, fill debit %s", p, m.BuyCost(200, price), fill.CashDelta().Neg())
		}
	}
}
