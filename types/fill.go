package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is a priced order. Price already includes slippage.
type Fill struct {
	Order      Order
	Price      decimal.Decimal
	Commission decimal.Decimal
	Duty       decimal.Decimal
	Time       time.Time
}

func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Order.Quantity))
}

// Fees is commission plus stamp duty.
func (f Fill) Fees() decimal.Decimal {
	return f.Commission.Add(f.Duty)
}

// CashDelta is the signed cash movement the fill causes on the ledger.
func (f Fill) CashDelta() decimal.Decimal {
	if f.Order.Side == SideTypeBuy {
		return f.Notional().Add(f.Commission).Neg()
	}
	return f.Notional().Sub(f.Commission).Sub(f.Duty)
}

// Lot is a quantity of shares acquired on one trading day. A lot is either
// fully settled (sellable) or fully locked.
type Lot struct {
	Symbol     string
	Quantity   int64
	AcquiredOn time.Time
	// CostBasis is notional plus buy commission for the remaining quantity.
	CostBasis decimal.Decimal
	Settled   bool
}

// ClosedTrade is the realized outcome of one sell fill against FIFO cost basis.
type ClosedTrade struct {
	Symbol   string
	Time     time.Time
	Quantity int64
	Proceeds decimal.Decimal
	Cost     decimal.Decimal
	PnL      decimal.Decimal
}

type EquityPoint struct {
	Time     time.Time
	Equity   decimal.Decimal
	Cash     decimal.Decimal
	Position int64
}

// Decision records every non-hold signal and what the sizer made of it.
// Quantity 0 marks a business no-op.
type Decision struct {
	Time     time.Time
	Symbol   string
	Strategy string
	Signal   Signal
	Quantity int64
	Reason   string
}
