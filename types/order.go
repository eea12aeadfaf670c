package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"
)

// Order is the abstract order intent of one event step. The same value is
// handed to the backtest ledger or to a live execution adapter.
type Order struct {
	Symbol         string
	Side           Side
	Quantity       int64
	ReferencePrice decimal.Decimal
	Reason         string
	CreatedAt      time.Time
}

func NewOrder(
	symbol string,
	side Side,
	quantity int64,
	referencePrice decimal.Decimal,
	reason string,
	createdAt time.Time,
) Order {
	return Order{
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		ReferencePrice: referencePrice,
		Reason:         reason,
		CreatedAt:      createdAt,
	}
}
