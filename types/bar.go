package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// TradingDay returns the exchange calendar date of the bar.
func (b Bar) TradingDay() time.Time {
	return TradingDay(b.Timestamp)
}

// TradingDay truncates t to midnight of its calendar date in MarketLocation,
// whatever location t is stamped in.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.In(MarketLocation).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, MarketLocation)
}

// BarSeries is a finite, replayable, read-only sequence of bars for one symbol.
type BarSeries interface {
	Len() int
	At(i int) Bar
}

// Bars is the in-memory BarSeries.
type Bars []Bar

func (b Bars) Len() int { return len(b) }
func (b Bars) At(i int) Bar { return b[i] }

// MarketLocation is the exchange time zone trading days are counted in.
var MarketLocation = time.FixedZone("CST", 8*60*60)
