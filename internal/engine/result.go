package engine

import (
	"ashare-backtester/types"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Feed is one symbol's bars driven by one strategy. Err is set when the
// bars could not be loaded; the run then fails with it.
type Feed struct {
	Symbol   string
	Strategy Strategy
	Bars     types.BarSeries
	Err      error
}

// Job is one backtest run. A single feed is the usual (symbol, strategy)
// pair; several feeds share one cash balance.
type Job struct {
	ID     string
	Feeds  []Feed
	Config RunConfig
}

// Symbols returns the feed symbols in feed order.
func (j Job) Symbols() []string {
	out := make([]string, 0, len(j.Feeds))
	for _, f := range j.Feeds {
		out = append(out, f.Symbol)
	}
	return out
}

// Name is the job id when set, else symbol/strategy pairs joined by commas.
func (j Job) Name() string {
	if j.ID != "" {
		return j.ID
	}
	parts := make([]string, 0, len(j.Feeds))
	for _, f := range j.Feeds {
		name := "<nil>"
		if f.Strategy != nil {
			name = f.Strategy.Name()
		}
		parts = append(parts, f.Symbol+"/"+name)
	}
	return strings.Join(parts, ",")
}

// Result is the finished artifact of one run, handed to reporting. It is
// not modified after the run returns it.
type Result struct {
	ID           uuid.UUID
	Name         string
	Symbols      []string
	Strategies   []string
	Config       RunConfig
	Start        time.Time
	End          time.Time
	Final        types.PortfolioView
	Lots         []types.Lot
	Fills        []types.Fill
	Decisions    []types.Decision
	ClosedTrades []types.ClosedTrade
	EquityCurve  []types.EquityPoint
}

func (r *Result) FinalEquity() decimal.Decimal {
	if len(r.EquityCurve) == 0 {
		return r.Config.InitialCash
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Equity
}

// ReconcileCash replays the fill log from initial cash. It equals
// Final.Cash for every consistent run.
func (r *Result) ReconcileCash() decimal.Decimal {
	cash := r.Config.InitialCash
	for _, f := range r.Fills {
		cash = cash.Add(f.CashDelta())
	}
	return cash
}
