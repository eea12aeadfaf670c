package engine

import (
	"ashare-backtester/types"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSide          = errors.New("unknown fill side")
	ErrInsufficientCash     = errors.New("insufficient cash when applying buy fill")
	ErrInsufficientSellable = errors.New("sell exceeds sellable quantity")
	ErrDayNotAdvanced       = errors.New("trading day did not advance")
)

// holding keeps the lots of one symbol in acquisition order. Consumed lots
// stay in the arena below head until the holding is emptied.
type holding struct {
	lots      []types.Lot
	head      int
	lastPrice decimal.Decimal
}

func (h *holding) open() []types.Lot {
	return h.lots[h.head:]
}

func (h *holding) quantity() int64 {
	var q int64
	for _, l := range h.open() {
		q += l.Quantity
	}
	return q
}

func (h *holding) sellable() int64 {
	var q int64
	for _, l := range h.open() {
		if l.Settled {
			q += l.Quantity
		}
	}
	return q
}

func (h *holding) costBasis() decimal.Decimal {
	total := decimal.Zero
	for _, l := range h.open() {
		total = total.Add(l.CostBasis)
	}
	return total
}

// ledger owns cash, lots and the equity curve of one run. It is not safe
// for concurrent use; each run has its own.
type ledger struct {
	cash         decimal.Decimal
	holdings     map[string]*holding
	day          time.Time
	fills        []types.Fill
	closedTrades []types.ClosedTrade
	realizedPnL  decimal.Decimal
	equityCurve  []types.EquityPoint
}

func newLedger(initialCash decimal.Decimal) *ledger {
	return &ledger{
		cash:     initialCash,
		holdings: make(map[string]*holding),
	}
}

// applyFill books fill. A sell that exceeds the settled quantity fails with
// ErrInsufficientSellable and leaves the ledger untouched.
func (l *ledger) applyFill(fill types.Fill) error {
	switch fill.Order.Side {
	case types.SideTypeBuy:
		return l.applyBuy(fill)
	case types.SideTypeSell:
		return l.applySell(fill)
	}
	return fmt.Errorf("%w: %q", ErrUnknownSide, fill.Order.Side)
}

func (l *ledger) applyBuy(fill types.Fill) error {
	cost := fill.Notional().Add(fill.Commission)
	newCash := l.cash.Sub(cost)
	if newCash.IsNegative() {
		return fmt.Errorf("%w: %s needs %s, cash %s", ErrInsufficientCash, fill.Order.Symbol, cost, l.cash)
	}
	l.cash = newCash

	h := l.holding(fill.Order.Symbol)
	h.lots = append(h.lots, types.Lot{
		Symbol:     fill.Order.Symbol,
		Quantity:   fill.Order.Quantity,
		AcquiredOn: types.TradingDay(fill.Time),
		CostBasis:  cost,
	})
	h.lastPrice = fill.Price
	l.fills = append(l.fills, fill)
	return nil
}

func (l *ledger) applySell(fill types.Fill) error {
	symbol := fill.Order.Symbol
	h := l.holdings[symbol]
	var sellable int64
	if h != nil {
		sellable = h.sellable()
	}
	if fill.Order.Quantity > sellable {
		return fmt.Errorf("%w: %s sell %d, sellable %d", ErrInsufficientSellable, symbol, fill.Order.Quantity, sellable)
	}

	// Settled lots always precede locked ones since lots settle in
	// acquisition order, so FIFO over the arena only touches settled lots.
	remaining := fill.Order.Quantity
	cost := decimal.Zero
	for remaining > 0 {
		lot := &h.lots[h.head]
		if lot.Quantity <= remaining {
			cost = cost.Add(lot.CostBasis)
			remaining -= lot.Quantity
			lot.Quantity = 0
			lot.CostBasis = decimal.Zero
			h.head++
			continue
		}
		part := lot.CostBasis.Mul(decimal.NewFromInt(remaining)).Div(decimal.NewFromInt(lot.Quantity))
		cost = cost.Add(part)
		lot.CostBasis = lot.CostBasis.Sub(part)
		lot.Quantity -= remaining
		remaining = 0
	}
	if h.head == len(h.lots) {
		h.lots = h.lots[:0]
		h.head = 0
	}

	proceeds := fill.CashDelta()
	l.cash = l.cash.Add(proceeds)
	pnl := proceeds.Sub(cost)
	l.realizedPnL = l.realizedPnL.Add(pnl)
	h.lastPrice = fill.Price
	l.fills = append(l.fills, fill)
	l.closedTrades = append(l.closedTrades, types.ClosedTrade{
		Symbol:   symbol,
		Time:     fill.Time,
		Quantity: fill.Order.Quantity,
		Proceeds: proceeds,
		Cost:     cost,
		PnL:      pnl,
	})
	return nil
}

// advanceDay moves the ledger to day and settles every lot acquired on an
// earlier day. day must be strictly after the previous one.
func (l *ledger) advanceDay(day time.Time) error {
	day = types.TradingDay(day)
	if !l.day.IsZero() && !day.After(l.day) {
		return fmt.Errorf("%w: %s is not after %s", ErrDayNotAdvanced, day.Format(time.DateOnly), l.day.Format(time.DateOnly))
	}
	l.day = day
	for _, h := range l.holdings {
		open := h.open()
		for i := range open {
			if !open[i].Settled && open[i].AcquiredOn.Before(day) {
				open[i].Settled = true
			}
		}
	}
	return nil
}

// markToMarket records the latest prices and appends one equity point.
func (l *ledger) markToMarket(at time.Time, prices map[string]decimal.Decimal) types.EquityPoint {
	for symbol, price := range prices {
		if h, ok := l.holdings[symbol]; ok {
			h.lastPrice = price
		}
	}
	equity := l.cash
	var position int64
	for _, h := range l.holdings {
		q := h.quantity()
		position += q
		equity = equity.Add(h.lastPrice.Mul(decimal.NewFromInt(q)))
	}
	point := types.EquityPoint{Time: at, Equity: equity, Cash: l.cash, Position: position}
	l.equityCurve = append(l.equityCurve, point)
	return point
}

func (l *ledger) snapshot(at time.Time) types.PortfolioView {
	view := types.PortfolioView{
		Cash:        l.cash,
		Positions:   make(map[string]types.PositionSnapshot, len(l.holdings)),
		RealizedPnL: l.realizedPnL,
		Time:        at,
	}
	for symbol, h := range l.holdings {
		q := h.quantity()
		if q == 0 {
			continue
		}
		view.Positions[symbol] = types.PositionSnapshot{
			Symbol:    symbol,
			Quantity:  q,
			Sellable:  h.sellable(),
			CostBasis: h.costBasis(),
			LastPrice: h.lastPrice,
		}
	}
	return view
}

// openLots returns a copy of every open lot, ordered by symbol then acquisition.
func (l *ledger) openLots() []types.Lot {
	symbols := make([]string, 0, len(l.holdings))
	for symbol := range l.holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var lots []types.Lot
	for _, symbol := range symbols {
		lots = append(lots, l.holdings[symbol].open()...)
	}
	return lots
}

func (l *ledger) holding(symbol string) *holding {
	h := l.holdings[symbol]
	if h == nil {
		h = &holding{}
		l.holdings[symbol] = h
	}
	return h
}
