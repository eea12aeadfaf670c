package engine

import (
	"ashare-backtester/types"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// backtester is the event loop of one job. It is single threaded and owns
// its ledger.
type backtester struct {
	job    Job
	feeds  []Feed
	config RunConfig
	costs  CostModel
	sizer  PositionSizer
	ledger *ledger
	log    *zap.Logger

	states    []any
	feedIndex []int
	lastClose map[string]decimal.Decimal
	decisions []types.Decision

	start   time.Time
	curTime time.Time
	curDay  time.Time
}

type pendingSignal struct {
	feed   int
	bar    types.Bar
	signal types.Signal
}

func newBacktester(job Job, log *zap.Logger) *backtester {
	if log == nil {
		log = zap.NewNop()
	}
	// Same-timestamp work runs in (symbol, strategy) order so shared-cash
	// runs are reproducible.
	feeds := append([]Feed(nil), job.Feeds...)
	sort.SliceStable(feeds, func(i, j int) bool {
		if feeds[i].Symbol != feeds[j].Symbol {
			return feeds[i].Symbol < feeds[j].Symbol
		}
		return strategyName(feeds[i].Strategy) < strategyName(feeds[j].Strategy)
	})

	costs := NewCostModel(job.Config.Costs)
	return &backtester{
		job:       job,
		feeds:     feeds,
		config:    job.Config,
		costs:     costs,
		sizer:     NewPositionSizer(job.Config.Sizing, job.Config.MinCashReserve, costs),
		ledger:    newLedger(job.Config.InitialCash),
		log:       log.With(zap.String("run", job.Name())),
		states:    make([]any, len(feeds)),
		feedIndex: make([]int, len(feeds)),
		lastClose: make(map[string]decimal.Decimal),
	}
}

func (b *backtester) run(ctx context.Context) (*Result, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	for i, f := range b.feeds {
		b.states[i] = f.Strategy.Init()
	}
	b.start = b.nextTime()

	for {
		t, ok := b.nextTimestamp()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s cancelled at %s: %w", b.job.Name(), t.Format(time.DateTime), err)
		}
		if err := b.step(t); err != nil {
			return nil, err
		}
	}
	return b.result()
}

// step processes every feed with a bar at t.
func (b *backtester) step(t time.Time) error {
	b.curTime = t
	if day := types.TradingDay(t); !day.Equal(b.curDay) {
		if err := b.ledger.advanceDay(day); err != nil {
			return &RunError{JobID: b.job.Name(), Err: err}
		}
		b.curDay = day
	}

	var pending []pendingSignal
	for i, f := range b.feeds {
		idx := b.feedIndex[i]
		if idx >= f.Bars.Len() {
			continue
		}
		bar := f.Bars.At(idx)
		if !bar.Timestamp.Equal(t) {
			continue
		}
		b.feedIndex[i]++
		b.lastClose[f.Symbol] = bar.Close

		var signal types.Signal
		signal, b.states[i] = f.Strategy.Decide(bar, b.states[i])
		if signal != types.Hold {
			pending = append(pending, pendingSignal{feed: i, bar: bar, signal: signal})
		}
	}

	// Sells settle first so their proceeds are visible to buys on the same bar.
	for _, want := range []types.Signal{types.Sell, types.Buy} {
		for _, p := range pending {
			if p.signal != want {
				continue
			}
			if err := b.execute(p); err != nil {
				return err
			}
		}
	}

	b.ledger.markToMarket(t, b.lastClose)
	return nil
}

func (b *backtester) execute(p pendingSignal) error {
	feed := b.feeds[p.feed]
	name := strategyName(feed.Strategy)
	decision := types.Decision{
		Time:     p.bar.Timestamp,
		Symbol:   feed.Symbol,
		Strategy: name,
		Signal:   p.signal,
	}

	view := b.ledger.snapshot(p.bar.Timestamp)
	qty := b.sizer.Size(p.signal, view, feed.Symbol, p.bar.Close, b.config.LotSize)
	if qty == 0 {
		decision.Reason = "insufficient cash"
		if p.signal == types.Sell {
			decision.Reason = "nothing sellable"
		}
		b.decisions = append(b.decisions, decision)
		b.log.Debug("signal skipped",
			zap.String("symbol", feed.Symbol),
			zap.Stringer("signal", p.signal),
			zap.String("reason", decision.Reason),
			zap.Time("time", p.bar.Timestamp),
		)
		return nil
	}

	side, _ := p.signal.Side()
	order := types.NewOrder(feed.Symbol, side, qty, p.bar.Close, name, p.bar.Timestamp)
	fill := b.costs.PriceFill(order, p.bar.Close, p.bar.Timestamp)
	if err := b.ledger.applyFill(fill); err != nil {
		b.log.Error("ledger rejected fill",
			zap.String("symbol", feed.Symbol),
			zap.String("side", string(side)),
			zap.Int64("quantity", qty),
			zap.Error(err),
		)
		return &ConsistencyFault{JobID: b.job.Name(), Symbol: feed.Symbol, Err: err}
	}

	decision.Quantity = qty
	decision.Reason = "filled"
	b.decisions = append(b.decisions, decision)
	b.log.Debug("fill",
		zap.String("symbol", feed.Symbol),
		zap.String("side", string(side)),
		zap.Int64("quantity", qty),
		zap.Stringer("price", fill.Price),
		zap.Stringer("commission", fill.Commission),
		zap.Stringer("duty", fill.Duty),
		zap.Time("time", fill.Time),
	)
	return nil
}

func (b *backtester) validate() error {
	if len(b.feeds) == 0 {
		return &RunError{JobID: b.job.Name(), Err: ErrNoFeeds}
	}
	for _, f := range b.feeds {
		if f.Err != nil {
			return &RunError{JobID: b.job.Name(), Symbol: f.Symbol, Err: f.Err}
		}
		if f.Strategy == nil {
			return &RunError{JobID: b.job.Name(), Symbol: f.Symbol, Err: ErrNilStrategy}
		}
		if err := validateBars(f); err != nil {
			return &RunError{JobID: b.job.Name(), Symbol: f.Symbol, Err: err}
		}
	}
	return nil
}

func validateBars(f Feed) error {
	if f.Bars == nil || f.Bars.Len() == 0 {
		return ErrNoBars
	}
	var prev time.Time
	for i := 0; i < f.Bars.Len(); i++ {
		bar := f.Bars.At(i)
		if bar.Symbol != f.Symbol {
			return fmt.Errorf("%w: bar %d has symbol %q", ErrSymbolMismatch, i, bar.Symbol)
		}
		if !bar.Close.IsPositive() {
			return fmt.Errorf("%w: bar %d at %s has close %s", ErrInvalidBar, i, bar.Timestamp.Format(time.DateTime), bar.Close)
		}
		if i > 0 && !bar.Timestamp.After(prev) {
			return fmt.Errorf("%w: bar %d at %s follows %s", ErrNonMonotonicBars, i,
				bar.Timestamp.Format(time.DateTime), prev.Format(time.DateTime))
		}
		prev = bar.Timestamp
	}
	return nil
}

// nextTimestamp is the earliest unprocessed bar time over all feeds.
func (b *backtester) nextTimestamp() (time.Time, bool) {
	var next time.Time
	found := false
	for i, f := range b.feeds {
		idx := b.feedIndex[i]
		if idx >= f.Bars.Len() {
			continue
		}
		ts := f.Bars.At(idx).Timestamp
		if !found || ts.Before(next) {
			next = ts
			found = true
		}
	}
	return next, found
}

func (b *backtester) nextTime() time.Time {
	t, _ := b.nextTimestamp()
	return t
}

func (b *backtester) result() (*Result, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("result id: %w", err)
	}
	strategies := make([]string, 0, len(b.feeds))
	for _, f := range b.feeds {
		strategies = append(strategies, strategyName(f.Strategy))
	}
	return &Result{
		ID:           id,
		Name:         b.job.Name(),
		Symbols:      b.job.Symbols(),
		Strategies:   strategies,
		Config:       b.config,
		Start:        b.start,
		End:          b.curTime,
		Final:        b.ledger.snapshot(b.curTime),
		Lots:         b.ledger.openLots(),
		Fills:        append([]types.Fill(nil), b.ledger.fills...),
		Decisions:    b.decisions,
		ClosedTrades: append([]types.ClosedTrade(nil), b.ledger.closedTrades...),
		EquityCurve:  append([]types.EquityPoint(nil), b.ledger.equityCurve...),
	}, nil
}

func strategyName(s Strategy) string {
	if s == nil {
		return ""
	}
	return s.Name()
}

// Backtest runs a single job synchronously.
func Backtest(ctx context.Context, job Job, log *zap.Logger) (*Result, error) {
	if err := job.Config.Validate(); err != nil {
		return nil, &RunError{JobID: job.Name(), Symbol: symbolList(job), Err: err}
	}
	return newBacktester(job, log).run(ctx)
}

// symbolList is the distinct feed symbols of job joined by commas.
func symbolList(job Job) string {
	seen := make(map[string]bool, len(job.Feeds))
	out := make([]string, 0, len(job.Feeds))
	for _, symbol := range job.Symbols() {
		if !seen[symbol] {
			seen[symbol] = true
			out = append(out, symbol)
		}
	}
	return strings.Join(out, ",")
}
