package engine

import (
	"ashare-backtester/types"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// scriptedStrategy emits signals[i] on the i-th bar it sees.
type scriptedStrategy struct {
	name    string
	signals map[int]types.Signal
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Init() any { return 0 }

func (s *scriptedStrategy) Decide(_ types.Bar, state any) (types.Signal, any) {
	i := state.(int)
	return s.signals[i], i + 1
}

func mockBars(symbol string, start time.Time, step time.Duration, closes ...string) types.Bars {
	bars := make(types.Bars, 0, len(closes))
	for i, c := range closes {
		p := decimal.RequireFromString(c)
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Volume:    decimal.NewFromInt(1000),
		})
	}
	return bars
}

func scenarioConfig() RunConfig {
	cfg := NewRunConfig(decimal.NewFromInt(100000))
	cfg.Costs = ashareCosts()
	return cfg
}

func singleJob(cfg RunConfig, bars types.Bars, s Strategy) Job {
	return Job{
		Feeds:  []Feed{{Symbol: bars[0].Symbol, Strategy: s, Bars: bars}},
		Config: cfg,
	}
}

func TestBacktest_EndToEndScenario(t *testing.T) {
	bars := mockBars("600000", day(0), 24*time.Hour, "10.00", "10.20", "10.40", "10.30", "10.60", "10.80", "11.00")
	strat := &scriptedStrategy{name: "scripted", signals: map[int]types.Signal{0: types.Buy, 6: types.Sell}}

	res, err := Backtest(context.Background(), singleJob(scenarioConfig(), bars, strat), nil)
	if err != nil {
		t.Fatalf("Backtest() error = %v", err)
	}

	if len(res.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(res.Fills))
	}
	buy, sell := res.Fills[0], res.Fills[1]
	if buy.Order.Side != types.SideTypeBuy || buy.Order.Quantity != 9900 {
		t.Fatalf("buy = %+v", buy.Order)
	}
	if !buy.Price.Equal(decimal.RequireFromString("10.005")) || !buy.Commission.Equal(decimal.RequireFromString("29.71")) {
		t.Fatalf("buy priced at %s with commission %s", buy.Price, buy.Commission)
	}
	if sell.Order.Side != types.SideTypeSell || sell.Order.Quantity != 9900 {
		t.Fatalf("sell = %+v", sell.Order)
	}
	if !sell.Price.Equal(decimal.RequireFromString("10.9945")) ||
		!sell.Commission.Equal(decimal.RequireFromString("32.65")) ||
		!sell.Duty.Equal(decimal.RequireFromString("108.85")) {
		t.Fatalf("sell priced at %s, commission %s, duty %s", sell.Price, sell.Commission, sell.Duty)
	}

	wantCash := decimal.RequireFromString("109624.84")
	if !res.Final.Cash.Equal(wantCash) {
		t.Fatalf("final cash = %s, want %s", res.Final.Cash, wantCash)
	}
	if len(res.EquityCurve) != len(bars) {
		t.Fatalf("equity points = %d, want %d", len(res.EquityCurve), len(bars))
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if !last.Equity.Equal(wantCash) || !last.Cash.Equal(wantCash) || last.Position != 0 {
		t.Fatalf("last equity point = %+v", last)
	}
	first := res.EquityCurve[0]
	if !first.Cash.Equal(decimal.RequireFromString("920.79")) || !first.Equity.Equal(decimal.RequireFromString("99920.79")) || first.Position != 9900 {
		t.Fatalf("first equity point = %+v", first)
	}
	if !res.ReconcileCash().Equal(res.Final.Cash) {
		t.Fatalf("fill log replays to %s, ledger has %s", res.ReconcileCash(), res.Final.Cash)
	}
	if len(res.ClosedTrades) != 1 || !res.ClosedTrades[0].PnL.Equal(decimal.RequireFromString("9624.84")) {
		t.Fatalf("closed trades = %+v", res.ClosedTrades)
	}
	if len(res.Lots) != 0 {
		t.Fatalf("open lots after full exit = %+v", res.Lots)
	}
	if !res.Start.Equal(bars[0].Timestamp) || !res.End.Equal(bars[6].Timestamp) {
		t.Fatalf("run window %s - %s", res.Start, res.End)
	}
	for _, d := range res.Decisions {
		if d.Strategy != "scripted" || d.Reason != "filled" {
			t.Fatalf("decision = %+v, want strategy scripted and reason filled", d)
		}
	}
}

func TestBacktest_SameDayBuyThenSellIsCapped(t *testing.T) {
	open := time.Date(2024, 1, 2, 10, 0, 0, 0, types.MarketLocation)
	bars := mockBars("600000", open, 4*time.Hour, "10", "10.5")
	strat := &scriptedStrategy{name: "flip", signals: map[int]types.Signal{0: types.Buy, 1: types.Sell}}

	res, err := Backtest(context.Background(), singleJob(scenarioConfig(), bars, strat), nil)
	if err != nil {
		t.Fatalf("Backtest() error = %v", err)
	}
	if len(res.Fills) != 1 || res.Fills[0].Order.Side != types.SideTypeBuy {
		t.Fatalf("fills = %+v, want the buy only", res.Fills)
	}
	if len(res.Decisions) != 2 {
		t.Fatalf("decisions = %+v", res.Decisions)
	}
	if d := res.Decisions[1]; d.Signal != types.Sell || d.Quantity != 0 || d.Reason != "nothing sellable" {
		t.Fatalf("sell decision = %+v", d)
	}
	if res.Final.Positions["600000"].Sellable != 0 {
		t.Fatalf("bought shares became sellable on the purchase day")
	}
}

func TestBacktest_UTCStampedBarsSettleOnMarketDays(t *testing.T) {
	// 23:00 UTC and 02:00 UTC the next day are both 2024-01-02 in CST.
	bars := mockBars("600000", time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), 3*time.Hour, "10", "10.5")
	strat := &scriptedStrategy{name: "flip", signals: map[int]types.Signal{0: types.Buy, 1: types.Sell}}

	res, err := Backtest(context.Background(), singleJob(scenarioConfig(), bars, strat), nil)
	if err != nil {
		t.Fatalf("Backtest() error = %v", err)
	}
	if len(res.Fills) != 1 || res.Fills[0].Order.Side != types.SideTypeBuy {
		t.Fatalf("fills = %+v, want the buy only", res.Fills)
	}
}

func TestBacktest_MixedLocationFeeds(t *testing.T) {
	cfg := NewRunConfig(decimal.NewFromInt(100000))
	// 00:00 UTC is 08:00 CST, so b's bars open each CST day before a's.
	b := mockBars("600001", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 24*time.Hour, "10", "11")
	a := mockBars("600000", day(0), 24*time.Hour, "20", "20")
	job := Job{
		ID: "mixed",
		Feeds: []Feed{
			{Symbol: "600000", Strategy: &scriptedStrategy{name: "hold"}, Bars: a},
			{Symbol: "600001", Strategy: &scriptedStrategy{name: "flip", signals: map[int]types.Signal{0: types.Buy, 1: types.Sell}}, Bars: b},
		},
		Config: cfg,
	}

	res, err := Backtest(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Backtest() error = %v", err)
	}
	if len(res.EquityCurve) != 4 {
		t.Fatalf("equity points = %d, want 4", len(res.EquityCurve))
	}
	if len(res.Fills) != 2 || res.Fills[1].Order.Side != types.SideTypeSell {
		t.Fatalf("fills = %+v, want buy then next-day sell", res.Fills)
	}
}

func TestBacktest_InsufficientCashIsNoOp(t *testing.T) {
	bars := mockBars("600519", day(0), 24*time.Hour, "1700", "1710")
	strat := &scriptedStrategy{name: "buy", signals: map[int]types.Signal{0: types.Buy, 1: types.Buy}}
	cfg := NewRunConfig(decimal.NewFromInt(100000))

	res, err := Backtest(context.Background(), singleJob(cfg, bars, strat), nil)
	if err != nil {
		t.Fatalf("Backtest() error = %v", err)
	}
	if len(res.Fills) != 0 {
		t.Fatalf("fills = %+v", res.Fills)
	}
	for _, d := range res.Decisions {
		if d.Quantity != 0 || d.Reason != "insufficient cash" {
			t.Fatalf("decision = %+v", d)
		}
	}
	if !res.FinalEquity().Equal(cfg.InitialCash) {
		t.Fatalf("final equity = %s", res.FinalEquity())
	}
}

func TestBacktest_InvalidInput(t *testing.T) {
	good := mockBars("600000", day(0), 24*time.Hour, "10", "11", "12")
	dup := append(types.Bars(nil), good...)
	dup[2].Timestamp = dup[1].Timestamp
	backwards := append(types.Bars(nil), good...)
	backwards[0], backwards[2] = backwards[2], backwards[0]
	wrongSymbol := append(types.Bars(nil), good...)
	wrongSymbol[1].Symbol = "000001"
	zeroClose := append(types.Bars(nil), good...)
	zeroClose[1].Close = decimal.Zero
	strat := &scriptedStrategy{name: "noop"}

	tests := []struct {
		name    string
		job     Job
		wantErr error
	}{
		{"duplicate timestamp", singleJob(scenarioConfig(), dup, strat), ErrNonMonotonicBars},
		{"backwards timestamps", singleJob(scenarioConfig(), backwards, strat), ErrNonMonotonicBars},
		{"symbol mismatch", singleJob(scenarioConfig(), wrongSymbol, strat), ErrSymbolMismatch},
		{"zero close", singleJob(scenarioConfig(), zeroClose, strat), ErrInvalidBar},
		{"empty feed", Job{Feeds: []Feed{{Symbol: "600000", Strategy: strat, Bars: types.Bars{}}}, Config: scenarioConfig()}, ErrNoBars},
		{"no feeds", Job{Config: scenarioConfig()}, ErrNoFeeds},
		{"nil strategy", singleJob(scenarioConfig(), good, nil), ErrNilStrategy},
		{"invalid config", singleJob(RunConfig{}, good, strat), ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Backtest(context.Background(), tt.job, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			var runErr *RunError
			if !errors.As(err, &runErr) {
				t.Fatalf("error %T is not a *RunError", err)
			}
			if IsConsistencyFault(err) {
				t.Fatalf("input error reported as consistency fault")
			}
			if res != nil {
				t.Fatalf("result returned with error")
			}
		})
	}
}

func TestBacktest_Cancelled(t *testing.T) {
	bars := mockBars("600000", day(0), 24*time.Hour, "10", "11")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Backtest(ctx, singleJob(scenarioConfig(), bars, &scriptedStrategy{name: "noop"}), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want %v", err, context.Canceled)
	}
}

func TestBacktest_SharedCashSellsBeforeBuys(t *testing.T) {
	cfg := NewRunConfig(decimal.NewFromInt(10000))
	a := mockBars("600000", day(0), 24*time.Hour, "10", "10")
	b := mockBars("600001", day(0), 24*time.Hour, "5", "5")
	job := Job{
		ID: "shared",
		// feeds deliberately out of symbol order
		Feeds: []Feed{
			{Symbol: "600001", Strategy: &scriptedStrategy{name: "b", signals: map[int]types.Signal{1: types.Buy}}, Bars: b},
			{Symbol: "600000", Strategy: &scriptedStrategy{name: "a", signals: map[int]types.Signal{0: types.Buy, 1: types.Sell}}, Bars: a},
		},
		Config: cfg,
	}

	res, err := Backtest(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Backtest() error = %v", err)
	}
	if len(res.Fills) != 3 {
		t.Fatalf("fills = %+v", res.Fills)
	}
	// day 0: 600000 buys 900 @ 10 (9900 budget). day 1: its sell frees the
	// cash, then 600001 buys with all of it.
	if f := res.Fills[0]; f.Order.Symbol != "600000" || f.Order.Quantity != 900 {
		t.Fatalf("first fill = %+v", f.Order)
	}
	if f := res.Fills[1]; f.Order.Symbol != "600000" || f.Order.Side != types.SideTypeSell {
		t.Fatalf("second fill = %+v", f.Order)
	}
	if f := res.Fills[2]; f.Order.Symbol != "600001" || f.Order.Quantity != 1900 {
		t.Fatalf("third fill = %+v", f.Order)
	}
	if len(res.EquityCurve) != 2 {
		t.Fatalf("equity points = %d, want one per timestamp", len(res.EquityCurve))
	}
	if got := res.Symbols; len(got) != 2 || got[0] != "600001" {
		t.Fatalf("symbols = %v, want job feed order", got)
	}
	if got := res.Strategies; len(got) != 2 || got[0] != "a" {
		t.Fatalf("strategies = %v, want sorted feed order", got)
	}
}

func TestBacktest_SharedCashBuysInSymbolOrder(t *testing.T) {
	cfg := NewRunConfig(decimal.NewFromInt(10000))
	buy := map[int]types.Signal{0: types.Buy}
	job := Job{
		Feeds: []Feed{
			{Symbol: "600002", Strategy: &scriptedStrategy{name: "x", signals: buy}, Bars: mockBars("600002", day(0), 24*time.Hour, "10")},
			{Symbol: "600001", Strategy: &scriptedStrategy{name: "x", signals: buy}, Bars: mockBars("600001", day(0), 24*time.Hour, "10")},
		},
		Config: cfg,
	}
	res, err := Backtest(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Backtest() error = %v", err)
	}
	if len(res.Fills) != 1 || res.Fills[0].Order.Symbol != "600001" {
		t.Fatalf("fills = %+v, want 600001 first and alone", res.Fills)
	}
	if len(res.Decisions) != 2 || res.Decisions[1].Symbol != "600002" || res.Decisions[1].Quantity != 0 {
		t.Fatalf("decisions = %+v", res.Decisions)
	}
}

func TestBacktest_RandomPathsKeepCashNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sizings := []SizingConfig{
		{Method: SizingAllIn},
		{Method: SizingFixedFraction, Param: decimal.RequireFromString("0.3")},
		{Method: SizingFixedCash, Param: decimal.NewFromInt(7000)},
	}
	start := time.Date(2023, 3, 1, 10, 0, 0, 0, types.MarketLocation)

	for run := 0; run < 30; run++ {
		n := 50 + rng.Intn(150)
		closes := make([]string, 0, n)
		price := decimal.NewFromFloat(5 + rng.Float64()*20).Round(2)
		signals := make(map[int]types.Signal, n)
		for i := 0; i < n; i++ {
			move := decimal.NewFromFloat((rng.Float64() - 0.5) * 0.1).Round(4)
			price = decimal.Max(price.Mul(decimal.NewFromInt(1).Add(move)).Round(2), decimal.RequireFromString("0.5"))
			closes = append(closes, price.String())
			signals[i] = types.Signal(rng.Intn(3))
		}
		// two bars a day so same-day sells are exercised
		bars := make(types.Bars, 0, n)
		for i, b := range mockBars("600000", start, time.Hour, closes...) {
			b.Timestamp = start.AddDate(0, 0, i/2).Add(time.Duration(i%2) * 4 * time.Hour)
			bars = append(bars, b)
		}

		cfg := scenarioConfig()
		cfg.InitialCash = decimal.NewFromInt(int64(10000 + rng.Intn(90000)))
		cfg.MinCashReserve = decimal.NewFromInt(int64(rng.Intn(2000)))
		cfg.Sizing = sizings[run%len(sizings)]

		res, err := Backtest(context.Background(), singleJob(cfg, bars, &scriptedStrategy{name: "random", signals: signals}), nil)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		for _, p := range res.EquityCurve {
			if p.Cash.IsNegative() || p.Position < 0 {
				t.Fatalf("run %d: equity point %+v", run, p)
			}
		}
		if !res.ReconcileCash().Equal(res.Final.Cash) {
			t.Fatalf("run %d: replayed cash %s, ledger %s", run, res.ReconcileCash(), res.Final.Cash)
		}
		var held int64
		for _, f := range res.Fills {
			if f.Order.Side == types.SideTypeBuy {
				held += f.Order.Quantity
			} else {
				held -= f.Order.Quantity
			}
			if f.Order.Quantity%cfg.LotSize != 0 && f.Order.Side == types.SideTypeBuy {
				t.Fatalf("run %d: buy of %d is not whole lots", run, f.Order.Quantity)
			}
		}
		if held != res.Final.Positions["600000"].Quantity {
			t.Fatalf("run %d: fills net %d, final position %d", run, held, res.Final.Positions["600000"].Quantity)
		}
	}
}

func TestBacktest_Deterministic(t *testing.T) {
	bars := mockBars("600000", day(0), 24*time.Hour, "10", "10.4", "9.8", "10.9", "11.3", "10.1")
	signals := map[int]types.Signal{0: types.Buy, 2: types.Sell, 3: types.Buy, 5: types.Sell}

	var first *Result
	for i := 0; i < 3; i++ {
		res, err := Backtest(context.Background(), singleJob(scenarioConfig(), bars, &scriptedStrategy{name: "s", signals: signals}), nil)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = res
			continue
		}
		if len(res.Fills) != len(first.Fills) || !res.Final.Cash.Equal(first.Final.Cash) {
			t.Fatalf("run %d differs: %s vs %s", i, res.Final.Cash, first.Final.Cash)
		}
		if res.ID == first.ID {
			t.Fatalf("results share an id")
		}
	}
}
