package engine

import (
	"ashare-backtester/types"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Report struct {
	// Meta / period info
	Name        string
	StartDate   time.Time
	TotalPeriod time.Duration
	TotalFills  int
	TotalTrades int

	// Absolute performance
	InitialCash          decimal.Decimal
	FinalEquity          decimal.Decimal
	NetProfit            decimal.Decimal
	RealizedPnL          decimal.Decimal
	NetAvgProfitPerTrade decimal.Decimal
	CAGR                 decimal.Decimal

	// Trade-level distribution metrics
	WinRate decimal.Decimal
	AvgWin  decimal.Decimal
	AvgLoss decimal.Decimal

	// Drawdown & loss streak metrics
	MaxDrawdown          decimal.Decimal
	MaxDrawdownPercent   decimal.Decimal
	MaxDrawdownDays      time.Duration
	MaxConsecutiveLosses int

	// Risk-adjusted metrics
	SharpeRatio  decimal.Decimal
	ProfitFactor decimal.Decimal

	// Costs
	TotalCommission decimal.Decimal
	TotalDuty       decimal.Decimal
}

func PrintReport(w io.Writer, report *Report) {
	fmt.Fprintf(w, "===== Trading Report: %s =====\n", report.Name)
	fmt.Fprintf(w, "Start Date:            %s\n", report.StartDate.Format(time.DateOnly))
	fmt.Fprintf(w, "Total Period:          %d days\n", report.TotalPeriod/(24*time.Hour))
	fmt.Fprintf(w, "Total Fills:           %d\n", report.TotalFills)
	fmt.Fprintf(w, "Closed Trades:         %d\n", report.TotalTrades)

	fmt.Fprintln(w, "\n-- Absolute Performance --")
	fmt.Fprintf(w, "Initial Cash:          %s\n", report.InitialCash.StringFixed(2))
	fmt.Fprintf(w, "Final Equity:          %s\n", report.FinalEquity.StringFixed(2))
	fmt.Fprintf(w, "Net Profit:            %s\n", report.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Realized PnL:          %s\n", report.RealizedPnL.StringFixed(2))
	fmt.Fprintf(w, "Avg Profit/Trade:      %s\n", report.NetAvgProfitPerTrade.StringFixed(2))
	fmt.Fprintf(w, "CAGR:                  %s\n", report.CAGR.StringFixed(4))

	fmt.Fprintln(w, "\n-- Trade-Level Metrics --")
	fmt.Fprintf(w, "Win Rate:              %s\n", report.WinRate.StringFixed(4))
	fmt.Fprintf(w, "Avg Win:               %s\n", report.AvgWin.StringFixed(2))
	fmt.Fprintf(w, "Avg Loss:              %s\n", report.AvgLoss.StringFixed(2))

	fmt.Fprintln(w, "\n-- Drawdown Metrics --")
	fmt.Fprintf(w, "Max Drawdown:          %s\n", report.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown %%:        %s\n", report.MaxDrawdownPercent.StringFixed(4))
	fmt.Fprintf(w, "Max Drawdown Days:     %v\n", report.MaxDrawdownDays/(24*time.Hour))
	fmt.Fprintf(w, "Max Consecutive Losses:%d\n", report.MaxConsecutiveLosses)

	fmt.Fprintln(w, "\n-- Risk-Adjusted Metrics --")
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", report.SharpeRatio.StringFixed(4))
	fmt.Fprintf(w, "Profit Factor:         %s\n", report.ProfitFactor.StringFixed(4))

	fmt.Fprintln(w, "\n-- Costs --")
	fmt.Fprintf(w, "Total Commission:      %s\n", report.TotalCommission.StringFixed(2))
	fmt.Fprintf(w, "Total Stamp Duty:      %s\n", report.TotalDuty.StringFixed(2))

	fmt.Fprintln(w, "==========================")
}

// GenerateReport summarizes a finished run. riskFree is the annual rate
// used for the Sharpe ratio.
func GenerateReport(res *Result, riskFree decimal.Decimal) *Report {
	report := &Report{
		Name:        res.Name,
		StartDate:   res.Start,
		TotalPeriod: res.End.Sub(res.Start).Truncate(24 * time.Hour),
		TotalFills:  len(res.Fills),
		TotalTrades: len(res.ClosedTrades),
		InitialCash: res.Config.InitialCash,
		FinalEquity: res.FinalEquity(),
		RealizedPnL: res.Final.RealizedPnL,
	}
	report.NetProfit = report.FinalEquity.Sub(report.InitialCash)

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		report.TotalCommission, report.TotalDuty = calcFees(res.Fills, &wg)
	}()
	go func() {
		report.NetAvgProfitPerTrade, report.WinRate, report.AvgWin, report.AvgLoss, report.ProfitFactor = calcTradeStats(res.ClosedTrades, &wg)
	}()
	go func() {
		report.CAGR = calcCAGR(res.EquityCurve, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(res.EquityCurve, &wg)
	}()
	go func() {
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(res.ClosedTrades, &wg)
	}()
	go func() {
		report.SharpeRatio = calcSharpeRatio(res.EquityCurve, riskFree, &wg)
	}()
	wg.Wait()

	return report
}

func calcFees(fills []types.Fill, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()
	commission, duty := decimal.Zero, decimal.Zero
	for _, f := range fills {
		commission = commission.Add(f.Commission)
		duty = duty.Add(f.Duty)
	}
	return commission, duty
}

// calcTradeStats returns average net profit, win rate, average win, average
// loss (absolute) and profit factor over closed trades.
func calcTradeStats(trades []types.ClosedTrade, wg *sync.WaitGroup) (avg, winRate, avgWin, avgLoss, profitFactor decimal.Decimal) {
	defer wg.Done()
	if len(trades) == 0 {
		return
	}

	total := decimal.Zero
	sumWins := decimal.Zero
	sumLosses := decimal.Zero
	winCount, lossCount := 0, 0
	for _, tr := range trades {
		total = total.Add(tr.PnL)
		switch {
		case tr.PnL.IsPositive():
			sumWins = sumWins.Add(tr.PnL)
			winCount++
		case tr.PnL.IsNegative():
			sumLosses = sumLosses.Add(tr.PnL.Abs())
			lossCount++
		}
	}

	n := decimal.NewFromInt(int64(len(trades)))
	avg = total.Div(n)
	winRate = decimal.NewFromInt(int64(winCount)).Div(n)
	if winCount > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(lossCount)))
	}
	if sumLosses.IsPositive() {
		profitFactor = sumWins.Div(sumLosses)
	}
	return
}

func calcCAGR(curve []types.EquityPoint, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(curve) < 2 {
		return decimal.Zero
	}

	first := curve[0]
	last := curve[len(curve)-1]

	// If starting value is <= 0, CAGR is not well-defined
	if !first.Equity.IsPositive() {
		return decimal.Zero
	}

	// time difference in years (using 365.25 days to account for leap years)
	years := last.Time.Sub(first.Time).Hours() / (24.0 * 365.25)
	if years <= 0 {
		return decimal.Zero
	}

	ratio := last.Equity.Div(first.Equity)
	if !ratio.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0)
}

func calcDrawdownMetrics(curve []types.EquityPoint, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()
	if len(curve) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := curve[0].Equity
	peakTime := curve[0].Time
	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
			peakTime = p.Time
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(p.Equity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = p.Time.Sub(peakTime)
		}
	}
	return maxDD, maxDDPct, maxDDDuration
}

func calcMaxConsecutiveLosses(trades []types.ClosedTrade, wg *sync.WaitGroup) int {
	defer wg.Done()

	ordered := append([]types.ClosedTrade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	maxLossStreak := 0
	currentStreak := 0
	for _, tr := range ordered {
		if tr.PnL.IsNegative() {
			currentStreak++
			if currentStreak > maxLossStreak {
				maxLossStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

func calcSharpeRatio(curve []types.EquityPoint, annualRiskFree decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	monthlyReturns := getMonthlyReturns(curve)
	if len(monthlyReturns) < 2 {
		// Need at least 2 months to compute stddev
		return decimal.Zero
	}

	// rf_monthly = (1 + rf_annual)^(1/12) - 1
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0

	excess := make([]float64, 0, len(monthlyReturns))
	var sum float64
	for _, r := range monthlyReturns {
		x := r.InexactFloat64() - rfMonthly
		excess = append(excess, x)
		sum += x
	}
	mean := sum / float64(len(excess))

	var varianceSum float64
	for _, x := range excess {
		diff := x - mean
		varianceSum += diff * diff
	}
	std := math.Sqrt(varianceSum / float64(len(excess)-1))
	if std == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(mean / std * math.Sqrt(12.0))
}

// getMonthlyReturns returns the returns between consecutive month-end
// equities. curve must be in time order.
func getMonthlyReturns(curve []types.EquityPoint) []decimal.Decimal {
	var monthEnds []decimal.Decimal
	var lastYear int
	var lastMonth time.Month
	for i, p := range curve {
		y, m, _ := p.Time.Date()
		if i > 0 && y == lastYear && m == lastMonth {
			monthEnds[len(monthEnds)-1] = p.Equity
			continue
		}
		monthEnds = append(monthEnds, p.Equity)
		lastYear, lastMonth = y, m
	}
	if len(monthEnds) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(monthEnds)-1)
	prev := monthEnds[0]
	for _, curr := range monthEnds[1:] {
		if prev.IsPositive() {
			returns = append(returns, curr.Div(prev).Sub(decimal.NewFromInt(1)))
		}
		prev = curr
	}
	return returns
}
