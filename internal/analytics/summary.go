// Package analytics summarizes realized round trips: win rate, totals per
// symbol, the realized equity curve and its drawdowns, and monthly results.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLedger/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Breakdown holds the aggregate figures of a set of round trips.
type Breakdown struct {
	Symbol             string // Empty for the overall breakdown
	RoundTrips         int
	Winners            int
	Losers             int // Round trips with zero or negative gain
	WinRate            float64
	TotalBought        decimal.Decimal
	TotalSold          decimal.Decimal
	NetGainLoss        decimal.Decimal
	NetGainLossPercent decimal.Decimal // NetGainLoss / TotalBought * 100
	AvgGainLossPercent decimal.Decimal // Mean of the per-trip percentages
}

// Drawdown is a peak-to-trough fall of cumulative realized gain/loss.
type Drawdown struct {
	StartTime time.Time
	EndTime   time.Time
	Peak      decimal.Decimal
	Trough    decimal.Decimal
	Depth     decimal.Decimal // Peak - Trough
}

// EquityPoint is the cumulative realized gain/loss after a sale.
type EquityPoint struct {
	Time     time.Time
	Value    decimal.Decimal
	Drawdown decimal.Decimal // Distance below the running peak
}

// MonthlyResult is the realized gain/loss of the sales in one month.
type MonthlyResult struct {
	Month       time.Time
	NetGainLoss decimal.Decimal
}

// Summary is the result of Summarize.
type Summary struct {
	Overall              Breakdown
	BySymbol             []Breakdown // Ascending symbol order
	Best                 *domain.TradeStatistic
	Worst                *domain.TradeStatistic
	MaxDrawdown          decimal.Decimal
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
	Monthly              []MonthlyResult
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldTime      time.Duration
}

type accumulator struct {
	b          Breakdown
	percentSum decimal.Decimal
}

func (a *accumulator) add(s *domain.TradeStatistic) {
	a.b.RoundTrips++
	if s.IsWin() {
		a.b.Winners++
	} else {
		a.b.Losers++
	}
	a.b.TotalBought = a.b.TotalBought.Add(s.TotalBought)
	a.b.TotalSold = a.b.TotalSold.Add(s.TotalSold)
	a.b.NetGainLoss = a.b.NetGainLoss.Add(s.GainLossAbsolute)
	a.percentSum = a.percentSum.Add(s.GainLossPercent)
}

func (a *accumulator) finish() Breakdown {
	b := a.b
	if b.RoundTrips > 0 {
		b.WinRate = float64(b.Winners) / float64(b.RoundTrips)
		b.AvgGainLossPercent = a.percentSum.Div(decimal.NewFromInt(int64(b.RoundTrips)))
	}
	if !b.TotalBought.IsZero() {
		b.NetGainLossPercent = b.NetGainLoss.Div(b.TotalBought).Mul(hundred)
	}
	return b
}

// Summarize computes performance figures from trade statistics.
// The equity curve and streaks follow sell dates; the input is not modified.
func Summarize(stats []domain.TradeStatistic) *Summary {
	summary := &Summary{}
	if len(stats) == 0 {
		return summary
	}

	ordered := make([]*domain.TradeStatistic, len(stats))
	for i := range stats {
		ordered[i] = &stats[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DateSold.Before(ordered[j].DateSold)
	})

	var (
		overall      accumulator
		current      *Drawdown
		wins, losses int
		holdTotal    time.Duration
	)
	bySymbol := make(map[string]*accumulator)
	monthly := make(map[time.Time]decimal.Decimal)
	equity, peak := decimal.Zero, decimal.Zero

	for _, s := range ordered {
		overall.add(s)
		acc, ok := bySymbol[s.Symbol]
		if !ok {
			acc = &accumulator{b: Breakdown{Symbol: s.Symbol}}
			bySymbol[s.Symbol] = acc
		}
		acc.add(s)

		if summary.Best == nil || s.GainLossPercent.GreaterThan(summary.Best.GainLossPercent) {
			summary.Best = s
		}
		if summary.Worst == nil || s.GainLossPercent.LessThan(summary.Worst.GainLossPercent) {
			summary.Worst = s
		}

		if s.IsWin() {
			wins++
			losses = 0
		} else {
			losses++
			wins = 0
		}
		summary.MaxConsecutiveWins = max(summary.MaxConsecutiveWins, wins)
		summary.MaxConsecutiveLosses = max(summary.MaxConsecutiveLosses, losses)
		holdTotal += s.DateSold.Sub(s.DateBought)

		month := time.Date(s.DateSold.Year(), s.DateSold.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthly[month] = monthly[month].Add(s.GainLossAbsolute)

		// Drawdown tracking
		equity = equity.Add(s.GainLossAbsolute)
		if equity.GreaterThanOrEqual(peak) {
			peak = equity
			if current != nil {
				current.EndTime = s.DateSold
				summary.Drawdowns = append(summary.Drawdowns, *current)
				current = nil
			}
		} else {
			depth := peak.Sub(equity)
			if current == nil {
				current = &Drawdown{StartTime: s.DateSold, Peak: peak, Trough: equity, Depth: depth}
			} else if depth.GreaterThan(current.Depth) {
				current.Trough, current.Depth = equity, depth
			}
			if depth.GreaterThan(summary.MaxDrawdown) {
				summary.MaxDrawdown = depth
			}
		}
		summary.EquityCurve = append(summary.EquityCurve, EquityPoint{
			Time:     s.DateSold,
			Value:    equity,
			Drawdown: peak.Sub(equity),
		})
	}

	// Close any open drawdown
	if current != nil {
		current.EndTime = ordered[len(ordered)-1].DateSold
		summary.Drawdowns = append(summary.Drawdowns, *current)
	}

	summary.Overall = overall.finish()
	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		summary.BySymbol = append(summary.BySymbol, bySymbol[symbol].finish())
	}

	for month, net := range monthly {
		summary.Monthly = append(summary.Monthly, MonthlyResult{Month: month, NetGainLoss: net})
	}
	sort.Slice(summary.Monthly, func(i, j int) bool {
		return summary.Monthly[i].Month.Before(summary.Monthly[j].Month)
	})

	summary.AverageHoldTime = holdTotal / time.Duration(len(ordered))
	return summary
}
