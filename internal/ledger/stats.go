package ledger

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

var hundred = decimal.NewFromInt(100)

// NewStatistic computes the realized result of selling the sell lot against the
// cost basis of the buy lot. Gain/loss is computed from the exact totals.
func NewStatistic(buy, sell domain.Position) (domain.TradeStatistic, error) {
	if buy.TotalPrice.IsZero() {
		return domain.TradeStatistic{}, ports.ErrZeroCostBasis
	}
	gain := sell.TotalPrice.Sub(buy.TotalPrice)
	return domain.TradeStatistic{
		DateBought:       buy.Date,
		DateSold:         sell.Date,
		Symbol:           sell.Symbol,
		Quantity:         sell.Quantity,
		AvgPriceBought:   buy.AveragePrice,
		AvgPriceSold:     sell.AveragePrice,
		TotalBought:      buy.TotalPrice,
		TotalSold:        sell.TotalPrice,
		GainLossAbsolute: gain,
		GainLossPercent:  gain.Div(buy.TotalPrice).Mul(hundred),
	}, nil
}

// buildSymbolStatistics pairs the date-ordered positions of one symbol.
// Adjacent buy lots are merged into one cost basis; each sell lot is paired
// with the accumulated buy lot. A sell lot with no buy lot before it is dropped.
func buildSymbolStatistics(positions []domain.Position) ([]domain.TradeStatistic, []error) {
	var (
		stats      []domain.TradeStatistic
		errs       []error
		currentBuy domain.Position
		hasBuy     bool
	)
	for _, p := range positions {
		switch {
		case p.IsBuy() && !hasBuy:
			currentBuy, hasBuy = p, true
		case p.IsBuy():
			merged, err := mergePositions(currentBuy, p)
			if err != nil {
				errs = append(errs, &RecordError{Symbol: p.Symbol, Time: p.Date, Stage: "statistics", Err: err})
				continue
			}
			currentBuy = merged
		case p.Side == domain.Sell && hasBuy:
			stat, err := NewStatistic(currentBuy, p)
			if err != nil {
				errs = append(errs, &RecordError{Symbol: p.Symbol, Time: p.Date, Stage: "statistics", Err: err})
			} else {
				stats = append(stats, stat)
			}
			hasBuy = false
		}
	}
	return stats, errs
}

// BuildStatistics emits one TradeStatistic per realized round trip.
//
// Positions are grouped by symbol (groups in ascending symbol order) and each
// group is stably sorted by date before pairing, so positions merged from
// several sources are handled the same as the direct output of MatchLots.
// Records that cannot be computed (zero cost basis, zero quantity) are skipped
// and reported as *RecordError values joined into the returned error.
func BuildStatistics(positions []domain.Position) ([]domain.TradeStatistic, error) {
	bySymbol := make(map[string][]domain.Position)
	for _, p := range positions {
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], p)
	}

	var (
		stats []domain.TradeStatistic
		errs  []error
	)
	for _, symbol := range SortedSymbols(bySymbol) {
		group := bySymbol[symbol]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Date.Before(group[j].Date)
		})
		s, e := buildSymbolStatistics(group)
		stats = append(stats, s...)
		errs = append(errs, e...)
	}
	return stats, errors.Join(errs...)
}
