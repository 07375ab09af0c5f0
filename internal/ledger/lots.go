// Package ledger turns an account's executed fills into closed round-trip lots
// and realized gain/loss statistics.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// DefaultClosureThreshold is the fraction of a buy lot that must be sold before
// the lot counts as closed. Exchange fills often leave a small dust remainder
// that is never sold; that remainder is dropped when the lot closes.
var DefaultClosureThreshold = decimal.RequireFromString("0.95")

// MatcherConfig configures lot matching.
type MatcherConfig struct {
	QuoteAsset       string          // Settlement asset; commissions in other assets are converted at the fill price
	ClosureThreshold decimal.Decimal // Zero means DefaultClosureThreshold
}

func (c MatcherConfig) threshold() decimal.Decimal {
	if c.ClosureThreshold.IsPositive() {
		return c.ClosureThreshold
	}
	return DefaultClosureThreshold
}

// lotState holds the open lots of one symbol between fills.
type lotState struct {
	buy     domain.Position
	hasBuy  bool
	sell    domain.Position
	hasSell bool
	sold    decimal.Decimal // quantity sold since the last closure
}

// step folds one fill into the state. It returns the next state and the
// positions closed by this fill (a buy lot followed by its sell lot), if any.
func (s lotState) step(t *domain.Trade, cfg MatcherConfig) (lotState, []domain.Position, error) {
	next := s
	switch t.Side {
	case domain.Buy:
		if !next.hasBuy {
			next.buy, next.hasBuy = positionFromTrade(t, cfg.QuoteAsset), true
			return next, nil, nil
		}
		merged, err := mergePositions(next.buy, positionFromTrade(t, cfg.QuoteAsset))
		if err != nil {
			return s, nil, err
		}
		next.buy = merged
		return next, nil, nil

	case domain.Sell:
		next.sold = next.sold.Add(t.Quantity)
		if !next.hasSell {
			next.sell, next.hasSell = positionFromTrade(t, cfg.QuoteAsset), true
		} else {
			merged, err := mergePositions(next.sell, positionFromTrade(t, cfg.QuoteAsset))
			if err != nil {
				return s, nil, err
			}
			next.sell = merged
		}
		if next.hasBuy && next.sold.GreaterThanOrEqual(cfg.threshold().Mul(next.buy.Quantity)) {
			closed := []domain.Position{next.buy, next.sell}
			return lotState{sold: decimal.Zero}, closed, nil
		}
		return next, nil, nil
	}
	return s, nil, fmt.Errorf("side %q: %w", t.Side, ports.ErrInvalidTrade)
}

// flush returns the lots still open at the end of the history: the residual buy
// lot first, then the residual sell lot.
func (s lotState) flush() []domain.Position {
	var out []domain.Position
	if s.hasBuy {
		out = append(out, s.buy)
	}
	if s.hasSell {
		out = append(out, s.sell)
	}
	return out
}

// validateTrade rejects fills that would break the weighted-average arithmetic.
func validateTrade(t *domain.Trade, symbol string) error {
	if !t.Side.Valid() {
		return fmt.Errorf("side %q: %w", t.Side, ports.ErrInvalidTrade)
	}
	if !t.Price.IsPositive() || !t.Quantity.IsPositive() {
		return fmt.Errorf("price %s quantity %s: %w", t.Price, t.Quantity, ports.ErrInvalidTrade)
	}
	if t.Symbol != symbol {
		return fmt.Errorf("symbol %s in %s history: %w", t.Symbol, symbol, ports.ErrInvalidTrade)
	}
	return nil
}

// sortedByTime returns a copy of trades ordered by execution time, then trade ID.
func sortedByTime(trades []*domain.Trade) []*domain.Trade {
	out := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t != nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MatchLots partitions the fill history of one symbol into positions.
//
// Consecutive buys accumulate into one buy lot and consecutive sells into one
// sell lot. After each sell, once the quantity sold since the last closure
// reaches the closure threshold of the open buy lot, the buy lot and the sell
// lot are emitted as a pair and both accumulators reset. Lots still open at the
// end are emitted unpaired (buy before sell).
//
// The input is not modified; it is sorted by time on a copy. Invalid fills are
// skipped and reported as *RecordError values joined into the returned error;
// the positions are valid regardless of the error.
func MatchLots(trades []*domain.Trade, cfg MatcherConfig) ([]domain.Position, error) {
	ordered := sortedByTime(trades)
	if len(ordered) == 0 {
		return nil, nil
	}

	symbol := ordered[0].Symbol
	state := lotState{sold: decimal.Zero}
	var positions []domain.Position
	var errs []error

	for _, t := range ordered {
		if err := validateTrade(t, symbol); err != nil {
			errs = append(errs, &RecordError{Symbol: t.Symbol, Time: t.Time, Stage: "match", Err: err})
			continue
		}
		next, closed, err := state.step(t, cfg)
		if err != nil {
			errs = append(errs, &RecordError{Symbol: t.Symbol, Time: t.Time, Stage: "match", Err: err})
			continue
		}
		state = next
		positions = append(positions, closed...)
	}
	positions = append(positions, state.flush()...)

	return positions, errors.Join(errs...)
}

// GroupBySymbol splits a mixed fill history into per-symbol slices.
func GroupBySymbol(trades []*domain.Trade) map[string][]*domain.Trade {
	grouped := make(map[string][]*domain.Trade)
	for _, t := range trades {
		if t == nil {
			continue
		}
		grouped[t.Symbol] = append(grouped[t.Symbol], t)
	}
	return grouped
}

// SortedSymbols returns the keys of a per-symbol map in ascending order.
func SortedSymbols[V any](bySymbol map[string]V) []string {
	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// MatchAll runs MatchLots for every symbol, at most workers at a time, and
// concatenates the results in ascending symbol order so output is reproducible.
func MatchAll(bySymbol map[string][]*domain.Trade, cfg MatcherConfig, workers int) ([]domain.Position, error) {
	symbols := SortedSymbols(bySymbol)
	results := make([][]domain.Position, len(symbols))
	errs := make([]error, len(symbols))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, symbol := range symbols {
		g.Go(func() error {
			results[i], errs[i] = MatchLots(bySymbol[symbol], cfg)
			return nil
		})
	}
	_ = g.Wait() // per-symbol errors are collected in errs

	var positions []domain.Position
	for _, r := range results {
		positions = append(positions, r...)
	}
	return positions, errors.Join(errs...)
}
