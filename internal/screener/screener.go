// Package screener selects symbols whose daily moving averages are stacked in
// an uptrend: MA200 <= MA150 <= MA50 <= last close. The averages are simple by
// default and may be exponential.
package screener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/indicators"
	"cryptoLedger/internal/ports"
)

// Config holds the screener parameters.
type Config struct {
	QuoteAsset  string
	Interval    string // Kline interval, e.g. "1d"
	Limit       int    // Number of klines requested per symbol
	Average     indicators.MovingAverageType
	LongPeriod  int
	MidPeriod   int
	ShortPeriod int
	Workers     int // Concurrent kline requests
}

// DefaultConfig returns the 200/150/50 daily setup.
func DefaultConfig(quoteAsset string) Config {
	return Config{
		QuoteAsset:  quoteAsset,
		Interval:    "1d",
		Limit:       200,
		Average:     indicators.SimpleMovingAverage,
		LongPeriod:  200,
		MidPeriod:   150,
		ShortPeriod: 50,
		Workers:     4,
	}
}

// Result is a symbol that passed the screen, with the values that qualified it.
type Result struct {
	Symbol    string
	LastClose float64
	MALong    float64
	MAMid     float64
	MAShort   float64
}

// Screener evaluates the trend template for every symbol of a quote asset.
type Screener struct {
	cfg      Config
	exchange ports.ExchangeClient
	logger   ports.Logger
	long     indicators.Indicator
	mid      indicators.Indicator
	short    indicators.Indicator
}

// New creates a screener.
func New(cfg Config, exchange ports.ExchangeClient, logger ports.Logger) (*Screener, error) {
	if exchange == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Screener")
	}
	if cfg.QuoteAsset == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("screener quote asset and interval must be set: %w", ports.ErrConfigurationError)
	}
	if cfg.LongPeriod <= 0 || cfg.MidPeriod <= 0 || cfg.ShortPeriod <= 0 || cfg.Limit <= 0 {
		return nil, fmt.Errorf("screener periods and limit must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.Average == "" {
		cfg.Average = indicators.SimpleMovingAverage
	}
	if _, err := indicators.ParseMovingAverageType(string(cfg.Average)); err != nil {
		return nil, fmt.Errorf("screener %v: %w", err, ports.ErrConfigurationError)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Screener{
		cfg:      cfg,
		exchange: exchange,
		logger:   logger,
		long:     newAverage(cfg.Average, cfg.LongPeriod),
		mid:      newAverage(cfg.Average, cfg.MidPeriod),
		short:    newAverage(cfg.Average, cfg.ShortPeriod),
	}, nil
}

func newAverage(t indicators.MovingAverageType, period int) *indicators.MovingAverage {
	return indicators.NewMovingAverage(indicators.MovingAverageConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: period},
		Type:            t,
	})
}

// averageOrZero treats a series shorter than the period as an average of 0.
func averageOrZero(ctx context.Context, ma indicators.Indicator, klines []*domain.Kline) (float64, error) {
	if len(klines) < ma.RequiredDataPoints() {
		return 0, nil
	}
	v, err := ma.Calculate(ctx, klines)
	if errors.Is(err, indicators.ErrInsufficientData) {
		return 0, nil
	}
	return v, err
}

// Evaluate applies the trend template to one symbol's klines (oldest first).
func (s *Screener) Evaluate(ctx context.Context, symbol string, klines []*domain.Kline) (Result, bool, error) {
	if len(klines) == 0 {
		return Result{}, false, nil
	}
	res := Result{Symbol: symbol, LastClose: klines[len(klines)-1].Close}

	var err error
	if res.MALong, err = averageOrZero(ctx, s.long, klines); err != nil {
		return res, false, err
	}
	if res.MAMid, err = averageOrZero(ctx, s.mid, klines); err != nil {
		return res, false, err
	}
	if res.MAShort, err = averageOrZero(ctx, s.short, klines); err != nil {
		return res, false, err
	}

	switch {
	case res.MALong > res.MAMid:
		return res, false, nil
	case res.MAMid > res.MAShort:
		return res, false, nil
	case res.MAShort > res.LastClose:
		return res, false, nil
	}
	return res, true, nil
}

// Run screens every symbol quoted in the configured asset and returns the
// passing symbols in ascending order. Symbols whose klines cannot be fetched
// are skipped.
func (s *Screener) Run(ctx context.Context) ([]Result, error) {
	symbols, err := s.exchange.ListSymbols(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s symbols: %w", s.cfg.QuoteAsset, err)
	}
	s.logger.Info(ctx, "Screening symbols", map[string]interface{}{
		"quoteAsset": s.cfg.QuoteAsset,
		"symbols":    len(symbols),
		"averages":   []string{s.long.Name(), s.mid.Name(), s.short.Name()},
	})

	var (
		mu      sync.Mutex
		results []Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, symbol := range symbols {
		g.Go(func() error {
			klines, err := s.exchange.GetKlines(gctx, symbol, s.cfg.Interval, s.cfg.Limit)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn(gctx, "Skipping symbol, klines unavailable", map[string]interface{}{"symbol": symbol, "error": err.Error()})
				return nil
			}
			res, ok, err := s.Evaluate(gctx, symbol, klines)
			if err != nil {
				s.logger.Warn(gctx, "Skipping symbol, indicator failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
				return nil
			}
			if ok {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	s.logger.Info(ctx, "Screening finished", map[string]interface{}{"passed": len(results)})
	return results, nil
}
