package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cryptoLedger/config"
	"cryptoLedger/internal/analytics"
	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ledger"
	"cryptoLedger/internal/metrics"
	"cryptoLedger/internal/ports"
	"cryptoLedger/internal/utils"
)

// stampLayout names export files after the run start time.
const stampLayout = "20060102T150405Z"

// ServiceConfig holds the parameters of a reconciliation run.
type ServiceConfig struct {
	QuoteAsset       string
	TradeQuery       ports.TradeQuery
	ClosureThreshold decimal.Decimal
	MaxConcurrency   int
	OutputDir        string // Empty disables the CSV export
	MetricsFile      string // Empty disables the textfile export
}

// ServiceConfigFrom maps the application configuration onto a ServiceConfig.
func ServiceConfigFrom(cfg *config.Config) ServiceConfig {
	return ServiceConfig{
		QuoteAsset:       cfg.QuoteAsset,
		TradeQuery:       ports.TradeQuery{StartTime: cfg.TradesStartTime, EndTime: cfg.TradesEndTime},
		ClosureThreshold: cfg.ClosureThreshold,
		MaxConcurrency:   cfg.MaxConcurrency,
		OutputDir:        cfg.OutputDir,
		MetricsFile:      cfg.MetricsFile,
	}
}

// RunResult is the outcome of one reconciliation run.
type RunResult struct {
	Run            domain.Run
	Symbols        []string // Symbols inspected, ascending
	FetchFailures  []string // Symbols whose trades could not be retrieved
	Positions      []domain.Position
	Statistics     []domain.TradeStatistic
	RecordErrors   []error // Records skipped by the matcher or the statistics builder
	Summary        *analytics.Summary
	PositionsFile  string
	StatisticsFile string
}

// ReconcileService retrieves the account's fills, matches them into lots,
// builds the realized statistics, and persists and exports the results.
type ReconcileService struct {
	cfg      ServiceConfig
	logger   ports.Logger
	exchange ports.ExchangeClient
	repo     ports.LedgerRepository
	metrics  *metrics.Recorder

	now   func() time.Time
	newID func() string
}

// NewReconcileService creates a new application service instance.
// exchange may be nil when only RunFromTrades is used. repo may be nil to skip
// persistence and recorder may be nil.
func NewReconcileService(
	cfg ServiceConfig,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	repo ports.LedgerRepository,
	recorder *metrics.Recorder,
) (*ReconcileService, error) {
	if logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ReconcileService")
	}
	if cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("configuration QuoteAsset must be set: %w", ports.ErrConfigurationError)
	}
	if cfg.ClosureThreshold.IsNegative() || cfg.ClosureThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("configuration ClosureThreshold must be in (0, 1]: %w", ports.ErrConfigurationError)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if recorder == nil {
		recorder = metrics.New()
	}

	return &ReconcileService{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		repo:     repo,
		metrics:  recorder,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

// FetchTrades lists the symbols of the quote asset and retrieves the
// account's fills for each, at most MaxConcurrency symbols at a time.
// Failing to list symbols is fatal; a symbol whose trades cannot be retrieved
// contributes no trades and is reported in the returned failures.
func (s *ReconcileService) FetchTrades(ctx context.Context) (symbols []string, trades []*domain.Trade, failures []string, err error) {
	if s.exchange == nil {
		return nil, nil, nil, fmt.Errorf("exchange client is required to fetch trades: %w", ports.ErrConfigurationError)
	}

	symbols, err = s.exchange.ListSymbols(ctx, s.cfg.QuoteAsset)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to list symbols", map[string]interface{}{"quoteAsset": s.cfg.QuoteAsset})
		return nil, nil, nil, fmt.Errorf("failed to list %s symbols: %w", s.cfg.QuoteAsset, err)
	}
	sort.Strings(symbols)
	s.logger.Info(ctx, "Fetching trades", map[string]interface{}{"quoteAsset": s.cfg.QuoteAsset, "symbols": len(symbols)})

	perSymbol := make([][]*domain.Trade, len(symbols))
	failed := make([]bool, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			got, err := s.exchange.GetTrades(ctx, symbol, s.cfg.TradeQuery)
			if err != nil && ctx.Err() != nil {
				// Cancellation aborts the run instead of truncating the history.
				return ctx.Err()
			}
			if err != nil {
				s.logger.Warn(ctx, "Trade retrieval failed, treating symbol as empty", map[string]interface{}{"symbol": symbol, "error": err.Error()})
				s.metrics.ObserveFetchFailure(symbol)
				failed[i] = true
				return nil
			}
			s.metrics.ObserveTrades(symbol, len(got))
			perSymbol[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, fmt.Errorf("trade retrieval interrupted: %w: %w", ports.ErrContextCanceled, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("trade retrieval interrupted: %w: %w", ports.ErrContextCanceled, err)
	}

	for i, symbol := range symbols {
		trades = append(trades, perSymbol[i]...)
		if failed[i] {
			failures = append(failures, symbol)
		}
	}
	return symbols, trades, failures, nil
}

// Run performs a full reconciliation against the exchange.
func (s *ReconcileService) Run(ctx context.Context) (*RunResult, error) {
	started := s.now()
	symbols, trades, failures, err := s.FetchTrades(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.process(ctx, started, symbols, trades)
	if result != nil {
		result.FetchFailures = failures
	}
	return result, err
}

// RunFromTrades reconciles an already retrieved fill history, e.g. one read
// from a CSV export. The symbols are those present in trades.
func (s *ReconcileService) RunFromTrades(ctx context.Context, trades []*domain.Trade) (*RunResult, error) {
	started := s.now()
	symbols := ledger.SortedSymbols(ledger.GroupBySymbol(trades))
	return s.process(ctx, started, symbols, trades)
}

func (s *ReconcileService) process(ctx context.Context, started time.Time, symbols []string, trades []*domain.Trade) (*RunResult, error) {
	run := domain.Run{
		ID:         s.newID(),
		StartedAt:  started,
		QuoteAsset: s.cfg.QuoteAsset,
		Symbols:    len(symbols),
		Trades:     len(trades),
	}
	fields := map[string]interface{}{"runID": run.ID}
	if s.repo != nil {
		if err := s.repo.CreateRun(ctx, &run); err != nil {
			s.logger.Error(ctx, err, "Failed to record run", fields)
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}

	matcherCfg := ledger.MatcherConfig{QuoteAsset: s.cfg.QuoteAsset, ClosureThreshold: s.cfg.ClosureThreshold}
	positions, matchErr := ledger.MatchAll(ledger.GroupBySymbol(trades), matcherCfg, s.cfg.MaxConcurrency)
	stats, statsErr := ledger.BuildStatistics(positions)

	recordErrs := append(ledger.RecordErrors(matchErr), ledger.RecordErrors(statsErr)...)
	for _, e := range recordErrs {
		s.logger.Warn(ctx, "Skipped record", map[string]interface{}{"runID": run.ID, "error": e.Error()})
	}
	s.metrics.ObservePositions(positions)
	s.metrics.ObserveStatistics(stats)
	s.metrics.ObserveRecordErrors(recordErrs)

	if s.repo != nil {
		if err := s.repo.SavePositions(ctx, run.ID, positions); err != nil {
			s.logger.Error(ctx, err, "Failed to save positions", fields)
			return nil, err
		}
		if err := s.repo.SaveStatistics(ctx, run.ID, stats); err != nil {
			s.logger.Error(ctx, err, "Failed to save trade statistics", fields)
			return nil, err
		}
	}

	result := &RunResult{
		Symbols:      symbols,
		Positions:    positions,
		Statistics:   stats,
		RecordErrors: recordErrs,
		Summary:      analytics.Summarize(stats),
	}

	if s.cfg.OutputDir != "" {
		stamp := started.UTC().Format(stampLayout)
		result.PositionsFile = filepath.Join(s.cfg.OutputDir, "positions_"+stamp+".csv")
		result.StatisticsFile = filepath.Join(s.cfg.OutputDir, "trade_statistics_"+stamp+".csv")
		if err := utils.WritePositionsToCSV(positions, result.PositionsFile); err != nil {
			s.logger.Error(ctx, err, "Failed to export positions", map[string]interface{}{"file": result.PositionsFile})
			return nil, fmt.Errorf("failed to export positions: %w", err)
		}
		if err := utils.WriteStatisticsToCSV(stats, result.StatisticsFile); err != nil {
			s.logger.Error(ctx, err, "Failed to export trade statistics", map[string]interface{}{"file": result.StatisticsFile})
			return nil, fmt.Errorf("failed to export trade statistics: %w", err)
		}
	}

	run.FinishedAt = s.now()
	if s.repo != nil {
		if err := s.repo.FinishRun(ctx, &run); err != nil {
			s.logger.Error(ctx, err, "Failed to finish run", fields)
			return nil, fmt.Errorf("failed to finish run: %w", err)
		}
	}
	result.Run = run

	s.metrics.ObserveRunDuration(run.FinishedAt.Sub(run.StartedAt))
	if s.cfg.MetricsFile != "" {
		if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
			// Metrics are auxiliary output; the run itself succeeded.
			s.logger.Warn(ctx, "Failed to write metrics file", map[string]interface{}{"file": s.cfg.MetricsFile, "error": err.Error()})
		}
	}

	s.logger.Info(ctx, "Reconciliation finished", map[string]interface{}{
		"runID":        run.ID,
		"symbols":      run.Symbols,
		"trades":       run.Trades,
		"positions":    len(positions),
		"roundTrips":   len(stats),
		"recordErrors": len(recordErrs),
		"netGainLoss":  result.Summary.Overall.NetGainLoss.String(),
	})
	return result, nil
}
