package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/metrics"
	"cryptoLedger/internal/ports"
	"cryptoLedger/internal/utils"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockExchange struct {
	symbols        []string
	trades         map[string][]*domain.Trade
	listSymbolsErr error
	getTradesErr   map[string]error
	onGetTrades    func(symbol string) // Called before returning from GetTrades

	mu      sync.Mutex
	queried []string
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	if m.listSymbolsErr != nil {
		return nil, m.listSymbolsErr
	}
	return m.symbols, nil
}

func (m *mockExchange) GetTrades(ctx context.Context, symbol string, query ports.TradeQuery) ([]*domain.Trade, error) {
	m.mu.Lock()
	m.queried = append(m.queried, symbol)
	m.mu.Unlock()
	if m.onGetTrades != nil {
		m.onGetTrades(symbol)
	}
	if err := m.getTradesErr[symbol]; err != nil {
		return nil, err
	}
	return m.trades[symbol], nil
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	return nil, nil
}

type mockRepository struct {
	runs       map[string]*domain.Run
	positions  map[string][]domain.Position
	statistics map[string][]domain.TradeStatistic
	saveErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		runs:       make(map[string]*domain.Run),
		positions:  make(map[string][]domain.Position),
		statistics: make(map[string][]domain.TradeStatistic),
	}
}

func (m *mockRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	r := *run
	m.runs[run.ID] = &r
	return nil
}

func (m *mockRepository) FinishRun(ctx context.Context, run *domain.Run) error {
	if _, ok := m.runs[run.ID]; !ok {
		return ports.ErrNotFound
	}
	r := *run
	m.runs[run.ID] = &r
	return nil
}

func (m *mockRepository) FindLatestRun(ctx context.Context) (*domain.Run, error) {
	var latest *domain.Run
	for _, r := range m.runs {
		if latest == nil || r.StartedAt.After(latest.StartedAt) {
			latest = r
		}
	}
	return latest, nil
}

func (m *mockRepository) SavePositions(ctx context.Context, runID string, positions []domain.Position) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.positions[runID] = positions
	return nil
}

func (m *mockRepository) SaveStatistics(ctx context.Context, runID string, stats []domain.TradeStatistic) error {
	m.statistics[runID] = stats
	return nil
}

func (m *mockRepository) FindPositionsByRun(ctx context.Context, runID string) ([]domain.Position, error) {
	return m.positions[runID], nil
}

func (m *mockRepository) FindStatisticsByRun(ctx context.Context, runID string) ([]domain.TradeStatistic, error) {
	return m.statistics[runID], nil
}

var t0 = time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)

func trade(id int64, symbol string, side domain.Side, price, qty string) *domain.Trade {
	return &domain.Trade{
		ID:              id,
		OrderID:         id,
		Time:            t0.Add(time.Duration(id) * time.Hour),
		Symbol:          symbol,
		Side:            side,
		Price:           decimal.RequireFromString(price),
		Quantity:        decimal.RequireFromString(qty),
		Commission:      decimal.Zero,
		CommissionAsset: "PHP",
	}
}

func newTestService(t *testing.T, exchange ports.ExchangeClient, repo ports.LedgerRepository) (*ReconcileService, *mockLogger, *metrics.Recorder) {
	t.Helper()
	logger := &mockLogger{}
	recorder := metrics.New()
	cfg := ServiceConfig{
		QuoteAsset:     "PHP",
		MaxConcurrency: 2,
		OutputDir:      t.TempDir(),
	}
	svc, err := NewReconcileService(cfg, logger, exchange, repo, recorder)
	require.NoError(t, err)
	svc.now = func() time.Time { return t0 }
	svc.newID = func() string { return "run-1" }
	return svc, logger, recorder
}

func TestNewReconcileService(t *testing.T) {
	logger := &mockLogger{}
	repo := newMockRepository()

	_, err := NewReconcileService(ServiceConfig{QuoteAsset: "PHP"}, nil, nil, repo, nil)
	assert.Error(t, err, "logger is required")


	_, err = NewReconcileService(ServiceConfig{}, logger, nil, repo, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewReconcileService(ServiceConfig{QuoteAsset: "PHP", ClosureThreshold: decimal.RequireFromString("1.5")}, logger, nil, repo, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	svc, err := NewReconcileService(ServiceConfig{QuoteAsset: "PHP"}, logger, nil, repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.cfg.MaxConcurrency)
	assert.NotNil(t, svc.metrics)
}

func TestRun_RoundTrip(t *testing.T) {
	exchange := &mockExchange{
		symbols: []string{"ETHPHP", "BTCPHP"},
		trades: map[string][]*domain.Trade{
			"BTCPHP": {
				trade(1, "BTCPHP", domain.Buy, "100", "10"),
				trade(2, "BTCPHP", domain.Sell, "120", "10"),
			},
		},
	}
	repo := newMockRepository()
	svc, logger, recorder := newTestService(t, exchange, repo)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCPHP", "ETHPHP"}, result.Symbols)
	assert.ElementsMatch(t, []string{"BTCPHP", "ETHPHP"}, exchange.queried)
	assert.Empty(t, result.FetchFailures)
	require.Len(t, result.Positions, 2)
	require.Len(t, result.Statistics, 1)
	assert.True(t, decimal.NewFromInt(200).Equal(result.Statistics[0].GainLossAbsolute))
	assert.True(t, decimal.NewFromInt(200).Equal(result.Summary.Overall.NetGainLoss))

	assert.Equal(t, "run-1", result.Run.ID)
	assert.Equal(t, 2, result.Run.Symbols)
	assert.Equal(t, 2, result.Run.Trades)
	require.Contains(t, repo.runs, "run-1")
	assert.False(t, repo.runs["run-1"].FinishedAt.IsZero(), "run is finished")
	assert.Len(t, repo.positions["run-1"], 2)
	assert.Len(t, repo.statistics["run-1"], 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.TradesFetched.WithLabelValues("BTCPHP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.RoundTrips))
	assert.Empty(t, logger.errorMsgs)
	assert.Contains(t, logger.infoMsgs, "Reconciliation finished")
}

func TestRun_ExportsCSV(t *testing.T) {
	exchange := &mockExchange{
		symbols: []string{"BTCPHP"},
		trades: map[string][]*domain.Trade{
			"BTCPHP": {
				trade(1, "BTCPHP", domain.Buy, "100", "10"),
				trade(2, "BTCPHP", domain.Sell, "90", "10"),
			},
		},
	}
	svc, _, _ := newTestService(t, exchange, newMockRepository())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(svc.cfg.OutputDir, "positions_20240502T083000Z.csv"), result.PositionsFile)
	assert.Equal(t, filepath.Join(svc.cfg.OutputDir, "trade_statistics_20240502T083000Z.csv"), result.StatisticsFile)
	_, err = os.Stat(result.PositionsFile)
	assert.NoError(t, err)

	stats, err := utils.ReadStatisticsFromCSV(result.StatisticsFile)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.True(t, decimal.NewFromInt(-100).Equal(stats[0].GainLossAbsolute))
}

func TestRun_TradeRetrievalFailureIsTreatedAsEmpty(t *testing.T) {
	exchange := &mockExchange{
		symbols: []string{"BTCPHP", "XRPPHP"},
		trades: map[string][]*domain.Trade{
			"BTCPHP": {
				trade(1, "BTCPHP", domain.Buy, "100", "1"),
				trade(2, "BTCPHP", domain.Sell, "110", "1"),
			},
		},
		getTradesErr: map[string]error{"XRPPHP": ports.ErrExchangeUnavailable},
	}
	svc, logger, recorder := newTestService(t, exchange, newMockRepository())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"XRPPHP"}, result.FetchFailures)
	assert.Len(t, result.Statistics, 1)
	assert.Contains(t, logger.warnMsgs, "Trade retrieval failed, treating symbol as empty")
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.FetchFailures.WithLabelValues("XRPPHP")))
}

func TestRun_ListSymbolsFailureIsFatal(t *testing.T) {
	exchange := &mockExchange{listSymbolsErr: ports.ErrInvalidAPIKeys}
	repo := newMockRepository()
	svc, logger, _ := newTestService(t, exchange, repo)

	result, err := svc.Run(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ports.ErrInvalidAPIKeys)
	assert.Empty(t, repo.runs, "no run is recorded")
	assert.Contains(t, logger.errorMsgs, "Failed to list symbols")
}

func TestRun_CanceledContext(t *testing.T) {
	exchange := &mockExchange{symbols: []string{"BTCPHP", "ETHPHP"}}
	svc, _, _ := newTestService(t, exchange, newMockRepository())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CanceledDuringRetrieval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exchange := &mockExchange{
		symbols: []string{"BTCPHP"},
		trades: map[string][]*domain.Trade{
			"BTCPHP": {trade(1, "BTCPHP", domain.Buy, "100", "1")},
		},
		getTradesErr: map[string]error{"BTCPHP": fmt.Errorf("GetTrades failed: %w: %w", ports.ErrContextCanceled, context.Canceled)},
		onGetTrades:  func(string) { cancel() },
	}
	repo := newMockRepository()
	svc, logger, recorder := newTestService(t, exchange, repo)

	result, err := svc.Run(ctx)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, repo.runs, "a canceled run is not recorded")
	assert.NotContains(t, logger.warnMsgs, "Trade retrieval failed, treating symbol as empty")
	assert.Equal(t, 0.0, testutil.ToFloat64(recorder.FetchFailures.WithLabelValues("BTCPHP")))
}

func TestRun_RequiresExchange(t *testing.T) {
	svc, _, _ := newTestService(t, nil, newMockRepository())

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestRunFromTrades_RecordErrorsAreCounted(t *testing.T) {
	svc, logger, recorder := newTestService(t, nil, newMockRepository())

	trades := []*domain.Trade{
		trade(1, "ETHPHP", domain.Buy, "50", "2"),
		trade(2, "ETHPHP", domain.Buy, "0", "1"), // invalid price
		trade(3, "ETHPHP", domain.Sell, "60", "2"),
		trade(4, "ADAPHP", domain.Buy, "3", "10"),
	}

	result, err := svc.RunFromTrades(context.Background(), trades)
	require.NoError(t, err)

	assert.Equal(t, []string{"ADAPHP", "ETHPHP"}, result.Symbols)
	require.Len(t, result.RecordErrors, 1)
	assert.ErrorIs(t, result.RecordErrors[0], ports.ErrInvalidTrade)
	assert.Contains(t, logger.warnMsgs, "Skipped record")
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.RecordErrors.WithLabelValues(metrics.KindInvalidTrade)))

	require.Len(t, result.Statistics, 1)
	assert.Equal(t, "ETHPHP", result.Statistics[0].Symbol)
	assert.True(t, decimal.NewFromInt(20).Equal(result.Statistics[0].GainLossAbsolute))
	assert.Equal(t, "ADAPHP", result.Positions[0].Symbol, "positions follow ascending symbol order")
}

func TestRunFromTrades_SaveFailure(t *testing.T) {
	repo := newMockRepository()
	repo.saveErr = errors.New("disk full")
	svc, logger, _ := newTestService(t, nil, repo)

	_, err := svc.RunFromTrades(context.Background(), []*domain.Trade{trade(1, "BTCPHP", domain.Buy, "1", "1")})
	assert.Error(t, err)
	assert.Contains(t, logger.errorMsgs, "Failed to save positions")
}

func TestRunFromTrades_WithoutRepository(t *testing.T) {
	svc, logger, _ := newTestService(t, nil, nil)

	result, err := svc.RunFromTrades(context.Background(), []*domain.Trade{
		trade(1, "BTCPHP", domain.Buy, "100", "1"),
		trade(2, "BTCPHP", domain.Sell, "105", "1"),
	})
	require.NoError(t, err)
	assert.Len(t, result.Statistics, 1)
	assert.FileExists(t, result.StatisticsFile)
	assert.Empty(t, logger.errorMsgs)
}

func TestRunFromTrades_EmptyHistory(t *testing.T) {
	svc, _, _ := newTestService(t, nil, newMockRepository())

	result, err := svc.RunFromTrades(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Positions)
	assert.Empty(t, result.Statistics)
	assert.True(t, result.Summary.Overall.NetGainLoss.IsZero())
}
