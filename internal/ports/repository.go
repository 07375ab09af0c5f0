package ports

import (
	"context"

	"cryptoLedger/internal/domain"
)

// RunRepository stores reconciliation run metadata.
type RunRepository interface {
	// CreateRun saves a new run record.
	CreateRun(ctx context.Context, run *domain.Run) error
	// FinishRun records the completion time and counters of a run.
	FinishRun(ctx context.Context, run *domain.Run) error
	// FindLatestRun returns the most recently started run, or nil, nil if none exists.
	FindLatestRun(ctx context.Context) (*domain.Run, error)
}

// LedgerRepository stores the output of the lot matcher and the statistics builder.
type LedgerRepository interface {
	RunRepository
	// SavePositions stores the position sequence of a run, preserving its order.
	SavePositions(ctx context.Context, runID string, positions []domain.Position) error
	// SaveStatistics stores the trade statistics of a run, preserving their order.
	SaveStatistics(ctx context.Context, runID string, stats []domain.TradeStatistic) error
	// FindPositionsByRun returns the positions of a run in their original order.
	FindPositionsByRun(ctx context.Context, runID string) ([]domain.Position, error)
	// FindStatisticsByRun returns the trade statistics of a run in their original order.
	FindStatisticsByRun(ctx context.Context, runID string) ([]domain.TradeStatistic, error)
}
