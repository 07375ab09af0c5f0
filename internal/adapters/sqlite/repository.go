package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.LedgerRepository interface using SQLite.
// Decimals are stored as TEXT so they round-trip exactly; times are stored as
// Unix milliseconds.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ledger.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers; SQLite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER DEFAULT NULL,
		quote_asset TEXT NOT NULL,
		symbols INTEGER NOT NULL DEFAULT 0,
		trades INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS positions (
		run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		date_ms INTEGER NOT NULL,
		average_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		total_price TEXT NOT NULL,
		commission_quote TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS trade_statistics (
		run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		date_bought_ms INTEGER NOT NULL,
		date_sold_ms INTEGER NOT NULL,
		quantity TEXT NOT NULL,
		avg_price_bought TEXT NOT NULL,
		avg_price_sold TEXT NOT NULL,
		total_bought TEXT NOT NULL,
		total_sold TEXT NOT NULL,
		gain_loss_absolute TEXT NOT NULL,
		gain_loss_percent TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);
	CREATE INDEX IF NOT EXISTS idx_trade_statistics_symbol ON trade_statistics (symbol, date_sold_ms);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- RunRepository Implementation ---

// CreateRun saves a new run record.
func (r *Repository) CreateRun(ctx context.Context, run *domain.Run) error {
	const query = `
	INSERT INTO runs (id, started_at, quote_asset, symbols, trades)
	VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, run.ID, run.StartedAt.UnixMilli(), run.QuoteAsset, run.Symbols, run.Trades)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w: %w", run.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Run created", map[string]interface{}{"runID": run.ID})
	return nil
}

// FinishRun records the completion time and counters of a run.
func (r *Repository) FinishRun(ctx context.Context, run *domain.Run) error {
	const query = `UPDATE runs SET finished_at = ?, symbols = ?, trades = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, run.FinishedAt.UnixMilli(), run.Symbols, run.Trades, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w: %w", run.ID, ports.ErrQueryFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for run %s: %w: %w", run.ID, ports.ErrQueryFailed, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s not found for update: %w", run.ID, ports.ErrNotFound)
	}
	return nil
}

// FindLatestRun returns the most recently started run, or nil, nil if none exists.
func (r *Repository) FindLatestRun(ctx context.Context) (*domain.Run, error) {
	const query = `
	SELECT id, started_at, finished_at, quote_asset, symbols, trades
	FROM runs
	ORDER BY started_at DESC, rowid DESC
	LIMIT 1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query latest run: %w: %w", ports.ErrQueryFailed, err)
	}
	return run, nil
}

// --- LedgerRepository Implementation ---

// SavePositions stores the position sequence of a run in one transaction.
func (r *Repository) SavePositions(ctx context.Context, runID string, positions []domain.Position) error {
	const query = `
	INSERT INTO positions (run_id, seq, symbol, side, date_ms, average_price, quantity, total_price, commission_quote)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.inTx(ctx, query, func(stmt *sql.Stmt) error {
		for i, p := range positions {
			if _, err := stmt.ExecContext(ctx, runID, i, p.Symbol, string(p.Side), p.Date.UnixMilli(),
				p.AveragePrice, p.Quantity, p.TotalPrice, p.CommissionQuote); err != nil {
				return fmt.Errorf("position %d (%s): %w", i, p.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save positions for run %s: %w: %w", runID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Positions saved", map[string]interface{}{"runID": runID, "count": len(positions)})
	return nil
}

// SaveStatistics stores the trade statistics of a run in one transaction.
func (r *Repository) SaveStatistics(ctx context.Context, runID string, stats []domain.TradeStatistic) error {
	const query = `
	INSERT INTO trade_statistics (run_id, seq, symbol, date_bought_ms, date_sold_ms, quantity,
	                              avg_price_bought, avg_price_sold, total_bought, total_sold,
	                              gain_loss_absolute, gain_loss_percent)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.inTx(ctx, query, func(stmt *sql.Stmt) error {
		for i, s := range stats {
			if _, err := stmt.ExecContext(ctx, runID, i, s.Symbol, s.DateBought.UnixMilli(), s.DateSold.UnixMilli(),
				s.Quantity, s.AvgPriceBought, s.AvgPriceSold, s.TotalBought, s.TotalSold,
				s.GainLossAbsolute, s.GainLossPercent); err != nil {
				return fmt.Errorf("statistic %d (%s): %w", i, s.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save statistics for run %s: %w: %w", runID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Statistics saved", map[string]interface{}{"runID": runID, "count": len(stats)})
	return nil
}

// FindPositionsByRun returns the positions of a run in their original order.
func (r *Repository) FindPositionsByRun(ctx context.Context, runID string) ([]domain.Position, error) {
	const query = `
	SELECT symbol, side, date_ms, average_price, quantity, total_price, commission_quote
	FROM positions
	WHERE run_id = ?
	ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for run %s: %w: %w", runID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position for run %s: %w: %w", runID, ports.ErrQueryFailed, err)
		}
		positions = append(positions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return positions, nil
}

// FindStatisticsByRun returns the trade statistics of a run in their original order.
func (r *Repository) FindStatisticsByRun(ctx context.Context, runID string) ([]domain.TradeStatistic, error) {
	const query = `
	SELECT symbol, date_bought_ms, date_sold_ms, quantity, avg_price_bought, avg_price_sold,
	       total_bought, total_sold, gain_loss_absolute, gain_loss_percent
	FROM trade_statistics
	WHERE run_id = ?
	ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics for run %s: %w: %w", runID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	stats := make([]domain.TradeStatistic, 0)
	for rows.Next() {
		s, err := scanStatistic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statistic for run %s: %w: %w", runID, ports.ErrQueryFailed, err)
		}
		stats = append(stats, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statistic rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return stats, nil
}

// inTx prepares query inside a transaction and hands the statement to fn.
// The transaction is rolled back if fn fails.
func (r *Repository) inTx(ctx context.Context, query string, fn func(stmt *sql.Stmt) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var startedAt int64
	var finishedAt sql.NullInt64
	err := s.Scan(&run.ID, &startedAt, &finishedAt, &run.QuoteAsset, &run.Symbols, &run.Trades)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		run.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
	}
	return run, nil
}

// scanPosition scans a row into a domain.Position. decimal.Decimal implements sql.Scanner.
func scanPosition(s scanner) (domain.Position, error) {
	var p domain.Position
	var side string
	var dateMs int64
	err := s.Scan(&p.Symbol, &side, &dateMs, &p.AveragePrice, &p.Quantity, &p.TotalPrice, &p.CommissionQuote)
	if err != nil {
		return p, err
	}
	p.Side = domain.Side(side)
	p.Date = time.UnixMilli(dateMs).UTC()
	return p, nil
}

func scanStatistic(s scanner) (domain.TradeStatistic, error) {
	var st domain.TradeStatistic
	var boughtMs, soldMs int64
	err := s.Scan(&st.Symbol, &boughtMs, &soldMs, &st.Quantity, &st.AvgPriceBought, &st.AvgPriceSold,
		&st.TotalBought, &st.TotalSold, &st.GainLossAbsolute, &st.GainLossPercent)
	if err != nil {
		return st, err
	}
	st.DateBought = time.UnixMilli(boughtMs).UTC()
	st.DateSold = time.UnixMilli(soldMs).UTC()
	return st, nil
}
