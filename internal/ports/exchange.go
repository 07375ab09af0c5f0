package ports

import (
	"context"
	"time"

	"cryptoLedger/internal/domain"
)

// TradeQuery narrows the executions returned by GetTrades. Zero times mean unbounded.
type TradeQuery struct {
	StartTime time.Time
	EndTime   time.Time
}

// ExchangeClient defines the read-only surface of a spot exchange used by the ledger.
// This abstraction allows decoupling the reconciliation logic from specific exchange implementations.
type ExchangeClient interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// ListSymbols returns the tradable symbols quoted in quoteAsset. No ordering is guaranteed.
	ListSymbols(ctx context.Context, quoteAsset string) ([]string, error)

	// GetTrades retrieves the account's executions for a symbol, ordered by time.
	// Requires signed (authenticated) access.
	GetTrades(ctx context.Context, symbol string, query TradeQuery) ([]*domain.Trade, error)

	// GetKlines retrieves historical klines/candlestick data for the given symbol.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}
