package domain

import "time"

// Run describes one reconciliation pass over the account history.
type Run struct {
	ID         string    // UUID assigned when the run starts
	StartedAt  time.Time
	FinishedAt time.Time // Zero while the run is in progress
	QuoteAsset string
	Symbols    int // Number of symbols inspected
	Trades     int // Number of executions processed
}
