package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents one executed fill of the account, as reported by the exchange.
type Trade struct {
	ID              int64           // Exchange trade ID
	OrderID         int64           // Exchange order ID the fill belongs to
	Time            time.Time       // Execution time (millisecond resolution)
	Symbol          string          // Trading symbol (e.g., "BTCPHP")
	Side            Side            // BUY or SELL
	Price           decimal.Decimal // Execution price
	Quantity        decimal.Decimal // Executed base quantity
	Commission      decimal.Decimal // Fee amount, denominated in CommissionAsset
	CommissionAsset string          // Asset the fee was charged in
}

// Total returns price * quantity.
func (t *Trade) Total() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// CommissionIn returns the commission expressed in the quote asset.
// A commission charged in another asset is converted at the fill price; the
// asset's own quote price is not looked up.
func (t *Trade) CommissionIn(quoteAsset string) decimal.Decimal {
	if t.CommissionAsset == quoteAsset {
		return t.Commission
	}
	return t.Commission.Mul(t.Price)
}
