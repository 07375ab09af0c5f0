package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one aggregated side of a round trip: a buy lot or a sell lot
// built from one or more fills of the same side.
type Position struct {
	Date            time.Time       // Time of the first contributing fill
	Symbol          string          // Trading symbol
	Side            Side            // BUY or SELL
	AveragePrice    decimal.Decimal // Quantity-weighted mean price
	Quantity        decimal.Decimal // Sum of contributing quantities
	TotalPrice      decimal.Decimal // Exact running sum of price*quantity, the field of record
	CommissionQuote decimal.Decimal // Sum of commissions in the quote asset
}

// IsBuy reports whether the position is a buy lot.
func (p Position) IsBuy() bool {
	return p.Side == Buy
}
