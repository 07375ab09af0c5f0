package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// weightedAverage combines two priced quantities into one quantity-weighted price.
func weightedAverage(avgA, qtyA, avgB, qtyB decimal.Decimal) (decimal.Decimal, error) {
	qty := qtyA.Add(qtyB)
	if qty.IsZero() {
		return decimal.Zero, ports.ErrZeroQuantity
	}
	return avgA.Mul(qtyA).Add(avgB.Mul(qtyB)).Div(qty), nil
}

// mergePositions folds add into base. The result keeps base's date, symbol and side.
// Totals are summed exactly; only the average price is subject to division rounding.
func mergePositions(base, add domain.Position) (domain.Position, error) {
	avg, err := weightedAverage(base.AveragePrice, base.Quantity, add.AveragePrice, add.Quantity)
	if err != nil {
		return base, fmt.Errorf("merge %s %s lot: %w", base.Symbol, base.Side, err)
	}
	merged := base
	merged.AveragePrice = avg
	merged.Quantity = base.Quantity.Add(add.Quantity)
	merged.TotalPrice = base.TotalPrice.Add(add.TotalPrice)
	merged.CommissionQuote = base.CommissionQuote.Add(add.CommissionQuote)
	return merged, nil
}

// positionFromTrade starts a new lot from a single fill.
func positionFromTrade(t *domain.Trade, quoteAsset string) domain.Position {
	return domain.Position{
		Date:            t.Time,
		Symbol:          t.Symbol,
		Side:            t.Side,
		AveragePrice:    t.Price,
		Quantity:        t.Quantity,
		TotalPrice:      t.Total(),
		CommissionQuote: t.CommissionIn(quoteAsset),
	}
}
