package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatistic is the realized result of one round trip.
type TradeStatistic struct {
	DateBought       time.Time
	DateSold         time.Time
	Symbol           string
	Quantity         decimal.Decimal // Matched sell quantity
	AvgPriceBought   decimal.Decimal
	AvgPriceSold     decimal.Decimal
	TotalBought      decimal.Decimal // Cost basis
	TotalSold        decimal.Decimal
	GainLossAbsolute decimal.Decimal // TotalSold - TotalBought
	GainLossPercent  decimal.Decimal // GainLossAbsolute / TotalBought * 100
}

// IsWin reports whether the round trip realized a positive gain.
func (s *TradeStatistic) IsWin() bool {
	return s.GainLossAbsolute.IsPositive()
}
