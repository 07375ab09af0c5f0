package coinsph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLedger/internal/domain"
)

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// accountTrade is one element of the myTrades response.
type accountTrade struct {
	Symbol          string          `json:"symbol"`
	ID              int64           `json:"id"`
	OrderID         int64           `json:"orderId"`
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	QuoteQty        decimal.Decimal `json:"quoteQty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	Time            int64           `json:"time"`
	IsBuyer         bool            `json:"isBuyer"`
	IsMaker         bool            `json:"isMaker"`
}

// apiErrorBody is the error payload returned with non-2xx responses.
type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func translateTrade(t accountTrade) *domain.Trade {
	return &domain.Trade{
		ID:              t.ID,
		OrderID:         t.OrderID,
		Time:            time.UnixMilli(t.Time).UTC(),
		Symbol:          t.Symbol,
		Side:            domain.SideFromIsBuyer(t.IsBuyer),
		Price:           t.Price,
		Quantity:        t.Qty,
		Commission:      t.Commission,
		CommissionAsset: t.CommissionAsset,
	}
}

// translateKline converts one kline row:
// [openTime, open, high, low, close, volume, closeTime, ...].
func translateKline(row []json.RawMessage, symbol, interval string) (*domain.Kline, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("kline row has %d fields, want at least 7", len(row))
	}
	var openTime, closeTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return nil, fmt.Errorf("parsing open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeTime); err != nil {
		return nil, fmt.Errorf("parsing close time: %w", err)
	}

	values := make([]float64, 5)
	names := []string{"open", "high", "low", "close", "volume"}
	for i := range values {
		v, err := parseNumber(row[i+1])
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", names[i], err)
		}
		values[i] = v
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(openTime).UTC(),
		CloseTime: time.UnixMilli(closeTime).UTC(),
		Symbol:    symbol,
		Interval:  interval,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

// parseNumber accepts a JSON string or number.
func parseNumber(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, errors.New("not a number: " + string(raw))
	}
	return f, nil
}
