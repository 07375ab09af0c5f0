// Package binanceclient implements ports.ExchangeClient against the Binance
// spot REST API using the go-binance library.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// tradesPageLimit is the largest page myTrades serves.
	tradesPageLimit = 1000
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	BaseURL    string // Overrides the production/testnet URL when set
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance spot client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{spotClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys
		case -1000, -1001, -1007, -1008: // Unknown, disconnected, backend timeout, server busy
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if errors.Is(err, errTranslate) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnexpectedResponse, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the Binance API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, "Ping successful")
	return nil
}

// ListSymbols returns the spot symbols quoted in quoteAsset.
func (c *Client) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	op := "ListSymbols"
	info, err := c.spotClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	var symbols []string
	for _, s := range info.Symbols {
		if strings.EqualFold(s.QuoteAsset, quoteAsset) {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// GetTrades retrieves the account's fills for symbol, ordered by time then id.
// Without a start time the history is walked from trade id 0; otherwise the
// first page is bounded by the query times. Later pages continue after the
// highest trade id seen and are filtered locally by the end time.
func (c *Client) GetTrades(ctx context.Context, symbol string, query ports.TradeQuery) ([]*domain.Trade, error) {
	op := "GetTrades"
	var (
		trades []*domain.Trade
		fromID int64 = -1
	)
	if query.StartTime.IsZero() {
		// A request without startTime or fromId returns only the newest fills.
		fromID = 0
	}
	for {
		svc := c.spotClient.NewListTradesService().Symbol(symbol).Limit(tradesPageLimit)
		if fromID < 0 {
			svc = svc.StartTime(query.StartTime.UnixMilli())
			if !query.EndTime.IsZero() {
				svc = svc.EndTime(query.EndTime.UnixMilli())
			}
		} else {
			svc = svc.FromID(fromID)
		}

		page, err := svc.Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}

		pastEnd := false
		maxID := fromID
		for _, bt := range page {
			maxID = max(maxID, bt.ID)
			t, err := translateTrade(bt)
			if err != nil {
				return nil, c.handleError(ctx, err, op)
			}
			if !query.EndTime.IsZero() && t.Time.After(query.EndTime) {
				pastEnd = true
				continue
			}
			trades = append(trades, t)
		}
		c.logger.Debug(ctx, "Fetched trades page", map[string]interface{}{"symbol": symbol, "count": len(page), "fromId": fromID})

		if len(page) < tradesPageLimit || pastEnd {
			break
		}
		fromID = maxID + 1
	}

	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].Time.Equal(trades[j].Time) {
			return trades[i].Time.Before(trades[j].Time)
		}
		return trades[i].ID < trades[j].ID
	})
	return trades, nil
}

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		domainKlines = append(domainKlines, dk)
	}

	return domainKlines, nil
}

// --- Translation Helpers ---

var errTranslate = errors.New("translate response")

func translateTrade(bt *binance.TradeV3) (*domain.Trade, error) {
	if bt == nil {
		return nil, fmt.Errorf("%w: received nil trade", errTranslate)
	}
	price, err := decimal.NewFromString(bt.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing price '%s': %w", errTranslate, bt.Price, err)
	}
	qty, err := decimal.NewFromString(bt.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing quantity '%s': %w", errTranslate, bt.Quantity, err)
	}
	commission := decimal.Zero
	if bt.Commission != "" {
		commission, err = decimal.NewFromString(bt.Commission)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing commission '%s': %w", errTranslate, bt.Commission, err)
		}
	}

	return &domain.Trade{
		ID:              bt.ID,
		OrderID:         bt.OrderID,
		Time:            time.UnixMilli(bt.Time).UTC(),
		Symbol:          bt.Symbol,
		Side:            domain.SideFromIsBuyer(bt.IsBuyer),
		Price:           price,
		Quantity:        qty,
		Commission:      commission,
		CommissionAsset: bt.CommissionAsset,
	}, nil
}

func translateBinanceKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, fmt.Errorf("%w: received nil historical kline", errTranslate)
	}
	fields := []struct {
		name string
		raw  string
	}{{"open", bk.Open}, {"high", bk.High}, {"low", bk.Low}, {"close", bk.Close}, {"volume", bk.Volume}}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing %s '%s': %w", errTranslate, f.name, f.raw, err)
		}
		values[i] = v
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime: time.UnixMilli(bk.CloseTime).UTC(),
		Symbol:    symbol,
		Interval:  interval,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
