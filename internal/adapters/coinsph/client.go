// Package coinsph implements ports.ExchangeClient against the coins.ph
// spot REST API.
package coinsph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.pro.coins.ph"

	pathPing         = "/openapi/v1/ping"
	pathExchangeInfo = "/openapi/v1/exchangeInfo"
	pathMyTrades     = "/openapi/v1/myTrades"
	pathKlines       = "/openapi/quote/v1/klines"

	apiKeyHeader = "X-COINS-APIKEY"

	// tradesPageLimit is the largest page myTrades serves.
	tradesPageLimit = 1000
)

// Config holds configuration specific to the coins.ph client adapter.
type Config struct {
	APIKey            string
	SecretKey         string
	BaseURL           string        // Defaults to DefaultBaseURL
	RecvWindow        time.Duration // Validity window of signed requests
	Timeout           time.Duration // Per-request HTTP timeout
	RequestsPerSecond float64       // Client-side pacing; zero disables it
	Logger            ports.Logger
	HTTPClient        *http.Client // Optional; overrides Timeout
}

// Client implements the ports.ExchangeClient interface over net/http.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     ports.Logger
}

// New creates a new coins.ph client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for coins.ph client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, ports.ErrConfigurationError)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	logger := cfg.Logger
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "coinsph",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "Circuit breaker state changed", map[string]interface{}{
				"name": name, "from": from.String(), "to": to.String(),
			})
		},
		// Rejected requests mean the exchange is up; only transport and 5xx failures trip the breaker.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	logger.Info(context.Background(), "coins.ph client configured", map[string]interface{}{"baseURL": baseURL})
	return &Client{
		baseURL:    baseURL,
		signer:     &Signer{Key: cfg.APIKey, Secret: cfg.SecretKey, RecvWindow: cfg.RecvWindow},
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    breaker,
		logger:     logger,
	}, nil
}

// APIError is an error response returned by the exchange.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("<APIError> status=%d code=%d msg=%s", e.StatusCode, e.Code, e.Message)
}

var errDecode = errors.New("decode response")

// Ping checks connectivity to the API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if _, err := c.get(ctx, pathPing, nil, false); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, "Ping successful")
	return nil
}

// ListSymbols returns the symbols quoted in quoteAsset.
func (c *Client) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	op := "ListSymbols"
	body, err := c.get(ctx, pathExchangeInfo, nil, false)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: exchangeInfo: %w", errDecode, err), op)
	}

	var symbols []string
	for _, s := range info.Symbols {
		if strings.EqualFold(s.QuoteAsset, quoteAsset) {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// GetTrades returns the account's fills for symbol, ordered by time then id.
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
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("limit", strconv.Itoa(tradesPageLimit))
		if fromID < 0 {
			params.Set("startTime", strconv.FormatInt(query.StartTime.UnixMilli(), 10))
			if !query.EndTime.IsZero() {
				params.Set("endTime", strconv.FormatInt(query.EndTime.UnixMilli(), 10))
			}
		} else {
			params.Set("fromId", strconv.FormatInt(fromID, 10))
		}

		body, err := c.get(ctx, pathMyTrades, params, true)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		var page []accountTrade
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("%w: myTrades: %w", errDecode, err), op)
		}

		pastEnd := false
		maxID := fromID
		for _, at := range page {
			maxID = max(maxID, at.ID)
			t := translateTrade(at)
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

// GetKlines retrieves historical klines for symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, pathKlines, params, false)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: klines: %w", errDecode, err), op)
	}

	klines := make([]*domain.Kline, 0, len(rows))
	for _, row := range rows {
		k, err := translateKline(row, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("%w: kline: %w", errDecode, err), op)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// get paces, signs when required, and sends a GET request through the circuit breaker.
func (c *Client) get(ctx context.Context, path string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		query := params.Encode()
		if signed {
			query = c.signer.Sign(params)
		}
		fullURL := c.baseURL + path
		if query != "" {
			fullURL += "?" + query
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if signed {
			req.Header.Set(apiKeyHeader, c.signer.Key)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
			var payload apiErrorBody
			if json.Unmarshal(body, &payload) == nil && payload.Code != 0 {
				apiErr.Code, apiErr.Message = payload.Code, payload.Message
			}
			return nil, apiErr
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

// handleError translates API and transport errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["httpStatus"] = apiErr.StatusCode

		var mappedErr error
		switch {
		case apiErr.Code == -1003 || apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == http.StatusTeapot:
			mappedErr = ports.ErrRateLimited
		case apiErr.Code == -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case apiErr.Code == -1022: // Signature invalid
			mappedErr = ports.ErrAuthenticationFailed
		case apiErr.Code == -2014 || apiErr.Code == -2015 || apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			mappedErr = ports.ErrInvalidAPIKeys
		case apiErr.Code == -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case apiErr.Code <= -1100 && apiErr.Code > -1200: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case apiErr.StatusCode == http.StatusNotFound:
			mappedErr = ports.ErrNotFound
		case apiErr.StatusCode >= http.StatusInternalServerError:
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var netErr net.Error
	var finalErr error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case errors.Is(err, errDecode):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnexpectedResponse, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.As(err, &netErr):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}
