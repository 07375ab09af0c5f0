package coinsph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:     "test-key",
		SecretKey:  "test-secret",
		BaseURL:    srv.URL,
		RecvWindow: 5 * time.Second,
		Logger:     nopLogger{},
	})
	require.NoError(t, err)
	return c
}

func TestHMACSHA256Hex_KnownVector(t *testing.T) {
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", hmacSHA256Hex([]byte(secret), query))
}

func TestSigner_SignAt(t *testing.T) {
	s := &Signer{Key: "k", Secret: "secret", RecvWindow: 10 * time.Second}
	params := url.Values{}
	params.Set("symbol", "BTCPHP")
	params.Set("fromId", "")

	signed := s.SignAt(params, time.UnixMilli(1700000000123))

	idx := strings.LastIndex(signed, "&signature=")
	require.Greater(t, idx, 0)
	payload, sig := signed[:idx], signed[idx+len("&signature="):]
	assert.Equal(t, "recvWindow=10000&symbol=BTCPHP&timestamp=1700000000123", payload, "empty values are dropped")
	assert.Equal(t, hmacSHA256Hex([]byte("secret"), payload), sig)
	assert.Len(t, sig, 64)

	assert.Equal(t, signed, s.SignAt(params, time.UnixMilli(1700000000123)), "signing is deterministic")
	assert.NotContains(t, s.String(), "secret")
}

func TestClient_ListSymbols(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathExchangeInfo, r.URL.Path)
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"BTCPHP","quoteAsset":"PHP"},
			{"symbol":"ETHUSDT","quoteAsset":"USDT"},
			{"symbol":"ETHPHP","quoteAsset":"PHP"}]}`)
	})

	symbols, err := c.ListSymbols(context.Background(), "PHP")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCPHP", "ETHPHP"}, symbols)
}

func tradeJSON(id int64, ts int64, isBuyer bool) map[string]interface{} {
	return map[string]interface{}{
		"symbol":          "BTCPHP",
		"id":              id,
		"orderId":         id * 10,
		"price":           "3500000.5",
		"qty":             "0.0012",
		"quoteQty":        "4200.0006",
		"commission":      "0.0000012",
		"commissionAsset": "BTC",
		"time":            ts,
		"isBuyer":         isBuyer,
		"isMaker":         false,
	}
}

func TestClient_GetTrades_PaginatesByTradeID(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	var calls int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Equal(t, pathMyTrades, r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(apiKeyHeader))
		assert.NotEmpty(t, q.Get("signature"))
		assert.Equal(t, "BTCPHP", q.Get("symbol"))
		assert.Equal(t, "1000", q.Get("limit"))

		var page []map[string]interface{}
		switch n {
		case 1:
			assert.Equal(t, strconv.FormatInt(start.UnixMilli(), 10), q.Get("startTime"))
			assert.Empty(t, q.Get("fromId"))
			// Out of order within the page to exercise the final sort.
			for i := int64(tradesPageLimit); i >= 1; i-- {
				page = append(page, tradeJSON(i, start.UnixMilli()+i*1000, i%2 == 1))
			}
			// The page's last element carries the highest id.
			page[0], page[len(page)-1] = page[len(page)-1], page[0]
		case 2:
			assert.Equal(t, "1001", q.Get("fromId"))
			assert.Empty(t, q.Get("startTime"))
			page = append(page,
				tradeJSON(1001, start.UnixMilli()+1001*1000, false),
				tradeJSON(1002, end.Add(time.Minute).UnixMilli(), true),
			)
		default:
			t.Errorf("unexpected request %d", n)
		}
		assert.NoError(t, json.NewEncoder(w).Encode(page))
	})

	trades, err := c.GetTrades(context.Background(), "BTCPHP", ports.TradeQuery{StartTime: start, EndTime: end})
	require.NoError(t, err)
	require.Len(t, trades, 1001, "trades after the end time are dropped")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	first := trades[0]
	assert.EqualValues(t, 1, first.ID)
	assert.EqualValues(t, 10, first.OrderID)
	assert.Equal(t, domain.Buy, first.Side)
	assert.Equal(t, "3500000.5", first.Price.String())
	assert.Equal(t, "0.0012", first.Quantity.String())
	assert.Equal(t, "0.0000012", first.Commission.String())
	assert.Equal(t, "BTC", first.CommissionAsset)
	assert.Equal(t, time.UTC, first.Time.Location())
	for i := 1; i < len(trades); i++ {
		assert.False(t, trades[i].Time.Before(trades[i-1].Time), "trades must be time ordered")
	}
	assert.Equal(t, domain.Sell, trades[1000].Side)
}

func TestClient_GetTrades_WalksFullHistoryWithoutStartTime(t *testing.T) {
	const total = 1500
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	var calls int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Empty(t, q.Get("startTime"))

		// Like the exchange: without fromId only the newest fills are returned.
		from := int64(total - tradesPageLimit + 1)
		if v := q.Get("fromId"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			assert.NoError(t, err)
			from = max(id, 1)
		}
		page := []map[string]interface{}{}
		// Newest first, so the highest id is not the last element.
		for id := min(from+tradesPageLimit-1, total); id >= from; id-- {
			page = append(page, tradeJSON(id, base+id*1000, id%2 == 1))
		}
		assert.NoError(t, json.NewEncoder(w).Encode(page))
	})

	trades, err := c.GetTrades(context.Background(), "BTCPHP", ports.TradeQuery{})
	require.NoError(t, err)
	require.Len(t, trades, total, "no fill of the history is lost")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	for i, tr := range trades {
		assert.EqualValues(t, i+1, tr.ID)
	}
}

func TestClient_GetKlines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathKlines, r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Empty(t, r.Header.Get(apiKeyHeader), "klines are public")
		fmt.Fprint(w, `[
			[1704067200000,"100","110","95","105","12.5",1704153599999,"1300",40,"6","600"],
			[1704153600000,"105","120","104","118","8",1704239999999,"900",30,"4","450"]]`)
	})

	klines, err := c.GetKlines(context.Background(), "ETHPHP", "1d", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, 105.0, klines[0].Close)
	assert.Equal(t, 118.0, klines[1].Close)
	assert.Equal(t, 12.5, klines[0].Volume)
	assert.Equal(t, "ETHPHP", klines[1].Symbol)
	assert.Equal(t, time.UnixMilli(1704067200000).UTC(), klines[0].OpenTime)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"code":-1003,"msg":"Too many requests"}`, want: ports.ErrRateLimited},
		{name: "bad signature", status: http.StatusBadRequest, body: `{"code":-1022,"msg":"Signature invalid"}`, want: ports.ErrAuthenticationFailed},
		{name: "recv window", status: http.StatusBadRequest, body: `{"code":-1021,"msg":"Timestamp outside recvWindow"}`, want: ports.ErrTimeout},
		{name: "unknown symbol", status: http.StatusBadRequest, body: `{"code":-1121,"msg":"Invalid symbol"}`, want: ports.ErrNotFound},
		{name: "bad parameter", status: http.StatusBadRequest, body: `{"code":-1102,"msg":"Mandatory parameter"}`, want: ports.ErrInvalidRequest},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `unauthorized`, want: ports.ErrInvalidAPIKeys},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`, want: ports.ErrExchangeUnavailable},
		{name: "malformed body", status: http.StatusOK, body: `{"symbols":`, want: ports.ErrUnexpectedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.ListSymbols(context.Background(), "PHP")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_BreakerOpensOnRepeatedServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	var err error
	for i := 0; i < 7; i++ {
		err = c.Ping(context.Background())
		require.Error(t, err)
	}
	assert.EqualValues(t, 5, atomic.LoadInt32(&hits), "open breaker short-circuits requests")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1100,"msg":"Illegal characters"}`)
	})

	for i := 0; i < 7; i++ {
		assert.ErrorIs(t, c.Ping(context.Background()), ports.ErrInvalidRequest)
	}
	assert.EqualValues(t, 7, atomic.LoadInt32(&hits))
}
