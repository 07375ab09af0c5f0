package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ObserveTrades("BTCPHP", 10)
	r.ObserveTrades("BTCPHP", 5)
	r.ObserveFetchFailure("ETHPHP")
	r.ObservePositions([]domain.Position{{Side: domain.Buy}, {Side: domain.Sell}, {Side: domain.Buy}})
	r.ObserveStatistics(make([]domain.TradeStatistic, 3))
	r.ObserveRecordErrors([]error{
		fmt.Errorf("wrapped: %w", ports.ErrInvalidTrade),
		ports.ErrZeroCostBasis,
		errors.New("something else"),
	})
	r.ObserveRunDuration(1500 * time.Millisecond)

	assert.Equal(t, 15.0, testutil.ToFloat64(r.TradesFetched.WithLabelValues("BTCPHP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchFailures.WithLabelValues("ETHPHP")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Positions.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Positions.WithLabelValues("SELL")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.RoundTrips))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RecordErrors.WithLabelValues(KindInvalidTrade)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RecordErrors.WithLabelValues(KindZeroCostBasis)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RecordErrors.WithLabelValues(KindOther)))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.RunDuration))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveTrades("BTCPHP", 2)

	path := filepath.Join(t.TempDir(), "ledger.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `ledger_trades_fetched_total{symbol="BTCPHP"} 2`), string(data))
	assert.Contains(t, string(data), "ledger_run_duration_seconds 0")
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindZeroQuantity, ErrorKind(fmt.Errorf("merge: %w", ports.ErrZeroQuantity)))
	assert.Equal(t, KindOther, ErrorKind(nil))
}
