// Package metrics records reconciliation counters in a private Prometheus
// registry and exports them in the textfile format.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// Record error kinds.
const (
	KindInvalidTrade  = "invalid_trade"
	KindZeroQuantity  = "zero_quantity"
	KindZeroCostBasis = "zero_cost_basis"
	KindOther         = "other"
)

// Recorder holds the ledger metrics. The zero value is not usable; use New.
type Recorder struct {
	registry *prometheus.Registry

	TradesFetched *prometheus.CounterVec // by symbol
	FetchFailures *prometheus.CounterVec // by symbol
	Positions     *prometheus.CounterVec // by side
	RoundTrips    prometheus.Counter
	RecordErrors  *prometheus.CounterVec // by kind
	RunDuration   prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.TradesFetched = r.newCounterVec(prometheus.CounterOpts{
		Name: "ledger_trades_fetched_total",
		Help: "Executions retrieved from the exchange",
	}, []string{"symbol"})
	r.FetchFailures = r.newCounterVec(prometheus.CounterOpts{
		Name: "ledger_fetch_failures_total",
		Help: "Trade retrievals that failed and were treated as empty",
	}, []string{"symbol"})
	r.Positions = r.newCounterVec(prometheus.CounterOpts{
		Name: "ledger_positions_total",
		Help: "Positions emitted by the lot matcher",
	}, []string{"side"})
	r.RecordErrors = r.newCounterVec(prometheus.CounterOpts{
		Name: "ledger_record_errors_total",
		Help: "Records skipped because they could not be processed",
	}, []string{"kind"})

	r.RoundTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_round_trips_total",
		Help: "Trade statistics emitted",
	})
	r.RunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_run_duration_seconds",
		Help: "Wall time of the last reconciliation run",
	})
	r.registry.MustRegister(r.RoundTrips, r.RunDuration)

	return r
}

func (r *Recorder) newCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	r.registry.MustRegister(cv)
	return cv
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveTrades counts the executions fetched for symbol.
func (r *Recorder) ObserveTrades(symbol string, n int) {
	r.TradesFetched.WithLabelValues(symbol).Add(float64(n))
}

// ObserveFetchFailure counts a failed trade retrieval.
func (r *Recorder) ObserveFetchFailure(symbol string) {
	r.FetchFailures.WithLabelValues(symbol).Inc()
}

// ObservePositions counts positions by side.
func (r *Recorder) ObservePositions(positions []domain.Position) {
	for _, p := range positions {
		r.Positions.WithLabelValues(string(p.Side)).Inc()
	}
}

// ObserveStatistics counts round trips.
func (r *Recorder) ObserveStatistics(stats []domain.TradeStatistic) {
	r.RoundTrips.Add(float64(len(stats)))
}

// ObserveRecordErrors counts each error of errs by kind.
func (r *Recorder) ObserveRecordErrors(errs []error) {
	for _, err := range errs {
		r.RecordErrors.WithLabelValues(ErrorKind(err)).Inc()
	}
}

// ObserveRunDuration sets the run duration gauge.
func (r *Recorder) ObserveRunDuration(d time.Duration) {
	r.RunDuration.Set(d.Seconds())
}

// WriteTextfile writes all metrics to path in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// ErrorKind classifies a record error for the kind label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ports.ErrInvalidTrade):
		return KindInvalidTrade
	case errors.Is(err, ports.ErrZeroQuantity):
		return KindZeroQuantity
	case errors.Is(err, ports.ErrZeroCostBasis):
		return KindZeroCostBasis
	default:
		return KindOther
	}
}
