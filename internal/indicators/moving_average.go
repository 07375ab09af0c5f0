package indicators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cryptoLedger/internal/domain"
)

// ErrInsufficientData is returned when fewer klines than the period are available.
var ErrInsufficientData = errors.New("not enough data points")

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// ParseMovingAverageType maps "SMA" or "EMA", in any case, to its type.
func ParseMovingAverageType(s string) (MovingAverageType, error) {
	switch t := MovingAverageType(strings.ToUpper(strings.TrimSpace(s))); t {
	case SimpleMovingAverage, ExponentialMovingAverage:
		return t, nil
	}
	return "", fmt.Errorf("unknown moving average type %q", s)
}

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the type and period, e.g. "SMA50".
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s%d", m.config.Type, m.Config.Period)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if m.Config.Period <= 0 {
		return 0, fmt.Errorf("invalid period %d for %s", m.Config.Period, m.config.Type)
	}
	closes := closePrices(klines)
	switch m.config.Type {
	case SimpleMovingAverage:
		return m.calculateSMA(closes)
	case ExponentialMovingAverage:
		return m.calculateEMA(closes)
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

func closePrices(klines []*domain.Kline) []float64 {
	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		if k != nil {
			closes = append(closes, k.Close)
		}
	}
	return closes
}

// calculateSMA averages the last period closes.
func (m *MovingAverage) calculateSMA(closes []float64) (float64, error) {
	if len(closes) < m.Config.Period {
		return 0, fmt.Errorf("%w: have %d, SMA needs %d", ErrInsufficientData, len(closes), m.Config.Period)
	}

	total := 0.0
	for _, c := range closes[len(closes)-m.Config.Period:] {
		total += c
	}
	return total / float64(m.Config.Period), nil
}

// calculateEMA seeds with the SMA of the first period closes and smooths the rest.
func (m *MovingAverage) calculateEMA(closes []float64) (float64, error) {
	if len(closes) < m.Config.Period {
		return 0, fmt.Errorf("%w: have %d, EMA needs %d", ErrInsufficientData, len(closes), m.Config.Period)
	}

	multiplier := 2.0 / float64(m.Config.Period+1)
	ema, err := m.calculateSMA(closes[:m.Config.Period])
	if err != nil {
		return 0, fmt.Errorf("failed to calculate initial SMA for EMA: %w", err)
	}
	for _, c := range closes[m.Config.Period:] {
		ema = (c-ema)*multiplier + ema
	}
	return ema, nil
}
