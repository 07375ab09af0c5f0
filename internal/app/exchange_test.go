package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/binanceclient"
	"cryptoLedger/internal/adapters/coinsph"
	"cryptoLedger/internal/ports"
)

func TestNewExchangeClient(t *testing.T) {
	logger := &mockLogger{}

	client, err := NewExchangeClient(&config.Config{Exchange: config.ExchangeCoinsPH, BaseURL: "http://localhost"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &coinsph.Client{}, client)

	client, err = NewExchangeClient(&config.Config{Exchange: config.ExchangeBinance, BaseURL: "http://localhost"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &binanceclient.Client{}, client)

	_, err = NewExchangeClient(&config.Config{Exchange: "kraken"}, logger)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
