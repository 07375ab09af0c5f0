package app

import (
	"fmt"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/binanceclient"
	"cryptoLedger/internal/adapters/coinsph"
	"cryptoLedger/internal/ports"
)

// NewExchangeClient builds the exchange adapter selected by cfg.Exchange.
func NewExchangeClient(cfg *config.Config, logger ports.Logger) (ports.ExchangeClient, error) {
	switch cfg.Exchange {
	case config.ExchangeCoinsPH:
		client, err := coinsph.New(coinsph.Config{
			APIKey:            cfg.APIKey,
			SecretKey:         cfg.SecretKey,
			BaseURL:           cfg.BaseURL,
			RecvWindow:        cfg.RecvWindow,
			Timeout:           cfg.HTTPTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ExchangeBinance:
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:    cfg.APIKey,
			SecretKey: cfg.SecretKey,
			BaseURL:   cfg.BaseURL,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported exchange %q: %w", cfg.Exchange, ports.ErrConfigurationError)
}
