package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/app"
	"cryptoLedger/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if err := cfg.ValidateCredentials(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// 3. Initialize Exchange Client
	exchange, err := app.NewExchangeClient(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}

	svc, err := app.NewReconcileService(app.ServiceConfigFrom(cfg), appLogger, exchange, nil, nil)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize reconcile service: %v", err)
	}

	fmt.Printf("Fetching %s trades from %s...\n", cfg.QuoteAsset, cfg.Exchange)
	symbols, trades, failures, err := svc.FetchTrades(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching trades")
		log.Fatalf("Error fetching trades: %v", err)
	}
	appLogger.Info(ctx, "Fetched trades", map[string]interface{}{
		"symbols":  len(symbols),
		"trades":   len(trades),
		"failures": len(failures),
	})

	filename := filepath.Join(cfg.OutputDir, fmt.Sprintf("trades_%s_%s.csv", cfg.Exchange, time.Now().UTC().Format("20060102T150405Z")))
	if err := utils.WriteTradesToCSV(trades, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
