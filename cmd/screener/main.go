package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/app"
	"cryptoLedger/internal/screener"
	"cryptoLedger/internal/utils"
)

var resultsHeader = []string{"symbol", "last_close", "ma_long", "ma_mid", "ma_short"}

// resultRows formats screener results for the CSV export.
func resultRows(results []screener.Result) [][]string {
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Symbol, format(r.LastClose), format(r.MALong), format(r.MAMid), format(r.MAShort)})
	}
	return rows
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// 3. Initialize Exchange Client; klines are public, no credentials needed
	exchange, err := app.NewExchangeClient(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}

	screenerCfg := screener.DefaultConfig(cfg.QuoteAsset)
	screenerCfg.Interval = cfg.ScreenerInterval
	screenerCfg.Limit = cfg.ScreenerLimit
	screenerCfg.Workers = cfg.MaxConcurrency
	screenerCfg.Average = cfg.ScreenerAverage
	s, err := screener.New(screenerCfg, exchange, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize screener")
		log.Fatalf("FATAL: Failed to initialize screener: %v", err)
	}

	fmt.Printf("Screening %s symbols on %s klines with %s...\n", cfg.QuoteAsset, cfg.ScreenerInterval, screenerCfg.Average)
	results, err := s.Run(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error running screener")
		log.Fatalf("Error running screener: %v", err)
	}

	for _, r := range results {
		fmt.Printf("%-12s close=%.8g %s%d=%.8g %s%d=%.8g %s%d=%.8g\n",
			r.Symbol, r.LastClose,
			screenerCfg.Average, screenerCfg.LongPeriod, r.MALong,
			screenerCfg.Average, screenerCfg.MidPeriod, r.MAMid,
			screenerCfg.Average, screenerCfg.ShortPeriod, r.MAShort)
	}

	filename := filepath.Join(cfg.OutputDir, fmt.Sprintf("screener_%s_%s.csv", cfg.ScreenerInterval, time.Now().UTC().Format("20060102")))
	if err := utils.WriteRowsToCSV(resultsHeader, resultRows(results), filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename, "passed": len(results)})
}
