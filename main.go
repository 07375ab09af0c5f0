package main

import (
	"context"
	"flag"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/adapters/sqlite"
	"cryptoLedger/internal/app"
	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/metrics"
	"cryptoLedger/internal/ports"
	"cryptoLedger/internal/utils"
)

var tradesFile = flag.String("trades-file", "", "Reconcile trades from this CSV instead of fetching them from the exchange")

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client, unless reconciling an exported history
	var exchange ports.ExchangeClient
	var trades []*domain.Trade
	if *tradesFile != "" {
		trades, err = utils.ReadTradesFromCSV(*tradesFile)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to read trades file", map[string]interface{}{"file": *tradesFile})
			log.Fatalf("FATAL: Failed to read trades file: %v", err)
		}
		appLogger.Info(ctx, "Trades loaded from file", map[string]interface{}{"file": *tradesFile, "trades": len(trades)})
	} else {
		if err := cfg.ValidateCredentials(); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		exchange, err = app.NewExchangeClient(cfg, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange client")
			log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
		}
		if err := exchange.Ping(ctx); err != nil {
			appLogger.Error(ctx, err, "FATAL: Exchange is not reachable", map[string]interface{}{"exchange": cfg.Exchange})
			log.Fatalf("FATAL: Exchange is not reachable: %v", err)
		}
		appLogger.Info(ctx, "Exchange client initialized", map[string]interface{}{"exchange": cfg.Exchange})
	}

	// 5. Initialize Application Service
	reconcileService, err := app.NewReconcileService(
		app.ServiceConfigFrom(cfg),
		appLogger,
		exchange,
		repo, // Pass the concrete implementation, service expects the interface
		metrics.New(),
	)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize reconcile service")
		log.Fatalf("FATAL: Failed to initialize reconcile service: %v", err)
	}

	// 6. Run the reconciliation
	var result *app.RunResult
	if *tradesFile != "" {
		result, err = reconcileService.RunFromTrades(ctx, trades)
	} else {
		result, err = reconcileService.Run(ctx)
	}
	if err != nil {
		appLogger.Error(ctx, err, "Reconciliation failed")
		log.Fatalf("FATAL: Reconciliation failed: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.", map[string]interface{}{
		"runID":          result.Run.ID,
		"positionsFile":  result.PositionsFile,
		"statisticsFile": result.StatisticsFile,
		"fetchFailures":  len(result.FetchFailures),
	})
}
