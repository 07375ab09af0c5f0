package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cryptoLedger/config"
	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/adapters/sqlite"
	"cryptoLedger/internal/analytics"
	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ledger"
	"cryptoLedger/internal/utils"
)

var (
	statsFile     = flag.String("stats-file", "", "Analyze this trade statistics CSV instead of the latest stored run")
	positionsFile = flag.String("positions-file", "", "Rebuild statistics from these comma-separated positions CSVs")
)

func main() {
	flag.Parse()

	stats, source, err := loadStatistics()
	if err != nil {
		log.Fatalf("Error loading trade statistics: %v", err)
	}
	if len(stats) == 0 {
		log.Println("No trade statistics found. Run the reconciliation first.")
		return
	}

	fmt.Printf("Source: %s\n\n", source)
	printSummary(os.Stdout, analytics.Summarize(stats))
}

// statisticsFromPositions merges position exports and pairs them again.
// Records that cannot be paired are returned separately.
func statisticsFromPositions(files []string) ([]domain.TradeStatistic, []error, error) {
	var positions []domain.Position
	for _, f := range files {
		p, err := utils.ReadPositionsFromCSV(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", f, err)
		}
		positions = append(positions, p...)
	}
	stats, err := ledger.BuildStatistics(positions)
	return stats, ledger.RecordErrors(err), nil
}

// loadStatistics reads the statistics CSV or the positions CSVs given on the
// command line, or the statistics of the latest run stored in the database.
func loadStatistics() ([]domain.TradeStatistic, string, error) {
	if *positionsFile != "" {
		files := strings.Split(*positionsFile, ",")
		stats, skipped, err := statisticsFromPositions(files)
		for _, e := range skipped {
			log.Printf("Skipped record: %v", e)
		}
		return stats, "positions " + strings.Join(files, ", "), err
	}
	if *statsFile != "" {
		stats, err := utils.ReadStatisticsFromCSV(*statsFile)
		return stats, *statsFile, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, "", err
	}
	appLogger := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return nil, "", err
	}
	defer repo.Close()

	ctx := context.Background()
	run, err := repo.FindLatestRun(ctx)
	if err != nil || run == nil {
		return nil, "", err
	}
	stats, err := repo.FindStatisticsByRun(ctx, run.ID)
	return stats, fmt.Sprintf("run %s started %s", run.ID, run.StartedAt.Format(utils.TimeLayout)), err
}

func printSummary(out io.Writer, s *analytics.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Symbol\tTrips\tWinRate\tBought\tSold\tNet\tNet%\tAvg%\t")
	for _, b := range s.BySymbol {
		printBreakdown(w, b)
	}
	printBreakdown(w, s.Overall)
	w.Flush()

	fmt.Fprintln(out, "\n## Realized Result By Month")
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Month\tNet\t")
	for _, m := range s.Monthly {
		fmt.Fprintf(w, "%s\t%s\t\n", m.Month.Format("2006-01"), m.NetGainLoss.StringFixed(2))
	}
	w.Flush()

	fmt.Fprintln(out, "\n## Risk")
	fmt.Fprintf(out, "Max drawdown: %s\n", s.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(out, "Max consecutive wins: %d, losses: %d\n", s.MaxConsecutiveWins, s.MaxConsecutiveLosses)
	fmt.Fprintf(out, "Average hold time: %s\n", s.AverageHoldTime.Round(time.Second))
	if s.Best != nil {
		fmt.Fprintf(out, "Best trip: %s sold %s, %s%%\n", s.Best.Symbol, s.Best.DateSold.Format("2006-01-02"), s.Best.GainLossPercent.StringFixed(2))
	}
	if s.Worst != nil {
		fmt.Fprintf(out, "Worst trip: %s sold %s, %s%%\n", s.Worst.Symbol, s.Worst.DateSold.Format("2006-01-02"), s.Worst.GainLossPercent.StringFixed(2))
	}
}

func printBreakdown(w io.Writer, b analytics.Breakdown) {
	symbol := b.Symbol
	if symbol == "" {
		symbol = "TOTAL"
	}
	fmt.Fprintf(w, "%s\t%d\t%.2f\t%s\t%s\t%s\t%s\t%s\t\n",
		symbol,
		b.RoundTrips,
		b.WinRate*100,
		b.TotalBought.StringFixed(2),
		b.TotalSold.StringFixed(2),
		b.NetGainLoss.StringFixed(2),
		b.NetGainLossPercent.StringFixed(2),
		b.AvgGainLossPercent.StringFixed(2),
	)
}
