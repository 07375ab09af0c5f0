package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLedger/internal/domain"
)

// TimeLayout is RFC3339 with millisecond precision; times are written in UTC.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	positionsHeader  = []string{"date", "symbol", "side", "average_price", "quantity", "total_price", "commission_quote"}
	statisticsHeader = []string{"date_bought", "date_sold", "symbol", "quantity", "avg_price_bought", "avg_price_sold",
		"total_bought", "total_sold", "gain_loss_absolute", "gain_loss_percent"}
	tradesHeader = []string{"id", "order_id", "time", "symbol", "side", "price", "quantity", "commission", "commission_asset"}
)

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// writeFile creates filename (and its directory) and hands it to write.
func writeFile(filename string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WritePositions writes positions as CSV to w.
func WritePositions(w io.Writer, positions []domain.Position) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(positionsHeader); err != nil {
		return err
	}
	for _, p := range positions {
		if err := writer.Write([]string{
			formatTime(p.Date),
			p.Symbol,
			string(p.Side),
			p.AveragePrice.String(),
			p.Quantity.String(),
			p.TotalPrice.String(),
			p.CommissionQuote.String(),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WritePositionsToCSV writes positions to filename.
func WritePositionsToCSV(positions []domain.Position, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WritePositions(w, positions) })
}

// ReadPositions parses positions written by WritePositions.
func ReadPositions(r io.Reader) ([]domain.Position, error) {
	rows, err := readRows(r, positionsHeader)
	if err != nil {
		return nil, err
	}
	positions := make([]domain.Position, 0, len(rows))
	for i, row := range rows {
		var pos domain.Position
		p := rowParser{row: row}
		pos.Date = p.parseTime(0)
		pos.Symbol = row[1]
		pos.Side = p.parseSide(2)
		pos.AveragePrice = p.parseDecimal(3)
		pos.Quantity = p.parseDecimal(4)
		pos.TotalPrice = p.parseDecimal(5)
		pos.CommissionQuote = p.parseDecimal(6)
		if p.err != nil {
			return nil, fmt.Errorf("positions row %d: %w", i+2, p.err)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// ReadPositionsFromCSV reads positions from filename.
func ReadPositionsFromCSV(filename string) ([]domain.Position, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadPositions(file)
}

// WriteStatistics writes trade statistics as CSV to w.
func WriteStatistics(w io.Writer, stats []domain.TradeStatistic) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(statisticsHeader); err != nil {
		return err
	}
	for _, s := range stats {
		if err := writer.Write([]string{
			formatTime(s.DateBought),
			formatTime(s.DateSold),
			s.Symbol,
			s.Quantity.String(),
			s.AvgPriceBought.String(),
			s.AvgPriceSold.String(),
			s.TotalBought.String(),
			s.TotalSold.String(),
			s.GainLossAbsolute.String(),
			s.GainLossPercent.String(),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteStatisticsToCSV writes trade statistics to filename.
func WriteStatisticsToCSV(stats []domain.TradeStatistic, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteStatistics(w, stats) })
}

// ReadStatistics parses trade statistics written by WriteStatistics.
func ReadStatistics(r io.Reader) ([]domain.TradeStatistic, error) {
	rows, err := readRows(r, statisticsHeader)
	if err != nil {
		return nil, err
	}
	stats := make([]domain.TradeStatistic, 0, len(rows))
	for i, row := range rows {
		var s domain.TradeStatistic
		p := rowParser{row: row}
		s.DateBought = p.parseTime(0)
		s.DateSold = p.parseTime(1)
		s.Symbol = row[2]
		s.Quantity = p.parseDecimal(3)
		s.AvgPriceBought = p.parseDecimal(4)
		s.AvgPriceSold = p.parseDecimal(5)
		s.TotalBought = p.parseDecimal(6)
		s.TotalSold = p.parseDecimal(7)
		s.GainLossAbsolute = p.parseDecimal(8)
		s.GainLossPercent = p.parseDecimal(9)
		if p.err != nil {
			return nil, fmt.Errorf("statistics row %d: %w", i+2, p.err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// ReadStatisticsFromCSV reads trade statistics from filename.
func ReadStatisticsFromCSV(filename string) ([]domain.TradeStatistic, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadStatistics(file)
}

// WriteTrades writes executions as CSV to w.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tradesHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.OrderID, 10),
			formatTime(t.Time),
			t.Symbol,
			string(t.Side),
			t.Price.String(),
			t.Quantity.String(),
			t.Commission.String(),
			t.CommissionAsset,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTradesToCSV writes executions to filename.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteTrades(w, trades) })
}

// ReadTrades parses executions written by WriteTrades.
func ReadTrades(r io.Reader) ([]*domain.Trade, error) {
	rows, err := readRows(r, tradesHeader)
	if err != nil {
		return nil, err
	}
	trades := make([]*domain.Trade, 0, len(rows))
	for i, row := range rows {
		p := rowParser{row: row}
		t := &domain.Trade{
			ID:              p.parseInt(0),
			OrderID:         p.parseInt(1),
			Time:            p.parseTime(2),
			Symbol:          row[3],
			Side:            p.parseSide(4),
			Price:           p.parseDecimal(5),
			Quantity:        p.parseDecimal(6),
			Commission:      p.parseDecimal(7),
			CommissionAsset: row[8],
		}
		if p.err != nil {
			return nil, fmt.Errorf("trades row %d: %w", i+2, p.err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// ReadTradesFromCSV reads executions from filename.
func ReadTradesFromCSV(filename string) ([]*domain.Trade, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadTrades(file)
}

// WriteRowsToCSV writes a header and pre-formatted rows to filename.
func WriteRowsToCSV(header []string, rows [][]string, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(header); err != nil {
			return err
		}
		if err := writer.WriteAll(rows); err != nil {
			return err
		}
		return writer.Error()
	})
}

// readRows reads all records and checks the header.
func readRows(r io.Reader, header []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	for i, name := range header {
		if records[0][i] != name {
			return nil, fmt.Errorf("unexpected column %q at position %d, want %q", records[0][i], i+1, name)
		}
	}
	return records[1:], nil
}

// rowParser keeps the first parse error of a row.
type rowParser struct {
	row []string
	err error
}

func (p *rowParser) parseDecimal(i int) decimal.Decimal {
	d, err := decimal.NewFromString(p.row[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return d
}

func (p *rowParser) parseInt(i int) int64 {
	v, err := strconv.ParseInt(p.row[i], 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return v
}

func (p *rowParser) parseTime(i int) time.Time {
	t, err := time.Parse(time.RFC3339Nano, p.row[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return t.UTC()
}

func (p *rowParser) parseSide(i int) domain.Side {
	s, err := domain.ParseSide(p.row[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return s
}
