package database

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/orb/performance"
	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// csvStore names the csv backed store in persistence errors.
	csvStore = "csv"
	// priceDecimals is the number of decimals prices and amounts are written with.
	priceDecimals = 4
)

var (
	tradeHeader = []string{"id", "symbol", "day", "direction", "entry_date", "entry_price",
		"exit_date", "exit_price", "average_exit_price", "size", "initial_stop", "initial_risk",
		"pnl", "r_multiple", "commission", "exit_reason", "partial_exits"}
	equityHeader  = []string{"date", "equity", "realized", "unrealized", "open_size"}
	summaryHeader = []string{"symbol", "total_trades", "wins", "losses", "win_rate", "net_pnl",
		"profit_factor", "profit_factor_unbounded", "average_r", "sharpe", "max_drawdown",
		"max_drawdown_amount", "total_return", "final_equity"}
)

// Compile-time interface checks.
var _ TradeStorer = (*CSVStore)(nil)

// CSVStore implements TradeStorer by writing csv files under <Dir>/<run id>/.
type CSVStore struct {
	dir    string
	logger *zerolog.Logger
}

// NewCSVStore initializes a new csv store rooted at the provided directory.
func NewCSVStore(dir string, logger *zerolog.Logger) (*CSVStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("csv store directory cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("csv store logger cannot be nil")
	}

	return &CSVStore{dir: dir, logger: logger}, nil
}

// formatDecimal formats the provided value with the provided number of decimals.
func formatDecimal(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// formatTime formats the provided time in the bar date layout.
func formatTime(t time.Time) string {
	return t.Format(shared.DateLayout)
}

// path returns the csv file path of the provided run, symbol and kind.
func (s *CSVStore) path(runID string, symbol string, kind string) string {
	return filepath.Join(s.dir, runID, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), kind))
}

// write writes the provided header and rows to the csv file at the provided path.
func (s *CSVStore) write(path string, header []string, rows [][]string) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return &shared.PersistenceError{Store: csvStore, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return &shared.PersistenceError{Store: csvStore, Err: err}
	}

	w := csv.NewWriter(f)
	err = w.Write(header)
	if err == nil {
		err = w.WriteAll(rows)
	}

	closeErr := f.Close()
	if err != nil {
		return &shared.PersistenceError{Store: csvStore, Err: fmt.Errorf("writing %s: %w", path, err)}
	}
	if closeErr != nil {
		return &shared.PersistenceError{Store: csvStore, Err: fmt.Errorf("closing %s: %w", path, closeErr)}
	}

	return nil
}

// checkContext returns a persistence error when the provided context is done.
func checkContext(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		return &shared.PersistenceError{Store: csvStore, Err: err}
	}

	return nil
}

// PersistTrades stores the provided closed trades of a symbol.
func (s *CSVStore) PersistTrades(ctx context.Context, runID string, symbol string, trades []shared.TradeRecord) error {
	err := checkContext(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(trades))
	for idx := range trades {
		t := &trades[idx]
		rows = append(rows, []string{
			t.ID, t.Symbol, t.Day, t.Direction.String(),
			formatTime(t.EntryDate), formatDecimal(t.EntryPrice, priceDecimals),
			formatTime(t.ExitDate), formatDecimal(t.ExitPrice, priceDecimals),
			formatDecimal(t.AverageExitPrice, priceDecimals), strconv.FormatInt(t.Size, 10),
			formatDecimal(t.InitialStop, priceDecimals), formatDecimal(t.InitialRisk, 2),
			formatDecimal(t.PnL, 2), formatDecimal(t.RMultiple, 2), formatDecimal(t.Commission, 2),
			t.ExitReason.String(), strconv.Itoa(t.PartialExits),
		})
	}

	path := s.path(runID, symbol, "trades")
	err = s.write(path, tradeHeader, rows)
	if err != nil {
		return err
	}

	s.logger.Debug().Msgf("wrote %d %s trades to %s", len(trades), symbol, path)

	return nil
}

// PersistEquity stores the provided equity curve of a symbol.
func (s *CSVStore) PersistEquity(ctx context.Context, runID string, symbol string, equity []shared.EquityPoint) error {
	err := checkContext(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(equity))
	for idx := range equity {
		p := &equity[idx]
		rows = append(rows, []string{
			formatTime(p.Date), formatDecimal(p.Equity, 2), formatDecimal(p.Realized, 2),
			formatDecimal(p.Unrealized, 2), strconv.FormatInt(p.OpenSize, 10),
		})
	}

	return s.write(s.path(runID, symbol, "equity"), equityHeader, rows)
}

// PersistSummary stores the provided performance report of a symbol.
func (s *CSVStore) PersistSummary(ctx context.Context, runID string, symbol string, report performance.Report) error {
	err := checkContext(ctx)
	if err != nil {
		return err
	}

	row := []string{
		symbol, strconv.Itoa(report.TotalTrades), strconv.Itoa(report.Wins), strconv.Itoa(report.Losses),
		formatDecimal(report.WinRate, priceDecimals), formatDecimal(report.NetPnL, 2),
		formatDecimal(report.ProfitFactor, priceDecimals), strconv.FormatBool(report.ProfitFactorUnbounded),
		formatDecimal(report.AverageR, priceDecimals), formatDecimal(report.Sharpe, priceDecimals),
		formatDecimal(report.MaxDrawdown, priceDecimals), formatDecimal(report.MaxDrawdownAmount, 2),
		formatDecimal(report.TotalReturn, priceDecimals), formatDecimal(report.FinalEquity, 2),
	}

	return s.write(s.path(runID, symbol, "summary"), summaryHeader, [][]string{row})
}

// Close is a no-op, every file is closed once written.
func (s *CSVStore) Close() error {
	return nil
}
