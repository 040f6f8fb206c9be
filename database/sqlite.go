package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dnldd/orb/performance"
	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const (
	// sqliteStore names the sqlite backed store in persistence errors.
	sqliteStore = "sqlite"
)

// Compile-time interface checks.
var _ TradeStorer = (*SQLiteStore)(nil)

// SQLiteStore implements TradeStorer backed by a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and creates the
// result tables.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *zerolog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("sqlite store logger cannot be nil")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", dbPath, err)
	}

	// A single connection serialises writers from concurrent symbol runs.
	db.SetMaxOpenConns(1)

	for _, stmt := range tableStatements() {
		_, err = db.ExecContext(ctx, stmt)
		if err != nil {
			db.Close()
			return nil, &shared.PersistenceError{Store: sqliteStore, Err: fmt.Errorf("creating tables: %w", err)}
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// persist executes the provided statement once per parameter set in a single transaction.
func (s *SQLiteStore) persist(ctx context.Context, op string, query string, params [][]any) error {
	if len(params) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &shared.PersistenceError{Store: sqliteStore, Err: fmt.Errorf("%s: %w", op, err)}
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return &shared.PersistenceError{Store: sqliteStore, Err: fmt.Errorf("%s: %w", op, err)}
	}
	defer stmt.Close()

	for idx := range params {
		_, err = stmt.ExecContext(ctx, params[idx]...)
		if err != nil {
			tx.Rollback()
			return &shared.PersistenceError{Store: sqliteStore, Err: fmt.Errorf("%s: row %d: %w", op, idx, err)}
		}
	}

	err = tx.Commit()
	if err != nil {
		return &shared.PersistenceError{Store: sqliteStore, Err: fmt.Errorf("%s: %w", op, err)}
	}

	return nil
}

// PersistTrades stores the provided closed trades of a symbol.
func (s *SQLiteStore) PersistTrades(ctx context.Context, runID string, symbol string, trades []shared.TradeRecord) error {
	params := make([][]any, 0, len(trades))
	for idx := range trades {
		params = append(params, tradeParams(runID, &trades[idx]))
	}

	err := s.persist(ctx, fmt.Sprintf("persisting %s trades", symbol), persistTradeSQL, params)
	if err != nil {
		return err
	}

	s.logger.Debug().Msgf("persisted %d %s trades for run %s", len(trades), symbol, runID)

	return nil
}

// PersistEquity stores the provided equity curve of a symbol.
func (s *SQLiteStore) PersistEquity(ctx context.Context, runID string, symbol string, equity []shared.EquityPoint) error {
	params := make([][]any, 0, len(equity))
	for idx := range equity {
		params = append(params, equityParams(runID, symbol, &equity[idx]))
	}

	return s.persist(ctx, fmt.Sprintf("persisting %s equity", symbol), persistEquitySQL, params)
}

// PersistSummary stores the provided performance report of a symbol.
func (s *SQLiteStore) PersistSummary(ctx context.Context, runID string, symbol string, report performance.Report) error {
	now, _, err := shared.NewYorkTime()
	if err != nil {
		return err
	}

	return s.persist(ctx, fmt.Sprintf("persisting %s summary", symbol), persistSummarySQL,
		[][]any{summaryParams(runID, symbol, &report, now.Unix())})
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
