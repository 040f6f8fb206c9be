package database

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dnldd/orb/performance"
	"github.com/dnldd/orb/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// rqliteStore names the rqlite backed store in persistence errors.
	rqliteStore = "rqlite"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("database endpoint cannot be empty")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("database logger cannot be nil")
	}

	return nil
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the TradeStorer interface.
var _ TradeStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a single transaction.
func (db *Database) execute(ctx context.Context, op string, stmts rqlitehttp.SQLStatements) error {
	if len(stmts) == 0 {
		return nil
	}

	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return &shared.PersistenceError{Store: rqliteStore, Err: fmt.Errorf("%s: %w", op, err)}
	}

	has, idx, errStr := resp.HasError()
	if has {
		return &shared.PersistenceError{
			Store: rqliteStore,
			Err:   fmt.Errorf("%s: statement %d -> %s", op, idx, errStr),
		}
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	tables := tableStatements()
	stmts := make(rqlitehttp.SQLStatements, 0, len(tables))
	for _, sql := range tables {
		stmts = append(stmts, rqlitehttp.SQLStatements{{SQL: sql}}...)
	}

	return db.execute(ctx, "creating tables", stmts)
}

// PersistTrades stores the provided closed trades of a symbol.
func (db *Database) PersistTrades(ctx context.Context, runID string, symbol string, trades []shared.TradeRecord) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(trades))
	for idx := range trades {
		stmts = append(stmts, rqlitehttp.SQLStatements{{
			SQL:              persistTradeSQL,
			PositionalParams: tradeParams(runID, &trades[idx]),
		}}...)
	}

	err := db.execute(ctx, fmt.Sprintf("persisting %s trades", symbol), stmts)
	if err != nil {
		return err
	}

	db.cfg.Logger.Debug().Msgf("persisted %d %s trades for run %s", len(trades), symbol, runID)

	return nil
}

// PersistEquity stores the provided equity curve of a symbol.
func (db *Database) PersistEquity(ctx context.Context, runID string, symbol string, equity []shared.EquityPoint) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(equity))
	for idx := range equity {
		stmts = append(stmts, rqlitehttp.SQLStatements{{
			SQL:              persistEquitySQL,
			PositionalParams: equityParams(runID, symbol, &equity[idx]),
		}}...)
	}

	return db.execute(ctx, fmt.Sprintf("persisting %s equity", symbol), stmts)
}

// PersistSummary stores the provided performance report of a symbol.
func (db *Database) PersistSummary(ctx context.Context, runID string, symbol string, report performance.Report) error {
	now, _, err := shared.NewYorkTime()
	if err != nil {
		return err
	}

	return db.execute(ctx, fmt.Sprintf("persisting %s summary", symbol), rqlitehttp.SQLStatements{
		{
			SQL:              persistSummarySQL,
			PositionalParams: summaryParams(runID, symbol, &report, now.Unix()),
		},
	})
}

// Close releases the database connection.
func (db *Database) Close() error {
	return nil
}
