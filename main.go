package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dnldd/orb/backtest"
	"github.com/dnldd/orb/database"
	"github.com/dnldd/orb/fetch"
	"github.com/dnldd/orb/service"
	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// newStore creates the configured result store. No store is created for none.
func newStore(ctx context.Context, cfg *Config, logger *zerolog.Logger) (database.TradeStorer, error) {
	switch cfg.Store {
	case csvStore:
		return database.NewCSVStore(cfg.OutputDir, logger)
	case sqliteStore:
		return database.NewSQLiteStore(ctx, cfg.SQLitePath, logger)
	case rqliteStore:
		return database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   logger,
		})
	case noStore:
		return nil, nil
	default:
		return nil, &shared.ConfigurationError{Field: "store", Reason: fmt.Sprintf("unknown store %q", cfg.Store)}
	}
}

func run(ctx context.Context, cfg *Config, logger *zerolog.Logger) error {
	strategy, err := shared.LoadStrategyConfig(cfg.StrategyFile)
	if err != nil {
		return fmt.Errorf("loading strategy config: %w", err)
	}

	provider, err := fetch.NewProvider(cfg.DataFormat, cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("creating bar provider: %w", err)
	}

	var grid *backtest.Grid
	if cfg.GridFile != "" {
		g, err := backtest.LoadGrid(cfg.GridFile)
		if err != nil {
			return fmt.Errorf("loading parameter grid: %w", err)
		}
		grid = &g
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating %s store: %w", cfg.Store, err)
	}
	if store != nil {
		defer store.Close()
	}

	batch, err := service.NewBatch(&service.BatchConfig{
		Symbols:     cfg.Symbols,
		Provider:    provider,
		Store:       store,
		Strategy:    strategy,
		MaxWorkers:  cfg.MaxWorkers,
		Schedule:    cfg.Schedule,
		WalkForward: cfg.WalkForward,
		TrainDays:   cfg.TrainDays,
		TestDays:    cfg.TestDays,
		Grid:        grid,
		MinTrades:   cfg.MinTrades,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating batch service: %w", err)
	}

	if cfg.Schedule != "" {
		return batch.Schedule(ctx)
	}

	result, err := batch.Run(ctx)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d symbols failed", result.Failed, result.Processed)
	}

	return nil
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Err(err).Msg("loading config")
		os.Exit(1)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)
	logger := log.With().Str("app", "orb").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleTermination(ctx, cancel)

	err = run(ctx, &cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("orb backtest")
		cancel()
		os.Exit(1)
	}
}
