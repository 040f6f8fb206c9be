package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dnldd/orb/backtest"
	"github.com/dnldd/orb/database"
	"github.com/dnldd/orb/performance"
	"github.com/dnldd/orb/shared"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	perrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// defaultMaxWorkers is the number of symbols backtested concurrently when unset.
	defaultMaxWorkers = 4
)

// BatchConfig represents the configuration of the batch backtest service.
type BatchConfig struct {
	// Symbols are the symbols to backtest.
	Symbols []string
	// Provider serves the historic bars of every symbol.
	Provider shared.BarProvider
	// Store persists the results. Results are not persisted when nil.
	Store database.TradeStorer
	// Strategy is the strategy configuration.
	Strategy shared.StrategyConfig
	// MaxWorkers bounds the number of symbols backtested concurrently.
	MaxWorkers int
	// Schedule is an optional cron expression for recurring runs.
	Schedule string
	// WalkForward runs rolling out of sample windows instead of a single backtest.
	WalkForward bool
	// TrainDays and TestDays size the walk-forward windows.
	TrainDays int
	TestDays  int
	// Grid optionally searches strategy parameters per symbol, keeping the best combination.
	Grid *backtest.Grid
	// MinTrades is the number of trades a grid combination needs to be ranked.
	MinTrades int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *BatchConfig) Validate() error {
	var errs error

	if len(cfg.Symbols) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no symbols provided for batch service"))
	}
	if cfg.Provider == nil {
		errs = errors.Join(errs, fmt.Errorf("bar provider cannot be nil"))
	}
	if cfg.MaxWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("max workers cannot be negative, got %d", cfg.MaxWorkers))
	}
	if cfg.WalkForward && (cfg.TrainDays <= 0 || cfg.TestDays <= 0) {
		errs = errors.Join(errs, fmt.Errorf("walk-forward train and test days must be positive, got %d and %d",
			cfg.TrainDays, cfg.TestDays))
	}
	if cfg.WalkForward && cfg.Grid != nil {
		errs = errors.Join(errs, fmt.Errorf("walk-forward and parameter search cannot be combined"))
	}
	if cfg.MinTrades < 0 {
		errs = errors.Join(errs, fmt.Errorf("min trades cannot be negative, got %d", cfg.MinTrades))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("batch logger cannot be nil"))
	}

	return errors.Join(errs, cfg.Strategy.Validate())
}

// SymbolResult represents the outcome of backtesting a single symbol.
type SymbolResult struct {
	Symbol string
	// Result is set for single backtests and holds the best combination of a parameter search.
	Result *backtest.Result
	// Trials holds the ranked combinations of a parameter search.
	Trials []backtest.Trial
	// Windows is set for walk-forward runs.
	Windows []backtest.WindowResult
	Err     error
	// Code is the reason code of Err.
	Code string
}

// BatchResult represents the outcome of a batch run.
type BatchResult struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Symbols   []SymbolResult
	Processed int64
	Failed    int64
}

// Batch runs independent backtests for a set of symbols.
type Batch struct {
	cfg    *BatchConfig
	logger zerolog.Logger
}

// NewBatch initializes a new batch backtest service.
func NewBatch(cfg *BatchConfig) (*Batch, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating batch config: %w", err)
	}

	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	return &Batch{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("service", "batch").Logger(),
	}, nil
}

// persist stores the provided trades, equity and report under the provided key.
func (b *Batch) persist(ctx context.Context, runID string, key string, trades []shared.TradeRecord,
	equity []shared.EquityPoint, report performance.Report) error {
	if b.cfg.Store == nil {
		return nil
	}

	err := b.cfg.Store.PersistTrades(ctx, runID, key, trades)
	if err != nil {
		return err
	}

	err = b.cfg.Store.PersistEquity(ctx, runID, key, equity)
	if err != nil {
		return err
	}

	return b.cfg.Store.PersistSummary(ctx, runID, key, report)
}

// runSymbol backtests and persists a single symbol.
func (b *Batch) runSymbol(ctx context.Context, runID string, symbol string) SymbolResult {
	result := SymbolResult{Symbol: symbol}

	logger := b.logger.With().Str("component", "backtester").Str("symbol", symbol).Logger()
	bt, err := backtest.NewBacktester(&backtest.BacktesterConfig{
		Strategy: b.cfg.Strategy,
		Logger:   &logger,
	})
	if err != nil {
		result.Err = perrors.WithStack(err)
		return result
	}

	bars, err := b.cfg.Provider.FetchBars(ctx, symbol)
	if err != nil {
		result.Err = perrors.WithStack(err)
		return result
	}

	if b.cfg.Grid != nil {
		return b.searchSymbol(ctx, runID, symbol, bars)
	}

	if !b.cfg.WalkForward {
		res, err := bt.Run(symbol, bars)
		if err != nil {
			result.Err = perrors.WithStack(err)
			return result
		}

		result.Result = res
		err = b.persist(ctx, runID, symbol, res.Trades, res.Equity, res.Report)
		if err != nil {
			result.Err = perrors.WithStack(err)
		}

		return result
	}

	windows, err := bt.WalkForward(symbol, bars, b.cfg.TrainDays, b.cfg.TestDays)
	if err != nil {
		result.Err = perrors.WithStack(err)
		return result
	}

	result.Windows = windows
	for idx := range windows {
		res := windows[idx].Result
		key := fmt.Sprintf("%s@%s", symbol, windows[idx].Window.TestDays[0])
		err = b.persist(ctx, runID, key, res.Trades, res.Equity, res.Report)
		if err != nil {
			result.Err = perrors.WithStack(err)
			return result
		}
	}

	return result
}

// searchSymbol runs the parameter search of a symbol and persists its best combination.
func (b *Batch) searchSymbol(ctx context.Context, runID string, symbol string, bars []shared.Bar) SymbolResult {
	result := SymbolResult{Symbol: symbol}

	logger := b.logger.With().Str("symbol", symbol).Logger()

	opt, err := backtest.NewOptimizer(&backtest.OptimizerConfig{
		Strategy:   b.cfg.Strategy,
		Grid:       *b.cfg.Grid,
		MinTrades:  b.cfg.MinTrades,
		MaxWorkers: b.cfg.MaxWorkers,
		Logger:     &logger,
	})
	if err != nil {
		result.Err = perrors.WithStack(err)
		return result
	}

	trials, err := opt.Run(ctx, symbol, bars)
	if err != nil {
		result.Err = perrors.WithStack(err)
		return result
	}

	result.Trials = trials
	best, ok := backtest.Best(trials)
	if !ok {
		// Ranked trials only start with a failure when every combination failed.
		if len(trials) > 0 && trials[0].Err != nil {
			result.Err = perrors.WithStack(trials[0].Err)
			return result
		}
		result.Err = perrors.Errorf("no %s parameter combination reached %d trades", symbol, b.cfg.MinTrades)
		return result
	}

	result.Result = best.Result
	err = b.persist(ctx, runID, symbol, best.Result.Trades, best.Result.Equity, best.Result.Report)
	if err != nil {
		result.Err = perrors.WithStack(err)
	}

	return result
}

// Run backtests every configured symbol. A failing symbol does not stop the others; its
// error and reason code are kept on its result.
func (b *Batch) Run(ctx context.Context) (*BatchResult, error) {
	runID := uuid.New().String()
	started := time.Now()
	results := make([]SymbolResult, len(b.cfg.Symbols))
	processed := atomic.NewInt64(0)
	failed := atomic.NewInt64(0)

	b.logger.Info().Msgf("starting run %s for %d symbols with %d workers", runID,
		len(b.cfg.Symbols), b.cfg.MaxWorkers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxWorkers)

	for idx, symbol := range b.cfg.Symbols {
		symbol := strings.ToUpper(symbol)
		g.Go(func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}

			res := b.runSymbol(gctx, runID, symbol)
			processed.Inc()
			if res.Err != nil {
				res.Code = shared.ReasonCode(res.Err)
				failed.Inc()
				b.logger.Error().Stack().Err(res.Err).Str("symbol", symbol).Str("code", res.Code).
					Msg("backtest failed")
			}

			results[idx] = res
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("run %s interrupted: %w", runID, err)
	}

	batch := &BatchResult{
		RunID:     runID,
		Started:   started,
		Finished:  time.Now(),
		Symbols:   results,
		Processed: processed.Load(),
		Failed:    failed.Load(),
	}

	b.logger.Info().Msg(batch.Summary())

	return batch, nil
}

// Summary returns a human readable summary of the batch result. Trades of failed symbols
// are not counted.
func (r *BatchResult) Summary() string {
	var trades int
	var netPnL float64
	for idx := range r.Symbols {
		res := &r.Symbols[idx]
		if res.Err != nil {
			continue
		}
		if res.Result != nil {
			trades += res.Result.Report.TotalTrades
			netPnL += res.Result.Report.NetPnL
		}
		for _, window := range res.Windows {
			trades += window.Result.Report.TotalTrades
			netPnL += window.Result.Report.NetPnL
		}
	}

	p := message.NewPrinter(language.English)
	return p.Sprintf("run %s: %d symbols processed, %d failed, %d trades, net pnl %.2f in %s",
		r.RunID, r.Processed, r.Failed, trades, netPnL, r.Finished.Sub(r.Started).Round(time.Millisecond))
}

// Schedule runs the batch on the configured cron expression in new york time until the
// provided context is cancelled. Six field expressions include seconds.
func (b *Batch) Schedule(ctx context.Context) error {
	if b.cfg.Schedule == "" {
		return fmt.Errorf("no schedule configured")
	}

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		return fmt.Errorf("fetching new york time: %w", err)
	}

	jobScheduler := gocron.NewScheduler(loc)
	jobScheduler.SingletonModeAll()

	if len(strings.Fields(b.cfg.Schedule)) == 6 {
		jobScheduler.CronWithSeconds(b.cfg.Schedule)
	} else {
		jobScheduler.Cron(b.cfg.Schedule)
	}

	_, err = jobScheduler.Do(func() {
		_, err := b.Run(ctx)
		if err != nil {
			b.logger.Error().Err(err).Msg("scheduled run failed")
		}
	})
	if err != nil {
		return &shared.ConfigurationError{Field: "schedule", Reason: err.Error()}
	}

	b.logger.Info().Msgf("scheduled runs on %q", b.cfg.Schedule)

	jobScheduler.StartAsync()
	<-ctx.Done()
	jobScheduler.Stop()

	return nil
}
