package backtest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	// defaultOptimizerWorkers is the number of variants backtested concurrently when unset.
	defaultOptimizerWorkers = 4
)

// Grid represents the strategy parameters searched by the optimizer. Empty dimensions keep
// the value of the base configuration.
type Grid struct {
	MinORRangePct         []float64 `yaml:"min_or_range_pct"`
	VolumeMultiplier      []float64 `yaml:"volume_multiplier"`
	ConfirmationBars      []int     `yaml:"confirmation_bars"`
	InitialStopMultiplier []float64 `yaml:"initial_stop_multiplier"`
}

// LoadGrid reads a yaml parameter grid.
func LoadGrid(path string) (Grid, error) {
	var grid Grid

	data, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, fmt.Errorf("reading parameter grid %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, &grid)
	if err != nil {
		return Grid{}, &shared.ConfigurationError{Field: path, Reason: err.Error()}
	}

	return grid, nil
}

// expand returns every variant combined with every provided value.
func expand[T any](variants []shared.StrategyConfig, values []T, set func(cfg *shared.StrategyConfig, value T)) []shared.StrategyConfig {
	if len(values) == 0 {
		return variants
	}

	expanded := make([]shared.StrategyConfig, 0, len(variants)*len(values))
	for _, variant := range variants {
		for _, value := range values {
			cfg := variant.Clone()
			set(&cfg, value)
			expanded = append(expanded, cfg)
		}
	}

	return expanded
}

// Variants returns a copy of the base configuration for every combination of the grid,
// the first dimension varying slowest.
func (g Grid) Variants(base shared.StrategyConfig) []shared.StrategyConfig {
	variants := []shared.StrategyConfig{base.Clone()}
	variants = expand(variants, g.MinORRangePct, func(cfg *shared.StrategyConfig, v float64) { cfg.MinORRangePct = v })
	variants = expand(variants, g.VolumeMultiplier, func(cfg *shared.StrategyConfig, v float64) { cfg.VolumeMultiplier = v })
	variants = expand(variants, g.ConfirmationBars, func(cfg *shared.StrategyConfig, v int) { cfg.ConfirmationBars = v })
	variants = expand(variants, g.InitialStopMultiplier, func(cfg *shared.StrategyConfig, v float64) { cfg.InitialStopMultiplier = v })
	return variants
}

// Trial represents the outcome of backtesting a single grid variant.
type Trial struct {
	Strategy shared.StrategyConfig
	Result   *Result
	Err      error
	// Eligible is set when the variant traded at least the minimum number of trades.
	Eligible bool
}

// OptimizerConfig represents the configuration of the parameter optimizer.
type OptimizerConfig struct {
	// Strategy is the base strategy configuration.
	Strategy shared.StrategyConfig
	// Grid is the searched parameter grid.
	Grid Grid
	// MinTrades is the number of trades a variant needs to be ranked.
	MinTrades int
	// MaxWorkers bounds the number of variants backtested concurrently.
	MaxWorkers int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *OptimizerConfig) Validate() error {
	var errs error

	if cfg.MinTrades < 0 {
		errs = errors.Join(errs, fmt.Errorf("min trades cannot be negative, got %d", cfg.MinTrades))
	}
	if cfg.MaxWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("max workers cannot be negative, got %d", cfg.MaxWorkers))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("optimizer logger cannot be nil"))
	}

	return errors.Join(errs, cfg.Strategy.Validate())
}

// Optimizer backtests every variant of a parameter grid and ranks them by sharpe ratio.
type Optimizer struct {
	cfg    OptimizerConfig
	logger zerolog.Logger
}

// NewOptimizer initializes a new parameter optimizer.
func NewOptimizer(cfg *OptimizerConfig) (*Optimizer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating optimizer config: %w", err)
	}

	workers := cfg.MaxWorkers
	if workers == 0 {
		workers = defaultOptimizerWorkers
	}

	return &Optimizer{
		cfg: OptimizerConfig{
			Strategy:   cfg.Strategy.Clone(),
			Grid:       cfg.Grid,
			MinTrades:  cfg.MinTrades,
			MaxWorkers: workers,
			Logger:     cfg.Logger,
		},
		logger: cfg.Logger.With().Str("component", "optimizer").Logger(),
	}, nil
}

// trial backtests the provided variant.
func (o *Optimizer) trial(symbol string, bars []shared.Bar, variant shared.StrategyConfig) Trial {
	trial := Trial{Strategy: variant}

	// Per trade logs of every variant are suppressed.
	quiet := o.logger.Level(zerolog.WarnLevel)
	bt, err := NewBacktester(&BacktesterConfig{Strategy: variant, Logger: &quiet})
	if err != nil {
		trial.Err = err
		return trial
	}

	result, err := bt.Run(symbol, bars)
	if err != nil {
		trial.Err = err
		return trial
	}

	trial.Result = result
	trial.Eligible = result.Report.TotalTrades >= o.cfg.MinTrades

	return trial
}

// compareTrials orders eligible trials first, then by descending sharpe ratio and profit
// factor. Failed trials sort last.
func compareTrials(a Trial, b Trial) int {
	rank := func(t Trial) int {
		switch {
		case t.Err != nil:
			return 2
		case !t.Eligible:
			return 1
		default:
			return 0
		}
	}

	c := cmp.Compare(rank(a), rank(b))
	if c != 0 || a.Result == nil || b.Result == nil {
		return c
	}

	c = cmp.Compare(b.Result.Report.Sharpe, a.Result.Report.Sharpe)
	if c != 0 {
		return c
	}

	return cmp.Compare(b.Result.Report.ProfitFactor, a.Result.Report.ProfitFactor)
}

// Run backtests every grid variant of the provided bars and returns the ranked trials.
func (o *Optimizer) Run(ctx context.Context, symbol string, bars []shared.Bar) ([]Trial, error) {
	variants := o.cfg.Grid.Variants(o.cfg.Strategy)
	trials := make([]Trial, len(variants))

	o.logger.Info().Msgf("searching %d %s parameter combinations", len(variants), symbol)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxWorkers)

	for idx, variant := range variants {
		g.Go(func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}

			trials[idx] = o.trial(symbol, bars, variant)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%s parameter search interrupted: %w", symbol, err)
	}

	slices.SortStableFunc(trials, compareTrials)

	best, ok := Best(trials)
	if ok {
		report := best.Result.Report
		o.logger.Info().Msgf("best %s combination: min or range %v, volume multiplier %v, "+
			"confirmation bars %d, stop multiplier %v (%d trades, sharpe %.2f, profit factor %.2f)",
			symbol, best.Strategy.MinORRangePct, best.Strategy.VolumeMultiplier,
			best.Strategy.ConfirmationBars, best.Strategy.InitialStopMultiplier, report.TotalTrades,
			report.Sharpe, report.ProfitFactor)
	}

	return trials, nil
}

// Best returns the highest ranked eligible trial of the provided ranked trials.
func Best(trials []Trial) (Trial, bool) {
	if len(trials) == 0 || trials[0].Err != nil || !trials[0].Eligible {
		return Trial{}, false
	}

	return trials[0], true
}
