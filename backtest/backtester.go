package backtest

import (
	"fmt"
	"time"

	"github.com/dnldd/orb/engine"
	"github.com/dnldd/orb/indicator"
	"github.com/dnldd/orb/performance"
	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
)

// BacktesterConfig represents the configuration of the backtester.
type BacktesterConfig struct {
	// Strategy is the strategy configuration.
	Strategy shared.StrategyConfig
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *BacktesterConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("backtester logger cannot be nil")
	}

	return cfg.Strategy.Validate()
}

// Result represents the outcome of backtesting a symbol.
type Result struct {
	Symbol     string
	Signals    []shared.Signal
	Trades     []shared.TradeRecord
	Equity     []shared.EquityPoint
	Rejections []Rejection
	Report     performance.Report
}

// Backtester chains the preprocessor, signal engine, simulator and performance summary.
type Backtester struct {
	cfg          BacktesterConfig
	preprocessor *indicator.Preprocessor
	engine       *engine.Engine
	simulator    *Simulator
	barsPerYear  float64
}

// NewBacktester initializes a new backtester.
func NewBacktester(cfg *BacktesterConfig) (*Backtester, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating backtester config: %w", err)
	}

	tf, err := cfg.Strategy.BarTimeframe()
	if err != nil {
		return nil, err
	}

	preprocessor, err := indicator.NewPreprocessor(&indicator.PreprocessorConfig{
		Strategy: cfg.Strategy,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	eng, err := engine.NewEngine(&engine.EngineConfig{
		Strategy: cfg.Strategy,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	simulator, err := NewSimulator(&SimulatorConfig{
		Strategy: cfg.Strategy,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Backtester{
		cfg: BacktesterConfig{
			Strategy: cfg.Strategy.Clone(),
			Logger:   cfg.Logger,
		},
		preprocessor: preprocessor,
		engine:       eng,
		simulator:    simulator,
		barsPerYear:  shared.BarsPerYear(tf),
	}, nil
}

// Run backtests the provided bars of a symbol.
func (b *Backtester) Run(symbol string, bars []shared.Bar) (*Result, error) {
	return b.run(symbol, bars, time.Time{})
}

// run backtests the provided bars, trading only from the provided time onwards. Bars
// before it only warm up the indicators.
func (b *Backtester) run(symbol string, bars []shared.Bar, from time.Time) (*Result, error) {
	series, err := b.preprocessor.Process(symbol, bars)
	if err != nil {
		return nil, err
	}

	signals := b.engine.Scan(series)

	if !from.IsZero() {
		kept := make([]shared.Signal, 0, len(signals))
		for idx := range signals {
			if !signals[idx].Date.Before(from) {
				kept = append(kept, signals[idx])
			}
		}
		signals = kept

		cut := len(series.Bars)
		for idx := range series.Bars {
			if !series.Bars[idx].Date.Before(from) {
				cut = idx
				break
			}
		}
		series.Bars = series.Bars[cut:]
	}

	sim, err := b.simulator.Run(series, signals)
	if err != nil {
		return nil, err
	}

	report := performance.Summarize(sim.Trades, sim.Equity, performance.Config{
		InitialCapital: b.cfg.Strategy.InitialCapital,
		BarsPerYear:    b.barsPerYear,
	})

	b.cfg.Logger.Info().Msgf("backtested %s: %d signals, %d trades, %d rejections, net pnl %.2f",
		symbol, len(signals), len(sim.Trades), len(sim.Rejections), report.NetPnL)

	return &Result{
		Symbol:     symbol,
		Signals:    signals,
		Trades:     sim.Trades,
		Equity:     sim.Equity,
		Rejections: sim.Rejections,
		Report:     report,
	}, nil
}
