package backtest

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/orb/indicator"
	"github.com/dnldd/orb/position"
	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
)

// SimulatorConfig represents the configuration of the backtest simulator.
type SimulatorConfig struct {
	// Strategy is the strategy configuration.
	Strategy shared.StrategyConfig
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SimulatorConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("simulator logger cannot be nil")
	}

	return cfg.Strategy.Validate()
}

// Rejection represents a signal that could not be turned into a trade.
type Rejection struct {
	Signal shared.Signal
	Code   string
	Reason string
}

// Simulation represents the outcome of simulating a symbol's signals.
type Simulation struct {
	Symbol      string
	Trades      []shared.TradeRecord
	Equity      []shared.EquityPoint
	Rejections  []Rejection
	FinalEquity float64
}

// Simulator replays bars and manages one trade at a time per symbol.
type Simulator struct {
	cfg     SimulatorConfig
	exitCfg position.ExitConfig
	sizer   *position.Sizer
}

// NewSimulator initializes a new backtest simulator.
func NewSimulator(cfg *SimulatorConfig) (*Simulator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating simulator config: %w", err)
	}

	exitCfg, err := position.NewExitConfig(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	sizer, err := position.NewSizer(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	return &Simulator{
		cfg: SimulatorConfig{
			Strategy: cfg.Strategy.Clone(),
			Logger:   cfg.Logger,
		},
		exitCfg: exitCfg,
		sizer:   sizer,
	}, nil
}

// run holds the mutable state of a single simulation.
type run struct {
	sim         *Simulator
	trade       *position.Trade
	realized    float64
	dayTrades   map[string]int
	dayPnL      map[string]float64
	trades      []shared.TradeRecord
	equity      []shared.EquityPoint
	rejections  []Rejection
	signalIndex map[int64]shared.Signal
}

// closeTrade records the provided trade once it is closed.
func (r *run) closeTrade() error {
	record, err := r.trade.Record()
	if err != nil {
		return err
	}

	r.realized += record.PnL
	r.dayPnL[record.Day] += record.PnL
	r.trades = append(r.trades, record)
	r.sim.cfg.Logger.Info().Msgf("closed %s %s trade %s: %d shares, pnl %.2f (%.2fR), %s",
		record.Symbol, record.Direction.String(), record.ID, record.Size, record.PnL, record.RMultiple,
		record.ExitReason.String())
	r.trade = nil

	return nil
}

// fail logs a dump of the open trade when the provided error is an invariant violation.
func (r *run) fail(err error) error {
	var invariant *shared.InvariantError
	if errors.As(err, &invariant) {
		r.sim.cfg.Logger.Error().Msgf("trade invariant violated: %s", spew.Sdump(r.trade))
	}

	return err
}

// updateTrade applies the exit rules of the open trade to the provided bar.
func (r *run) updateTrade(bar shared.Bar, prev *shared.Bar) error {
	if r.trade == nil {
		return nil
	}

	if bar.Day != r.trade.Day && prev != nil {
		// The entry session ended without a time stop bar, close at its last bar.
		_, err := r.trade.ForceClose(*prev, shared.TimeStop)
		if err != nil {
			return r.fail(err)
		}

		return r.closeTrade()
	}

	_, err := r.trade.Update(bar)
	if err != nil {
		return r.fail(err)
	}

	if r.trade.Status == position.Closed {
		return r.closeTrade()
	}

	return nil
}

// enter opens a trade on the provided signal if the limits and sizing allow it.
func (r *run) enter(bar shared.Bar, signal shared.Signal) error {
	strategy := r.sim.cfg.Strategy
	if r.trade != nil || r.dayTrades[signal.Day] >= strategy.MaxTradesPerSymbolPerDay {
		r.sim.cfg.Logger.Debug().Msgf("dropping %s, position or daily trade limit reached", signal.String())
		return nil
	}

	if strategy.MaxDailyLossPct > 0 {
		limit := (strategy.InitialCapital + r.realized) * strategy.MaxDailyLossPct
		if r.dayPnL[signal.Day] < -limit {
			r.sim.cfg.Logger.Debug().Msgf("dropping %s, daily loss of %.2f exceeds the %.2f limit",
				signal.String(), -r.dayPnL[signal.Day], limit)
			return nil
		}
	}

	entry := position.EntryFill(bar.Close, signal.Direction, strategy.SlippagePct)
	stop := entry - signal.Direction.Sign()*strategy.InitialStopMultiplier*signal.OpeningRange.Range

	shares, err := r.sim.sizer.Size(position.SizingInput{
		Capital:    strategy.InitialCapital + r.realized,
		EntryPrice: entry,
		StopPrice:  stop,
		ORRange:    signal.OpeningRange.Range,
		ATR:        signal.ATR,
		History:    r.trades,
	})
	if err != nil {
		var sizingErr *shared.InvalidSizingError
		if !errors.As(err, &sizingErr) {
			return err
		}

		r.sim.cfg.Logger.Debug().Msgf("rejecting %s: %v", signal.String(), err)
		r.rejections = append(r.rejections, Rejection{
			Signal: signal,
			Code:   shared.ReasonCode(err),
			Reason: err.Error(),
		})
		return nil
	}

	trade, err := position.NewTrade(position.TradeParams{
		Symbol:     signal.Symbol,
		Direction:  signal.Direction,
		Date:       bar.Date,
		EntryPrice: entry,
		Size:       shares,
		ORRange:    signal.OpeningRange.Range,
	}, r.sim.exitCfg)
	if err != nil {
		return fmt.Errorf("opening trade for %s: %w", signal.String(), err)
	}

	r.trade = trade
	r.dayTrades[signal.Day]++
	r.sim.cfg.Logger.Info().Msgf("opened %s %s trade %s: %d shares at %.4f, stop %.4f",
		trade.Symbol, trade.Direction.String(), trade.ID, trade.InitialSize, trade.EntryPrice, trade.StopLoss)

	return nil
}

// record appends the equity point of the provided bar.
func (r *run) record(bar shared.Bar) {
	point := shared.EquityPoint{
		Date:     bar.Date,
		Realized: r.realized,
	}

	if r.trade != nil {
		// Partial exits are realized on the trade until it closes.
		point.Realized += r.trade.RealizedPnL
		point.Unrealized = r.trade.UnrealizedPnL(bar.Close)
		point.OpenSize = r.trade.RemainingSize
	}

	point.Equity = r.sim.cfg.Strategy.InitialCapital + point.Realized + point.Unrealized
	r.equity = append(r.equity, point)
}

// Run simulates the provided signals over the provided series.
func (s *Simulator) Run(series *indicator.Series, signals []shared.Signal) (*Simulation, error) {
	r := &run{
		sim:         s,
		dayTrades:   make(map[string]int),
		dayPnL:      make(map[string]float64),
		trades:      make([]shared.TradeRecord, 0),
		equity:      make([]shared.EquityPoint, 0, len(series.Bars)),
		rejections:  make([]Rejection, 0),
		signalIndex: make(map[int64]shared.Signal, len(signals)),
	}

	for _, signal := range signals {
		r.signalIndex[signal.Date.UnixNano()] = signal
	}

	var prev *shared.Bar
	for idx := range series.Bars {
		bar := series.Bars[idx]

		err := r.updateTrade(bar, prev)
		if err != nil {
			return nil, fmt.Errorf("updating %s trade at %s: %w", series.Symbol,
				bar.Date.Format(shared.DateLayout), err)
		}

		signal, ok := r.signalIndex[bar.Date.UnixNano()]
		if ok {
			err = r.enter(bar, signal)
			if err != nil {
				return nil, err
			}
		}

		r.record(bar)
		prev = &series.Bars[idx]
	}

	if r.trade != nil && prev != nil {
		_, err := r.trade.ForceClose(*prev, shared.EndOfData)
		if err != nil {
			return nil, r.fail(err)
		}

		err = r.closeTrade()
		if err != nil {
			return nil, err
		}

		// Reflect the end of data close in the final equity point.
		last := &r.equity[len(r.equity)-1]
		last.Realized = r.realized
		last.Unrealized = 0
		last.OpenSize = 0
		last.Equity = s.cfg.Strategy.InitialCapital + r.realized
	}

	return &Simulation{
		Symbol:      series.Symbol,
		Trades:      r.trades,
		Equity:      r.equity,
		Rejections:  r.rejections,
		FinalEquity: s.cfg.Strategy.InitialCapital + r.realized,
	}, nil
}
