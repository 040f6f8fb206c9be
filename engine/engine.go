package engine

import (
	"fmt"

	"github.com/dnldd/orb/indicator"
	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
)

// EngineConfig represents the configuration of the breakout signal engine.
type EngineConfig struct {
	// Strategy is the strategy configuration.
	Strategy shared.StrategyConfig
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("engine logger cannot be nil")
	}

	return cfg.Strategy.Validate()
}

// Engine scans preprocessed bars for confirmed opening range breakouts.
type Engine struct {
	cfg     EngineConfig
	session shared.SessionTimes
}

// NewEngine initializes a new breakout signal engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	session, err := cfg.Strategy.Session()
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg: EngineConfig{
			Strategy: cfg.Strategy.Clone(),
			Logger:   cfg.Logger,
		},
		session: session,
	}, nil
}

// resolveDirection picks the direction to signal when the long and short breakout
// conditions are evaluated on the same bar. Long takes priority.
func resolveDirection(longOK bool, shortOK bool) (shared.Direction, bool) {
	switch {
	case longOK:
		return shared.Long, true
	case shortOK:
		return shared.Short, true
	default:
		return 0, false
	}
}

// tracker tracks the breakout confirmations of a single trading day.
type tracker struct {
	longCount  int
	shortCount int
	signalled  bool
}

// dayEligible checks whether the provided day can produce signals.
func (e *Engine) dayEligible(orRange shared.OpeningRange, ok bool) bool {
	if !ok || !orRange.Valid {
		return false
	}

	maxGap := e.cfg.Strategy.MaxGapPct
	return maxGap == 0 || orRange.Gap <= maxGap
}

// trendAligned checks whether the trend filter averages agree with the provided direction.
// Always true when the trend filter is disabled.
func (e *Engine) trendAligned(bar shared.Bar, direction shared.Direction) bool {
	if e.cfg.Strategy.EMAFastPeriod == 0 {
		return true
	}

	if direction == shared.Long {
		return bar.EMAFast >= bar.EMASlow
	}
	return bar.EMAFast <= bar.EMASlow
}

// Scan returns the breakout signals of the provided series, at most one per trading day.
func (e *Engine) Scan(series *indicator.Series) []shared.Signal {
	strategy := e.cfg.Strategy
	signals := make([]shared.Signal, 0)
	trackers := make(map[string]*tracker)

	for idx := range series.Bars {
		bar := series.Bars[idx]

		day, ok := trackers[bar.Day]
		if !ok {
			day = &tracker{}
			trackers[bar.Day] = day
		}

		if day.signalled || !bar.Ready || !e.session.InTradingWindow(bar.Date) {
			continue
		}

		orRange, ok := series.Range(bar.Day)
		if !e.dayEligible(orRange, ok) {
			continue
		}

		longLevel := orRange.High * (1 + strategy.BreakoutBufferPct)
		shortLevel := orRange.Low * (1 - strategy.BreakoutBufferPct)

		// Confirmation counters only advance on consecutive closes beyond the levels.
		if bar.Close > longLevel {
			day.longCount++
		} else {
			day.longCount = 0
		}

		if bar.Close < shortLevel {
			day.shortCount++
		} else {
			day.shortCount = 0
		}

		volumeOK := float64(bar.Volume) > bar.VolumeAverage*strategy.VolumeMultiplier
		atrOK := bar.ATR > bar.ATRAverage*strategy.MinATRMultiplier
		relativeOK := strategy.RelativeVolumePeriod == 0 || bar.RelativeVolume >= strategy.MinRelativeVolume
		if !volumeOK || !atrOK || !relativeOK {
			if day.longCount >= strategy.ConfirmationBars || day.shortCount >= strategy.ConfirmationBars {
				e.cfg.Logger.Debug().Msgf("%s breakout at %s filtered (volume ok: %v, atr ok: %v, "+
					"relative volume ok: %v)", series.Symbol, bar.Date.Format(shared.DateLayout), volumeOK,
					atrOK, relativeOK)
			}
			continue
		}

		longOK := day.longCount >= strategy.ConfirmationBars && e.trendAligned(bar, shared.Long)
		shortOK := day.shortCount >= strategy.ConfirmationBars && e.trendAligned(bar, shared.Short)
		direction, found := resolveDirection(longOK, shortOK)
		if !found {
			continue
		}

		confirmations := day.longCount
		if direction == shared.Short {
			confirmations = day.shortCount
		}

		signal := shared.NewSignal(bar, direction, confirmations, orRange)
		signals = append(signals, signal)
		day.signalled = true

		e.cfg.Logger.Info().Msgf("signal: %s", signal.String())
	}

	return signals
}
