package indicator

import (
	"fmt"

	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
)

// Series represents the preprocessed bars and opening ranges of a symbol.
type Series struct {
	Symbol string
	Bars   []shared.Bar
	Ranges map[string]shared.OpeningRange
}

// Range returns the opening range of the provided day.
func (s *Series) Range(day string) (shared.OpeningRange, bool) {
	orRange, ok := s.Ranges[day]
	return orRange, ok
}

// PreprocessorConfig represents the configuration of the indicator preprocessor.
type PreprocessorConfig struct {
	// Strategy is the strategy configuration.
	Strategy shared.StrategyConfig
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *PreprocessorConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("preprocessor logger cannot be nil")
	}

	return cfg.Strategy.Validate()
}

// Preprocessor attaches derived indicators and opening ranges to raw bars.
type Preprocessor struct {
	cfg     PreprocessorConfig
	session shared.SessionTimes
}

// NewPreprocessor initializes a new indicator preprocessor.
func NewPreprocessor(cfg *PreprocessorConfig) (*Preprocessor, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating preprocessor config: %w", err)
	}

	session, err := cfg.Strategy.Session()
	if err != nil {
		return nil, err
	}

	return &Preprocessor{
		cfg: PreprocessorConfig{
			Strategy: cfg.Strategy.Clone(),
			Logger:   cfg.Logger,
		},
		session: session,
	}, nil
}

// Process computes the indicators and opening ranges of the provided bars. The input
// slice is not modified.
func (p *Preprocessor) Process(symbol string, bars []shared.Bar) (*Series, error) {
	strategy := p.cfg.Strategy

	need := strategy.Lookback()
	if len(bars) < need {
		return nil, &shared.InsufficientDataError{Symbol: symbol, Have: len(bars), Need: need}
	}

	for idx := 1; idx < len(bars); idx++ {
		if !bars[idx].Date.After(bars[idx-1].Date) {
			return nil, &shared.DataSourceError{
				Symbol: symbol,
				Err: fmt.Errorf("bars are not in chronological order at %s",
					bars[idx].Date.Format(shared.DateLayout)),
			}
		}
	}

	processed := make([]shared.Bar, len(bars))
	copy(processed, bars)

	atr, err := ATR(processed, strategy.ATRPeriod)
	if err != nil {
		return nil, err
	}

	atrWindow, err := NewWindow(strategy.ATRAveragePeriod)
	if err != nil {
		return nil, err
	}

	volumeWindow, err := NewWindow(strategy.VolumeAveragePeriod)
	if err != nil {
		return nil, err
	}

	var relativeWindow *Window
	if strategy.RelativeVolumePeriod > 0 {
		relativeWindow, err = NewWindow(strategy.RelativeVolumePeriod)
		if err != nil {
			return nil, err
		}
	}

	var emaFast, emaSlow []float64
	if strategy.EMAFastPeriod > 0 {
		closes := make([]float64, len(processed))
		for idx := range processed {
			closes[idx] = processed[idx].Close
		}

		emaFast, err = EMA(closes, strategy.EMAFastPeriod)
		if err != nil {
			return nil, err
		}
		emaSlow, err = EMA(closes, strategy.EMASlowPeriod)
		if err != nil {
			return nil, err
		}
	}

	for idx := range processed {
		bar := &processed[idx]
		bar.Symbol = symbol
		bar.Day = shared.DayKey(bar.Date)
		bar.ATR = atr[idx]

		if idx >= strategy.ATRPeriod-1 {
			atrWindow.Update(bar.ATR)
			if atrWindow.Full() {
				bar.ATRAverage = atrWindow.Mean()
			}
		}

		// The volume average covers the bars preceding the current one.
		if volumeWindow.Full() {
			bar.VolumeAverage = volumeWindow.Mean()
		}
		readyVolume := volumeWindow.Full()
		volumeWindow.Update(float64(bar.Volume))

		bar.Ready = atrWindow.Full() && readyVolume

		if relativeWindow != nil {
			relativeWindow.Update(float64(bar.Volume))
			if relativeWindow.Full() && relativeWindow.Mean() > 0 {
				bar.RelativeVolume = float64(bar.Volume) / relativeWindow.Mean()
			}
			bar.Ready = bar.Ready && relativeWindow.Full()
		}

		if emaFast != nil {
			bar.EMAFast = emaFast[idx]
			bar.EMASlow = emaSlow[idx]
		}
	}

	ranges, days := OpeningRanges(processed, p.session, strategy.ORPeriodMinutes, strategy.MinORRangePct)

	var valid int
	for _, day := range days {
		if ranges[day].Valid {
			valid++
		}
	}

	p.cfg.Logger.Debug().Msgf("preprocessed %d %s bars over %d days, %d with a valid opening range",
		len(processed), symbol, len(days), valid)

	return &Series{
		Symbol: symbol,
		Bars:   processed,
		Ranges: ranges,
	}, nil
}
