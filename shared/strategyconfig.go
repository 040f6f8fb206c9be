package shared

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// allocationTolerance is the allowed deviation of the profit target allocations from one.
	allocationTolerance = 0.01
	// maxSlippagePct is the exclusive upper bound of the slippage fraction.
	maxSlippagePct = 0.1
)

// ProfitTarget represents a scale-out level expressed as a multiple of the opening range.
type ProfitTarget struct {
	// Multiplier is the distance of the level from entry in opening range multiples.
	Multiplier float64 `yaml:"multiplier"`
	// Allocation is the fraction of the initial size exited at the level.
	Allocation float64 `yaml:"allocation"`
}

// StrategyConfig represents the full configuration of the opening range breakout strategy.
type StrategyConfig struct {
	// Opening range.
	ORPeriodMinutes int     `yaml:"or_period_minutes"`
	SessionOpen     string  `yaml:"session_open"`
	MinORRangePct   float64 `yaml:"min_or_range_pct"`
	MaxGapPct       float64 `yaml:"max_gap_pct"`

	// Entry.
	BreakoutBufferPct float64 `yaml:"breakout_buffer_pct"`
	ConfirmationBars  int     `yaml:"confirmation_bars"`
	VolumeMultiplier  float64 `yaml:"volume_multiplier"`
	MinATRMultiplier  float64 `yaml:"min_atr_multiplier"`

	// Optional entry filters, disabled when their periods are zero.
	RelativeVolumePeriod int     `yaml:"relative_volume_period"`
	MinRelativeVolume    float64 `yaml:"min_relative_volume"`
	EMAFastPeriod        int     `yaml:"ema_fast_period"`
	EMASlowPeriod        int     `yaml:"ema_slow_period"`

	// Exits.
	InitialStopMultiplier      float64        `yaml:"initial_stop_multiplier"`
	BreakevenTriggerMultiplier float64        `yaml:"breakeven_trigger_multiplier"`
	ProfitTargets              []ProfitTarget `yaml:"profit_targets"`
	TrailingStopMultiplier     float64        `yaml:"trailing_stop_multiplier"`
	TimeStop                   string         `yaml:"time_stop"`
	TradingWindowStart         string         `yaml:"trading_window_start"`
	TradingWindowEnd           string         `yaml:"trading_window_end"`

	// Sizing.
	MaxRiskPerTradePct float64 `yaml:"max_risk_per_trade_pct"`
	MaxPositionSizePct float64 `yaml:"max_position_size_pct"`
	MinPositionSizePct float64 `yaml:"min_position_size_pct"`
	KellySafetyFactor  float64 `yaml:"kelly_safety_factor"`
	KellyWinRate       float64 `yaml:"kelly_win_rate"`
	KellyWinLossRatio  float64 `yaml:"kelly_win_loss_ratio"`
	KellyLookback      int     `yaml:"kelly_lookback"`
	KellyMinTrades     int     `yaml:"kelly_min_trades"`

	// Limits and costs.
	MaxTradesPerSymbolPerDay int     `yaml:"max_trades_per_symbol_per_day"`
	MaxDailyLossPct          float64 `yaml:"max_daily_loss_pct"`
	InitialCapital           float64 `yaml:"initial_capital"`
	CommissionPerTrade       float64 `yaml:"commission_per_trade"`
	SlippagePct              float64 `yaml:"slippage_pct"`

	// Indicators.
	ATRPeriod           int    `yaml:"atr_period"`
	ATRAveragePeriod    int    `yaml:"atr_average_period"`
	VolumeAveragePeriod int    `yaml:"volume_average_period"`
	Timeframe           string `yaml:"timeframe"`
}

// DefaultStrategyConfig returns the default strategy configuration.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		ORPeriodMinutes: 15,
		SessionOpen:     "09:30",
		MinORRangePct:   0.002,
		MaxGapPct:       0.01,

		BreakoutBufferPct: 0.0005,
		ConfirmationBars:  2,
		VolumeMultiplier:  1.5,
		MinATRMultiplier:  0.5,

		MinRelativeVolume: 1.0,

		InitialStopMultiplier:      0.75,
		BreakevenTriggerMultiplier: 0.5,
		ProfitTargets: []ProfitTarget{
			{Multiplier: 1.0, Allocation: 0.5},
			{Multiplier: 2.0, Allocation: 0.25},
			{Multiplier: 3.0, Allocation: 0.25},
		},
		TrailingStopMultiplier: 0.3,
		TimeStop:               "15:55",
		TradingWindowEnd:       "15:30",

		MaxRiskPerTradePct: 0.02,
		MaxPositionSizePct: 0.15,
		MinPositionSizePct: 0.005,
		KellySafetyFactor:  0.25,
		KellyWinRate:       0.45,
		KellyWinLossRatio:  1.8,
		KellyLookback:      20,
		KellyMinTrades:     10,

		MaxTradesPerSymbolPerDay: 1,
		InitialCapital:           100000,
		CommissionPerTrade:       1.0,
		SlippagePct:              0.0005,

		ATRPeriod:           14,
		ATRAveragePeriod:    20,
		VolumeAveragePeriod: 20,
		Timeframe:           "5m",
	}
}

// LoadStrategyConfig reads a yaml strategy file layered over the default configuration
// and validates the result.
func LoadStrategyConfig(path string) (StrategyConfig, error) {
	cfg := DefaultStrategyConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return StrategyConfig{}, fmt.Errorf("reading strategy config %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return StrategyConfig{}, &ConfigurationError{Field: path, Reason: err.Error()}
	}

	err = cfg.Validate()
	if err != nil {
		return StrategyConfig{}, err
	}

	return cfg, nil
}

// Clone returns a deep copy of the configuration.
func (cfg StrategyConfig) Clone() StrategyConfig {
	clone := cfg
	clone.ProfitTargets = append([]ProfitTarget(nil), cfg.ProfitTargets...)
	return clone
}

// Session returns the parsed intraday schedule of the configuration.
func (cfg StrategyConfig) Session() (SessionTimes, error) {
	var session SessionTimes
	var err error

	session.Open, err = ParseClock(cfg.SessionOpen)
	if err != nil {
		return SessionTimes{}, &ConfigurationError{Field: "session_open", Reason: err.Error()}
	}

	session.OpeningRangeEnd = session.Open.Add(cfg.ORPeriodMinutes)
	session.TradingWindowStart = session.OpeningRangeEnd
	if cfg.TradingWindowStart != "" {
		session.TradingWindowStart, err = ParseClock(cfg.TradingWindowStart)
		if err != nil {
			return SessionTimes{}, &ConfigurationError{Field: "trading_window_start", Reason: err.Error()}
		}
	}

	session.TradingWindowEnd, err = ParseClock(cfg.TradingWindowEnd)
	if err != nil {
		return SessionTimes{}, &ConfigurationError{Field: "trading_window_end", Reason: err.Error()}
	}

	session.TimeStop, err = ParseClock(cfg.TimeStop)
	if err != nil {
		return SessionTimes{}, &ConfigurationError{Field: "time_stop", Reason: err.Error()}
	}

	return session, nil
}

// BarTimeframe returns the parsed bar timeframe of the configuration.
func (cfg StrategyConfig) BarTimeframe() (Timeframe, error) {
	tf, err := ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return 0, &ConfigurationError{Field: "timeframe", Reason: err.Error()}
	}

	return tf, nil
}

// Lookback returns the number of bars required before every indicator is defined.
func (cfg StrategyConfig) Lookback() int {
	return max(cfg.ATRPeriod+cfg.ATRAveragePeriod-1, cfg.VolumeAveragePeriod+1, cfg.RelativeVolumePeriod)
}

// configErr is a shorthand for creating configuration errors.
func configErr(field string, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// finite checks whether the provided value is neither NaN nor infinite.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// nonNegative returns a configuration error when the provided value is negative or not finite.
func nonNegative(field string, v float64) error {
	if !finite(v) || v < 0 {
		return configErr(field, "must be a finite non-negative number, got %v", v)
	}
	return nil
}

// within returns a configuration error when the provided value is outside (lo, hi].
func within(field string, v float64, lo float64, hi float64) error {
	if !finite(v) || v <= lo || v > hi {
		return configErr(field, "must be in (%v, %v], got %v", lo, hi, v)
	}
	return nil
}

// Validate asserts the config sane inputs.
func (cfg StrategyConfig) Validate() error {
	var errs error

	if cfg.ORPeriodMinutes <= 0 {
		errs = errors.Join(errs, configErr("or_period_minutes", "must be positive, got %d", cfg.ORPeriodMinutes))
	}
	errs = errors.Join(errs, nonNegative("min_or_range_pct", cfg.MinORRangePct))
	errs = errors.Join(errs, nonNegative("max_gap_pct", cfg.MaxGapPct))
	errs = errors.Join(errs, nonNegative("breakout_buffer_pct", cfg.BreakoutBufferPct))
	if cfg.ConfirmationBars < 1 {
		errs = errors.Join(errs, configErr("confirmation_bars", "must be at least 1, got %d", cfg.ConfirmationBars))
	}
	errs = errors.Join(errs, nonNegative("volume_multiplier", cfg.VolumeMultiplier))
	errs = errors.Join(errs, nonNegative("min_atr_multiplier", cfg.MinATRMultiplier))
	if cfg.RelativeVolumePeriod < 0 {
		errs = errors.Join(errs, configErr("relative_volume_period", "cannot be negative"))
	}
	errs = errors.Join(errs, nonNegative("min_relative_volume", cfg.MinRelativeVolume))
	switch {
	case cfg.EMAFastPeriod < 0 || cfg.EMASlowPeriod < 0:
		errs = errors.Join(errs, configErr("ema_fast_period", "ema periods cannot be negative"))
	case (cfg.EMAFastPeriod == 0) != (cfg.EMASlowPeriod == 0):
		errs = errors.Join(errs, configErr("ema_slow_period", "ema fast and slow periods must be set together"))
	case cfg.EMAFastPeriod > 0 && cfg.EMAFastPeriod >= cfg.EMASlowPeriod:
		errs = errors.Join(errs, configErr("ema_fast_period", "%d must be below the slow period %d",
			cfg.EMAFastPeriod, cfg.EMASlowPeriod))
	}
	if !finite(cfg.InitialStopMultiplier) || cfg.InitialStopMultiplier <= 0 {
		errs = errors.Join(errs, configErr("initial_stop_multiplier", "must be positive"))
	}
	errs = errors.Join(errs, nonNegative("breakeven_trigger_multiplier", cfg.BreakevenTriggerMultiplier))
	errs = errors.Join(errs, nonNegative("trailing_stop_multiplier", cfg.TrailingStopMultiplier))

	errs = errors.Join(errs, validateProfitTargets(cfg.ProfitTargets))

	session, err := cfg.Session()
	switch {
	case err != nil:
		errs = errors.Join(errs, err)
	case cfg.ORPeriodMinutes > 0:
		if session.OpeningRangeEnd <= session.Open {
			errs = errors.Join(errs, configErr("or_period_minutes", "opening range cannot span midnight"))
		}
		if session.TradingWindowStart < session.OpeningRangeEnd {
			errs = errors.Join(errs, configErr("trading_window_start",
				"%s is before the opening range end %s", session.TradingWindowStart, session.OpeningRangeEnd))
		}
		if session.TradingWindowEnd <= session.TradingWindowStart {
			errs = errors.Join(errs, configErr("trading_window_end",
				"%s must be after the trading window start %s", session.TradingWindowEnd, session.TradingWindowStart))
		}
		if session.TimeStop <= session.TradingWindowEnd {
			errs = errors.Join(errs, configErr("time_stop",
				"%s must be after the trading window end %s", session.TimeStop, session.TradingWindowEnd))
		}
	}

	errs = errors.Join(errs, within("max_risk_per_trade_pct", cfg.MaxRiskPerTradePct, 0, 1))
	errs = errors.Join(errs, within("max_position_size_pct", cfg.MaxPositionSizePct, 0, 1))
	if !finite(cfg.MinPositionSizePct) || cfg.MinPositionSizePct < 0 || cfg.MinPositionSizePct >= cfg.MaxPositionSizePct {
		errs = errors.Join(errs, configErr("min_position_size_pct", "must be in [0, max_position_size_pct), got %v", cfg.MinPositionSizePct))
	}
	if cfg.MaxRiskPerTradePct > cfg.MaxPositionSizePct {
		errs = errors.Join(errs, configErr("max_risk_per_trade_pct", "cannot exceed max_position_size_pct"))
	}
	errs = errors.Join(errs, within("kelly_safety_factor", cfg.KellySafetyFactor, 0, 1))
	if !finite(cfg.KellyWinRate) || cfg.KellyWinRate <= 0 || cfg.KellyWinRate >= 1 {
		errs = errors.Join(errs, configErr("kelly_win_rate", "must be in (0, 1), got %v", cfg.KellyWinRate))
	}
	if !finite(cfg.KellyWinLossRatio) || cfg.KellyWinLossRatio <= 0 {
		errs = errors.Join(errs, configErr("kelly_win_loss_ratio", "must be positive"))
	}
	if cfg.KellyLookback < 1 {
		errs = errors.Join(errs, configErr("kelly_lookback", "must be at least 1"))
	}
	if cfg.KellyMinTrades < 1 || cfg.KellyMinTrades > cfg.KellyLookback {
		errs = errors.Join(errs, configErr("kelly_min_trades", "must be in [1, kelly_lookback]"))
	}
	if cfg.MaxTradesPerSymbolPerDay < 1 {
		errs = errors.Join(errs, configErr("max_trades_per_symbol_per_day", "must be at least 1"))
	}
	if !finite(cfg.MaxDailyLossPct) || cfg.MaxDailyLossPct < 0 || cfg.MaxDailyLossPct >= 1 {
		errs = errors.Join(errs, configErr("max_daily_loss_pct", "must be in [0, 1), got %v", cfg.MaxDailyLossPct))
	}
	if !finite(cfg.InitialCapital) || cfg.InitialCapital <= 0 {
		errs = errors.Join(errs, configErr("initial_capital", "must be a positive amount"))
	}
	errs = errors.Join(errs, nonNegative("commission_per_trade", cfg.CommissionPerTrade))
	if !finite(cfg.SlippagePct) || cfg.SlippagePct < 0 || cfg.SlippagePct >= maxSlippagePct {
		errs = errors.Join(errs, configErr("slippage_pct", "must be in [0, %v), got %v", maxSlippagePct, cfg.SlippagePct))
	}
	if cfg.ATRPeriod < 1 {
		errs = errors.Join(errs, configErr("atr_period", "must be at least 1"))
	}
	if cfg.ATRAveragePeriod < 1 {
		errs = errors.Join(errs, configErr("atr_average_period", "must be at least 1"))
	}
	if cfg.VolumeAveragePeriod < 1 {
		errs = errors.Join(errs, configErr("volume_average_period", "must be at least 1"))
	}

	_, err = cfg.BarTimeframe()
	if err != nil {
		errs = errors.Join(errs, err)
	}

	return errs
}

// validateProfitTargets asserts the profit targets ascend and allocate the full position.
func validateProfitTargets(targets []ProfitTarget) error {
	if len(targets) == 0 {
		return configErr("profit_targets", "at least one target is required")
	}

	var errs error
	var total float64
	for idx, target := range targets {
		if !finite(target.Multiplier) || target.Multiplier <= 0 {
			errs = errors.Join(errs, configErr("profit_targets", "target %d multiplier must be positive", idx))
		}
		if idx > 0 && target.Multiplier <= targets[idx-1].Multiplier {
			errs = errors.Join(errs, configErr("profit_targets", "target %d multiplier must be greater than target %d", idx, idx-1))
		}
		if !finite(target.Allocation) || target.Allocation <= 0 || target.Allocation > 1 {
			errs = errors.Join(errs, configErr("profit_targets", "target %d allocation must be in (0, 1]", idx))
		}
		total += target.Allocation
	}

	if math.Abs(total-1) > allocationTolerance {
		errs = errors.Join(errs, configErr("profit_targets", "allocations must sum to 1, got %.4f", total))
	}

	return errs
}
