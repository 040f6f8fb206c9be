package shared

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

func TestDefaultStrategyConfig(t *testing.T) {
	// Ensure the default configuration is valid.
	cfg := DefaultStrategyConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, cfg.Lookback(), 33)
	assert.Equal(t, cfg.RelativeVolumePeriod, 0)
	assert.Equal(t, cfg.EMAFastPeriod, 0)
	assert.Equal(t, cfg.MaxDailyLossPct, 0.0)

	session, err := cfg.Session()
	assert.NoError(t, err)
	assert.Equal(t, session.Open.String(), "09:30")
	assert.Equal(t, session.OpeningRangeEnd.String(), "09:45")
	assert.Equal(t, session.TradingWindowStart.String(), "09:45")
	assert.Equal(t, session.TradingWindowEnd.String(), "15:30")
	assert.Equal(t, session.TimeStop.String(), "15:55")

	tf, err := cfg.BarTimeframe()
	assert.NoError(t, err)
	assert.Equal(t, tf, FiveMinute)
}

func TestStrategyConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *StrategyConfig)
		wantErr []string
	}{
		{
			name:   "valid default",
			modify: func(cfg *StrategyConfig) {},
		},
		{
			name:    "non-positive opening range period",
			modify:  func(cfg *StrategyConfig) { cfg.ORPeriodMinutes = 0 },
			wantErr: []string{"or_period_minutes"},
		},
		{
			name:    "zero confirmation bars",
			modify:  func(cfg *StrategyConfig) { cfg.ConfirmationBars = 0 },
			wantErr: []string{"confirmation_bars"},
		},
		{
			name: "non-ascending targets",
			modify: func(cfg *StrategyConfig) {
				cfg.ProfitTargets = []ProfitTarget{{Multiplier: 2, Allocation: 0.5}, {Multiplier: 1, Allocation: 0.5}}
			},
			wantErr: []string{"target 1 multiplier must be greater than target 0"},
		},
		{
			name: "allocations not summing to one",
			modify: func(cfg *StrategyConfig) {
				cfg.ProfitTargets = []ProfitTarget{{Multiplier: 1, Allocation: 0.5}, {Multiplier: 2, Allocation: 0.2}}
			},
			wantErr: []string{"allocations must sum to 1"},
		},
		{
			name:    "no targets",
			modify:  func(cfg *StrategyConfig) { cfg.ProfitTargets = nil },
			wantErr: []string{"at least one target is required"},
		},
		{
			name:    "unparsable time stop",
			modify:  func(cfg *StrategyConfig) { cfg.TimeStop = "late" },
			wantErr: []string{"time_stop"},
		},
		{
			name:    "time stop before window end",
			modify:  func(cfg *StrategyConfig) { cfg.TimeStop = "15:00" },
			wantErr: []string{"must be after the trading window end"},
		},
		{
			name:    "window start inside the opening range",
			modify:  func(cfg *StrategyConfig) { cfg.TradingWindowStart = "09:35" },
			wantErr: []string{"is before the opening range end"},
		},
		{
			name:    "window end before opening range end",
			modify:  func(cfg *StrategyConfig) { cfg.TradingWindowEnd = "09:40" },
			wantErr: []string{"trading_window_end"},
		},
		{
			name:    "min position above max position",
			modify:  func(cfg *StrategyConfig) { cfg.MinPositionSizePct = 0.2 },
			wantErr: []string{"min_position_size_pct"},
		},
		{
			name:    "risk above max position",
			modify:  func(cfg *StrategyConfig) { cfg.MaxRiskPerTradePct = 0.3; cfg.MaxPositionSizePct = 0.25 },
			wantErr: []string{"cannot exceed max_position_size_pct"},
		},
		{
			name:    "kelly safety out of range",
			modify:  func(cfg *StrategyConfig) { cfg.KellySafetyFactor = 1.5 },
			wantErr: []string{"kelly_safety_factor"},
		},
		{
			name:    "negative capital",
			modify:  func(cfg *StrategyConfig) { cfg.InitialCapital = -1 },
			wantErr: []string{"initial_capital"},
		},
		{
			name:    "slippage too large",
			modify:  func(cfg *StrategyConfig) { cfg.SlippagePct = 0.2 },
			wantErr: []string{"slippage_pct"},
		},
		{
			name:    "unknown timeframe",
			modify:  func(cfg *StrategyConfig) { cfg.Timeframe = "7m" },
			wantErr: []string{"timeframe"},
		},
		{
			name:    "nan opening range fraction",
			modify:  func(cfg *StrategyConfig) { cfg.MinORRangePct = math.NaN() },
			wantErr: []string{"min_or_range_pct"},
		},
		{
			name:    "infinite volume multiplier",
			modify:  func(cfg *StrategyConfig) { cfg.VolumeMultiplier = math.Inf(1) },
			wantErr: []string{"volume_multiplier"},
		},
		{
			name:    "nan risk per trade",
			modify:  func(cfg *StrategyConfig) { cfg.MaxRiskPerTradePct = math.NaN() },
			wantErr: []string{"max_risk_per_trade_pct"},
		},
		{
			name:    "nan target allocation",
			modify:  func(cfg *StrategyConfig) { cfg.ProfitTargets[2].Allocation = math.NaN() },
			wantErr: []string{"target 2 allocation"},
		},
		{
			name:    "enabled trend and relative volume filters",
			modify:  func(cfg *StrategyConfig) { cfg.EMAFastPeriod = 9; cfg.EMASlowPeriod = 21; cfg.RelativeVolumePeriod = 5 },
			wantErr: nil,
		},
		{
			name:    "only one ema period",
			modify:  func(cfg *StrategyConfig) { cfg.EMAFastPeriod = 9 },
			wantErr: []string{"ema fast and slow periods must be set together"},
		},
		{
			name:    "fast ema not below slow ema",
			modify:  func(cfg *StrategyConfig) { cfg.EMAFastPeriod = 21; cfg.EMASlowPeriod = 9 },
			wantErr: []string{"must be below the slow period"},
		},
		{
			name:    "negative relative volume period",
			modify:  func(cfg *StrategyConfig) { cfg.RelativeVolumePeriod = -1 },
			wantErr: []string{"relative_volume_period"},
		},
		{
			name:    "daily loss limit out of range",
			modify:  func(cfg *StrategyConfig) { cfg.MaxDailyLossPct = 1 },
			wantErr: []string{"max_daily_loss_pct"},
		},
		{
			name: "multiple problems",
			modify: func(cfg *StrategyConfig) {
				cfg.ATRPeriod = 0
				cfg.VolumeAveragePeriod = 0
				cfg.CommissionPerTrade = -1
			},
			wantErr: []string{"atr_period", "volume_average_period", "commission_per_trade"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultStrategyConfig()
			test.modify(&cfg)

			err := cfg.Validate()
			if len(test.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
			for _, want := range test.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain %q, got %v", want, err)
				}
			}
		})
	}
}

func TestStrategyConfigClone(t *testing.T) {
	// Ensure clones do not share profit targets with the original.
	cfg := DefaultStrategyConfig()
	clone := cfg.Clone()
	assert.True(t, cmp.Equal(cfg, clone))

	clone.ProfitTargets[0].Multiplier = 5
	assert.Equal(t, cfg.ProfitTargets[0].Multiplier, 1.0)
}

func TestLoadStrategyConfig(t *testing.T) {
	dir := t.TempDir()

	// Ensure an empty path yields the default configuration.
	cfg, err := LoadStrategyConfig("")
	assert.NoError(t, err)
	assert.True(t, cmp.Equal(cfg, DefaultStrategyConfig()))

	// Ensure yaml values are layered over the defaults.
	path := filepath.Join(dir, "strategy.yaml")
	content := `
confirmation_bars: 3
volume_multiplier: 2.0
profit_targets:
  - multiplier: 1.5
    allocation: 0.6
  - multiplier: 2.5
    allocation: 0.4
`
	err = os.WriteFile(path, []byte(content), 0o644)
	assert.NoError(t, err)

	cfg, err = LoadStrategyConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, cfg.ConfirmationBars, 3)
	assert.Equal(t, cfg.VolumeMultiplier, 2.0)
	assert.Equal(t, len(cfg.ProfitTargets), 2)
	assert.Equal(t, cfg.ProfitTargets[1], ProfitTarget{Multiplier: 2.5, Allocation: 0.4})
	assert.Equal(t, cfg.ATRPeriod, 14)

	// Ensure invalid configurations are rejected at load time.
	err = os.WriteFile(path, []byte("confirmation_bars: 0\n"), 0o644)
	assert.NoError(t, err)
	_, err = LoadStrategyConfig(path)
	assert.Error(t, err)
	assert.Equal(t, ReasonCode(err), ConfigurationCode)

	// Ensure non-finite yaml values are rejected at load time.
	err = os.WriteFile(path, []byte("min_or_range_pct: .nan\nvolume_multiplier: .inf\n"), 0o644)
	assert.NoError(t, err)
	_, err = LoadStrategyConfig(path)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "min_or_range_pct"))
	assert.True(t, strings.Contains(err.Error(), "volume_multiplier"))

	// Ensure malformed yaml is rejected.
	err = os.WriteFile(path, []byte("confirmation_bars: [\n"), 0o644)
	assert.NoError(t, err)
	_, err = LoadStrategyConfig(path)
	assert.Error(t, err)

	// Ensure missing files are reported.
	_, err = LoadStrategyConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
