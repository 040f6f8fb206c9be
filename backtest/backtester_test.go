package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/dnldd/orb/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// breakoutSessions builds a flat warm-up session followed by a session whose 98 - 100
// opening range is broken to the upside.
func breakoutSessions(t *testing.T) []shared.Bar {
	t.Helper()
	loc := newYork(t)

	bars := make([]shared.Bar, 0)
	warmup := time.Date(2025, 2, 3, 9, 30, 0, 0, loc)
	for idx := range 78 {
		bars = append(bars, shared.Bar{
			Date:   warmup.Add(time.Duration(idx*5) * time.Minute),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 1000,
		})
	}

	open := time.Date(2025, 2, 4, 9, 30, 0, 0, loc)
	for idx := range 3 {
		bars = append(bars, shared.Bar{
			Date:   open.Add(time.Duration(idx*5) * time.Minute),
			Open:   100,
			High:   100,
			Low:    98,
			Close:  99,
			Volume: 1000,
		})
	}

	prev := 99.0
	for idx, c := range []float64{100.5, 100.6, 100.8, 100.9} {
		bars = append(bars, shared.Bar{
			Date:   open.Add(15*time.Minute + time.Duration(idx*5)*time.Minute),
			Open:   prev,
			High:   max(prev, c) + 0.1,
			Low:    min(prev, c) - 0.1,
			Close:  c,
			Volume: 1600,
		})
		prev = c
	}

	return bars
}

func newBacktester(t *testing.T) *Backtester {
	t.Helper()
	cfg := shared.DefaultStrategyConfig()
	cfg.BreakoutBufferPct = 0
	bt, err := NewBacktester(&BacktesterConfig{Strategy: cfg, Logger: &log.Logger})
	assert.NoError(t, err)
	return bt
}

func TestNewBacktester(t *testing.T) {
	// Ensure a backtester requires a logger.
	_, err := NewBacktester(&BacktesterConfig{Strategy: shared.DefaultStrategyConfig()})
	assert.Error(t, err)

	// Ensure a backtester rejects unknown timeframes.
	cfg := shared.DefaultStrategyConfig()
	cfg.Timeframe = "7m"
	_, err = NewBacktester(&BacktesterConfig{Strategy: cfg, Logger: &log.Logger})
	assert.Error(t, err)
}

func TestBacktesterRun(t *testing.T) {
	bt := newBacktester(t)
	bars := breakoutSessions(t)

	result, err := bt.Run("SPY", bars)
	assert.NoError(t, err)

	// Ensure the breakout is signalled, traded and summarized.
	assert.Equal(t, result.Symbol, "SPY")
	assert.Equal(t, len(result.Signals), 1)
	assert.Equal(t, result.Signals[0].Direction, shared.Long)
	assert.Equal(t, len(result.Trades), 1)
	assert.Equal(t, result.Trades[0].ExitReason, shared.EndOfData)
	assert.Equal(t, len(result.Equity), len(bars))
	assert.Equal(t, result.Report.TotalTrades, 1)
	assert.Equal(t, result.Report.LongTrades, 1)
	assert.True(t, approxEqual(result.Report.NetPnL, result.Trades[0].PnL))
	assert.True(t, approxEqual(result.Report.FinalEquity, result.Equity[len(result.Equity)-1].Equity))

	// Ensure the input bars are not modified.
	assert.Equal(t, bars[0].Symbol, "")
	assert.Equal(t, bars[0].ATR, 0.0)
}

func TestBacktesterInsufficientData(t *testing.T) {
	bt := newBacktester(t)
	bars := breakoutSessions(t)[:10]

	// Ensure short histories fail with an insufficient data error.
	_, err := bt.Run("SPY", bars)
	assert.Error(t, err)
	var insufficient *shared.InsufficientDataError
	assert.True(t, errors.As(err, &insufficient))
	assert.Equal(t, shared.ReasonCode(err), shared.InsufficientDataCode)
}
