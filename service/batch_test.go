package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/orb/backtest"
	"github.com/dnldd/orb/performance"
	"github.com/dnldd/orb/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// breakoutBars builds a flat warm-up session followed by a session whose 98 - 100
// opening range is broken to the upside.
func breakoutBars(t *testing.T, symbol string) []shared.Bar {
	t.Helper()
	loc, err := time.LoadLocation(shared.NewYorkLocation)
	assert.NoError(t, err)

	bars := make([]shared.Bar, 0)
	warmup := time.Date(2025, 2, 3, 9, 30, 0, 0, loc)
	for idx := range 78 {
		bars = append(bars, shared.Bar{
			Symbol: symbol,
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
			Symbol: symbol,
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
			Symbol: symbol,
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

// fakeProvider serves fixed bars per symbol.
type fakeProvider struct {
	bars map[string][]shared.Bar
}

func (p *fakeProvider) FetchBars(_ context.Context, symbol string) ([]shared.Bar, error) {
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, &shared.DataSourceError{Symbol: symbol, Err: fmt.Errorf("no bars")}
	}
	return bars, nil
}

// fakeStore records persisted results.
type fakeStore struct {
	mtx       sync.Mutex
	trades    map[string]int
	summaries map[string]performance.Report
	runs      map[string]struct{}
	failOn    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trades:    make(map[string]int),
		summaries: make(map[string]performance.Report),
		runs:      make(map[string]struct{}),
	}
}

func (s *fakeStore) PersistTrades(_ context.Context, runID string, symbol string, trades []shared.TradeRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if symbol == s.failOn {
		return &shared.PersistenceError{Store: "fake", Err: fmt.Errorf("disk full")}
	}
	s.runs[runID] = struct{}{}
	s.trades[symbol] += len(trades)
	return nil
}

func (s *fakeStore) PersistEquity(_ context.Context, _ string, _ string, _ []shared.EquityPoint) error {
	return nil
}

func (s *fakeStore) PersistSummary(_ context.Context, _ string, symbol string, report performance.Report) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.summaries[symbol] = report
	return nil
}

func (s *fakeStore) Close() error {
	return nil
}

func (s *fakeStore) runCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.runs)
}

func testStrategy() shared.StrategyConfig {
	cfg := shared.DefaultStrategyConfig()
	cfg.BreakoutBufferPct = 0
	return cfg
}

func TestBatchConfigValidate(t *testing.T) {
	provider := &fakeProvider{}

	tests := []struct {
		name    string
		cfg     BatchConfig
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  BatchConfig{Symbols: []string{"SPY"}, Provider: provider, Strategy: testStrategy(), Logger: &log.Logger},
		},
		{
			name:    "no symbols",
			cfg:     BatchConfig{Provider: provider, Strategy: testStrategy(), Logger: &log.Logger},
			wantErr: true,
		},
		{
			name:    "no provider",
			cfg:     BatchConfig{Symbols: []string{"SPY"}, Strategy: testStrategy(), Logger: &log.Logger},
			wantErr: true,
		},
		{
			name: "negative workers",
			cfg: BatchConfig{Symbols: []string{"SPY"}, Provider: provider, Strategy: testStrategy(),
				MaxWorkers: -1, Logger: &log.Logger},
			wantErr: true,
		},
		{
			name: "walk-forward without windows",
			cfg: BatchConfig{Symbols: []string{"SPY"}, Provider: provider, Strategy: testStrategy(),
				WalkForward: true, Logger: &log.Logger},
			wantErr: true,
		},
		{
			name: "walk-forward with a parameter grid",
			cfg: BatchConfig{Symbols: []string{"SPY"}, Provider: provider, Strategy: testStrategy(),
				WalkForward: true, TrainDays: 1, TestDays: 1, Grid: &backtest.Grid{}, Logger: &log.Logger},
			wantErr: true,
		},
		{
			name: "negative min trades",
			cfg: BatchConfig{Symbols: []string{"SPY"}, Provider: provider, Strategy: testStrategy(),
				Grid: &backtest.Grid{}, MinTrades: -1, Logger: &log.Logger},
			wantErr: true,
		},
		{
			name:    "no logger",
			cfg:     BatchConfig{Symbols: []string{"SPY"}, Provider: provider, Strategy: testStrategy()},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBatchRun(t *testing.T) {
	provider := &fakeProvider{bars: map[string][]shared.Bar{
		"SPY": breakoutBars(t, "SPY"),
		"QQQ": breakoutBars(t, "QQQ"),
		"IWM": breakoutBars(t, "IWM")[:10],
		"DIA": breakoutBars(t, "DIA"),
	}}
	store := newFakeStore()
	store.failOn = "DIA"

	batch, err := NewBatch(&BatchConfig{
		Symbols:    []string{"spy", "QQQ", "IWM", "MISSING", "DIA"},
		Provider:   provider,
		Store:      store,
		Strategy:   testStrategy(),
		MaxWorkers: 2,
		Logger:     &log.Logger,
	})
	assert.NoError(t, err)

	result, err := batch.Run(context.Background())
	assert.NoError(t, err)

	// Ensure every symbol is processed independently.
	assert.NotEqual(t, result.RunID, "")
	assert.Equal(t, result.Processed, int64(5))
	assert.Equal(t, result.Failed, int64(3))
	assert.Equal(t, len(result.Symbols), 5)

	codes := make(map[string]string)
	for _, res := range result.Symbols {
		codes[res.Symbol] = res.Code
	}
	assert.Equal(t, codes, map[string]string{
		"SPY":     "",
		"QQQ":     "",
		"IWM":     shared.InsufficientDataCode,
		"MISSING": shared.DataSourceCode,
		"DIA":     shared.PersistenceCode,
	})

	// Ensure results are persisted per symbol under the run id.
	assert.Equal(t, result.Symbols[0].Symbol, "SPY")
	assert.NotNil(t, result.Symbols[0].Result)
	assert.Equal(t, store.trades["SPY"], 1)
	assert.Equal(t, store.trades["QQQ"], 1)
	assert.Equal(t, store.summaries["SPY"].TotalTrades, 1)
	_, ok := store.runs[result.RunID]
	assert.True(t, ok)

	// Ensure the summary reports the totals.
	summary := result.Summary()
	assert.True(t, strings.Contains(summary, "5 symbols processed, 3 failed, 2 trades"))
}

func TestBatchWalkForward(t *testing.T) {
	provider := &fakeProvider{bars: map[string][]shared.Bar{"SPY": breakoutBars(t, "SPY")}}
	store := newFakeStore()

	batch, err := NewBatch(&BatchConfig{
		Symbols:     []string{"SPY"},
		Provider:    provider,
		Store:       store,
		Strategy:    testStrategy(),
		WalkForward: true,
		TrainDays:   1,
		TestDays:    1,
		Logger:      &log.Logger,
	})
	assert.NoError(t, err)

	result, err := batch.Run(context.Background())
	assert.NoError(t, err)

	// Ensure windows are persisted under their first testing day.
	assert.Equal(t, result.Failed, int64(0))
	assert.Equal(t, len(result.Symbols[0].Windows), 1)
	assert.Nil(t, result.Symbols[0].Result)
	assert.Equal(t, store.trades["SPY@2025-02-04"], 1)
}

func TestBatchParameterSearch(t *testing.T) {
	provider := &fakeProvider{bars: map[string][]shared.Bar{
		"SPY": breakoutBars(t, "SPY"),
		"QQQ": breakoutBars(t, "QQQ"),
	}}
	store := newFakeStore()

	batch, err := NewBatch(&BatchConfig{
		Symbols:  []string{"SPY"},
		Provider: provider,
		Store:    store,
		Strategy: testStrategy(),
		Grid: &backtest.Grid{
			MinORRangePct:    []float64{0.05, 0.002},
			ConfirmationBars: []int{1, 2},
		},
		MinTrades: 1,
		Logger:    &log.Logger,
	})
	assert.NoError(t, err)

	result, err := batch.Run(context.Background())
	assert.NoError(t, err)

	// Ensure the best combination is kept and persisted under the symbol.
	res := result.Symbols[0]
	assert.NoError(t, res.Err)
	assert.Equal(t, len(res.Trials), 4)
	assert.True(t, res.Trials[0].Eligible)
	assert.Equal(t, res.Trials[0].Strategy.MinORRangePct, 0.002)
	assert.Equal(t, res.Result.Report.TotalTrades, 1)
	assert.Equal(t, store.trades["SPY"], 1)
	assert.Equal(t, store.summaries["SPY"].TotalTrades, 1)

	// Ensure a search without an eligible combination fails the symbol.
	batch, err = NewBatch(&BatchConfig{
		Symbols:   []string{"QQQ"},
		Provider:  provider,
		Store:     store,
		Strategy:  testStrategy(),
		Grid:      &backtest.Grid{MinORRangePct: []float64{0.05}},
		MinTrades: 1,
		Logger:    &log.Logger,
	})
	assert.NoError(t, err)

	result, err = batch.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, result.Failed, int64(1))
	assert.Error(t, result.Symbols[0].Err)
	assert.Equal(t, len(result.Symbols[0].Trials), 1)
	assert.Equal(t, store.trades["QQQ"], 0)
}

func TestBatchRunCancelled(t *testing.T) {
	provider := &fakeProvider{bars: map[string][]shared.Bar{"SPY": breakoutBars(t, "SPY")}}
	batch, err := NewBatch(&BatchConfig{
		Symbols:  []string{"SPY"},
		Provider: provider,
		Strategy: testStrategy(),
		Logger:   &log.Logger,
	})
	assert.NoError(t, err)

	// Ensure a cancelled context interrupts the run.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = batch.Run(ctx)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBatchSchedule(t *testing.T) {
	provider := &fakeProvider{bars: map[string][]shared.Bar{"SPY": breakoutBars(t, "SPY")}}
	store := newFakeStore()

	newScheduled := func(schedule string) *Batch {
		batch, err := NewBatch(&BatchConfig{
			Symbols:  []string{"SPY"},
			Provider: provider,
			Store:    store,
			Strategy: testStrategy(),
			Schedule: schedule,
			Logger:   &log.Logger,
		})
		assert.NoError(t, err)
		return batch
	}

	// Ensure a schedule is required.
	assert.Error(t, newScheduled("").Schedule(context.Background()))

	// Ensure invalid cron expressions are rejected.
	assert.Error(t, newScheduled("not a cron").Schedule(context.Background()))

	// Ensure scheduled runs execute until the context is cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error)
	go func() {
		done <- newScheduled("* * * * * *").Schedule(ctx)
	}()

	for store.runCount() == 0 && ctx.Err() == nil {
		time.Sleep(50 * time.Millisecond)
	}
	assert.True(t, store.runCount() > 0)

	cancel()
	assert.NoError(t, <-done)
}
