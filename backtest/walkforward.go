package backtest

import (
	"fmt"

	"github.com/dnldd/orb/shared"
)

// Window represents a walk-forward split of bars into a training and a testing period.
type Window struct {
	// TrainDays and TestDays are the trading days of each period.
	TrainDays []string
	TestDays  []string
	// Train holds the bars of the training period.
	Train []shared.Bar
	// Test holds the bars of the testing period.
	Test []shared.Bar
}

// WindowResult represents the out of sample result of a walk-forward window.
type WindowResult struct {
	Window Window
	Result *Result
}

// groupByDay splits the provided chronological bars into trading days.
func groupByDay(bars []shared.Bar) ([]string, map[string][]shared.Bar) {
	days := make([]string, 0)
	grouped := make(map[string][]shared.Bar)
	for idx := range bars {
		day := shared.DayKey(bars[idx].Date)
		if _, ok := grouped[day]; !ok {
			days = append(days, day)
		}
		grouped[day] = append(grouped[day], bars[idx])
	}

	return days, grouped
}

// collect concatenates the bars of the provided days.
func collect(days []string, grouped map[string][]shared.Bar) []shared.Bar {
	bars := make([]shared.Bar, 0)
	for _, day := range days {
		bars = append(bars, grouped[day]...)
	}
	return bars
}

// SplitWindows builds rolling walk-forward windows of trainDays training days followed by
// testDays testing days, stepping forward by testDays each window.
func SplitWindows(bars []shared.Bar, trainDays int, testDays int) ([]Window, error) {
	if trainDays <= 0 || testDays <= 0 {
		return nil, &shared.ConfigurationError{
			Field:  "walk_forward",
			Reason: fmt.Sprintf("train and test days must be positive, got %d and %d", trainDays, testDays),
		}
	}

	days, grouped := groupByDay(bars)

	windows := make([]Window, 0)
	for start := 0; start+trainDays+testDays <= len(days); start += testDays {
		train := days[start : start+trainDays]
		test := days[start+trainDays : start+trainDays+testDays]

		windows = append(windows, Window{
			TrainDays: train,
			TestDays:  test,
			Train:     collect(train, grouped),
			Test:      collect(test, grouped),
		})
	}

	return windows, nil
}

// WalkForward backtests each testing period of the provided bars independently. The
// training period of a window warms up the indicators and is not traded.
func (b *Backtester) WalkForward(symbol string, bars []shared.Bar, trainDays int, testDays int) ([]WindowResult, error) {
	windows, err := SplitWindows(bars, trainDays, testDays)
	if err != nil {
		return nil, err
	}

	if len(windows) == 0 {
		days, _ := groupByDay(bars)
		return nil, &shared.InsufficientDataError{Symbol: symbol, Have: len(days), Need: trainDays + testDays}
	}

	results := make([]WindowResult, 0, len(windows))
	for idx := range windows {
		window := windows[idx]
		if len(window.Test) == 0 {
			continue
		}

		combined := make([]shared.Bar, 0, len(window.Train)+len(window.Test))
		combined = append(combined, window.Train...)
		combined = append(combined, window.Test...)

		result, err := b.run(symbol, combined, window.Test[0].Date)
		if err != nil {
			return nil, fmt.Errorf("walk-forward window %s - %s: %w", window.TestDays[0],
				window.TestDays[len(window.TestDays)-1], err)
		}

		results = append(results, WindowResult{Window: window, Result: result})
	}

	b.cfg.Logger.Info().Msgf("walk-forward %s: %d windows of %d/%d days", symbol, len(results), trainDays, testDays)

	return results, nil
}
