package shared

import (
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestNewSignal(t *testing.T) {
	loc, err := time.LoadLocation(NewYorkLocation)
	assert.NoError(t, err)

	date := time.Date(2025, 2, 4, 9, 50, 0, 0, loc)
	bar := Bar{Symbol: "SPY", Date: date, Day: DayKey(date), Close: 101.2, ATR: 0.4}
	orRange := OpeningRange{Day: DayKey(date), High: 101, Low: 99, Range: 2, Valid: true}

	// Ensure a signal carries the bar and opening range context.
	signal := NewSignal(bar, Long, 2, orRange)
	assert.Equal(t, signal.Symbol, "SPY")
	assert.Equal(t, signal.Date, date)
	assert.Equal(t, signal.Day, "2025-02-04")
	assert.Equal(t, signal.Direction, Long)
	assert.Equal(t, signal.Price, 101.2)
	assert.Equal(t, signal.ConfirmationCount, 2)
	assert.Equal(t, signal.OpeningRange, orRange)
	assert.Equal(t, signal.ATR, 0.4)
	assert.True(t, strings.Contains(signal.String(), "SPY long breakout"))
}
