package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/dnldd/orb/shared"
	"github.com/peterldowns/testy/assert"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestATR(t *testing.T) {
	start := time.Date(2025, 2, 4, 9, 30, 0, 0, time.UTC)
	bars := []shared.Bar{
		{Date: start, High: 11, Low: 9, Close: 10},
		{Date: start.Add(5 * time.Minute), High: 12, Low: 10, Close: 11},
		{Date: start.Add(10 * time.Minute), High: 11.5, Low: 10.5, Close: 11},
		{Date: start.Add(15 * time.Minute), High: 15, Low: 12, Close: 14},
	}

	// Ensure a non-positive period is rejected.
	_, err := ATR(bars, 0)
	assert.Error(t, err)

	// Ensure fewer bars than the period yield undefined values.
	atr, err := ATR(bars[:2], 3)
	assert.NoError(t, err)
	assert.Equal(t, atr, []float64{0, 0})

	// Ensure the seed is the mean of the first period true ranges and later values are
	// wilder smoothed.
	atr, err = ATR(bars, 3)
	assert.NoError(t, err)
	assert.Equal(t, len(atr), 4)
	assert.Equal(t, atr[0], float64(0))
	assert.Equal(t, atr[1], float64(0))

	// True ranges: 2, 2, 1, 4 (gap above the previous close of 11).
	seed := (2.0 + 2.0 + 1.0) / 3
	assert.True(t, approxEqual(atr[2], seed))
	assert.True(t, approxEqual(atr[3], (seed*2+4)/3))
}
