package indicator

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestEMA(t *testing.T) {
	// Ensure the period must be positive.
	_, err := EMA([]float64{1, 2}, 0)
	assert.Error(t, err)

	// Ensure empty inputs produce an empty average.
	ema, err := EMA(nil, 3)
	assert.NoError(t, err)
	assert.Equal(t, len(ema), 0)

	// Ensure the average is seeded with the first value and smoothed by 2/(period+1).
	ema, err = EMA([]float64{10, 12, 12, 6}, 3)
	assert.NoError(t, err)
	want := []float64{10, 11, 11.5, 8.75}
	for idx := range want {
		assert.True(t, approxEqual(ema[idx], want[idx]))
	}

	// Ensure a constant series keeps a constant average.
	ema, err = EMA([]float64{5, 5, 5, 5}, 9)
	assert.NoError(t, err)
	assert.Equal(t, ema, []float64{5, 5, 5, 5})
}
