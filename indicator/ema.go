package indicator

import (
	"fmt"
)

// EMA calculates the exponential moving average of the provided values with a smoothing
// factor of 2/(period+1), seeded with the first value.
func EMA(values []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("ema period must be positive, got %d", period)
	}

	ema := make([]float64, len(values))
	if len(values) == 0 {
		return ema, nil
	}

	alpha := 2 / float64(period+1)
	ema[0] = values[0]
	for idx := 1; idx < len(values); idx++ {
		ema[idx] = alpha*values[idx] + (1-alpha)*ema[idx-1]
	}

	return ema, nil
}
