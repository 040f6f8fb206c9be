package indicator

import (
	"fmt"

	"github.com/dnldd/orb/shared"
)

// ATR calculates the average true range of the provided bars using wilder's smoothing.
// The first period-1 entries are undefined and left at zero. The value at period-1 is
// seeded with the mean of the first period true ranges.
func ATR(bars []shared.Bar, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("atr period must be positive, got %d", period)
	}

	atr := make([]float64, len(bars))
	if len(bars) < period {
		return atr, nil
	}

	var seed float64
	for idx := range bars {
		var tr float64
		if idx == 0 {
			tr = bars[idx].TrueRange(0, false)
		} else {
			tr = bars[idx].TrueRange(bars[idx-1].Close, true)
		}

		switch {
		case idx < period-1:
			seed += tr
		case idx == period-1:
			seed += tr
			atr[idx] = seed / float64(period)
		default:
			atr[idx] = (atr[idx-1]*float64(period-1) + tr) / float64(period)
		}
	}

	return atr, nil
}
