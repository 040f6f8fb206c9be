package indicator

import (
	"math"
	"time"

	"github.com/dnldd/orb/shared"
)

// OpeningRanges computes the opening range of every trading day in the provided bars.
// Bars are expected in chronological order. The returned days preserve that order.
func OpeningRanges(bars []shared.Bar, session shared.SessionTimes, periodMinutes int, minRangePct float64) (map[string]shared.OpeningRange, []string) {
	ranges := make(map[string]shared.OpeningRange)
	days := make([]string, 0)

	var prevClose float64
	var hasPrevClose bool

	for idx := range bars {
		bar := &bars[idx]
		day := shared.DayKey(bar.Date)

		orRange, ok := ranges[day]
		if !ok {
			open := session.Open.On(bar.Date)
			orRange = shared.OpeningRange{
				Day:  day,
				Open: open,
				End:  open.Add(time.Duration(periodMinutes) * time.Minute),
				High: math.Inf(-1),
				Low:  math.Inf(1),
			}

			if hasPrevClose && prevClose > 0 {
				orRange.Gap = math.Abs(bar.Open-prevClose) / prevClose
			}

			days = append(days, day)
		}

		if !bar.Date.Before(orRange.Open) && bar.Date.Before(orRange.End) {
			orRange.High = math.Max(orRange.High, bar.High)
			orRange.Low = math.Min(orRange.Low, bar.Low)
		}

		ranges[day] = orRange
		prevClose = bar.Close
		hasPrevClose = true
	}

	for day, orRange := range ranges {
		if math.IsInf(orRange.High, 0) || math.IsInf(orRange.Low, 0) {
			// No bars fell inside the opening range window.
			orRange.High = 0
			orRange.Low = 0
			orRange.Valid = false
			ranges[day] = orRange
			continue
		}

		orRange.Range = orRange.High - orRange.Low
		orRange.Valid = orRange.Low > 0 && orRange.Range/orRange.Low >= minRangePct
		ranges[day] = orRange
	}

	return ranges, days
}
