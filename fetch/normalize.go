package fetch

import (
	"sort"
	"time"

	"github.com/dnldd/orb/shared"
)

// normalize converts the provided bars to the provided location, orders them
// chronologically and drops duplicate timestamps, keeping the last occurrence.
func normalize(bars []shared.Bar, loc *time.Location) []shared.Bar {
	seen := make(map[int64]int, len(bars))
	normalized := make([]shared.Bar, 0, len(bars))

	for idx := range bars {
		bar := bars[idx]
		bar.Date = bar.Date.In(loc)
		bar.Day = shared.DayKey(bar.Date)

		ts := bar.Date.UnixNano()
		if pos, ok := seen[ts]; ok {
			normalized[pos] = bar
			continue
		}

		seen[ts] = len(normalized)
		normalized = append(normalized, bar)
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Date.Before(normalized[j].Date)
	})

	return normalized
}
