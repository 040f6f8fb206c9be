package shared

import (
	"fmt"
	"time"
)

const (
	// SessionTimeLayout is the format layout for parsing session times in a day.
	SessionTimeLayout = "15:04"
	// DateLayout is the format layout for parsing dates.
	DateLayout = "2006-01-02 15:04:05"
	// DayLayout is the format layout for trading day keys.
	DayLayout = "2006-01-02"
	// NewYorkLocation is the locale used for all session times.
	NewYorkLocation = "America/New_York"

	// tradingDaysPerYear is the number of trading days used for annualisation.
	tradingDaysPerYear = 252
	// regularSessionMinutes is the length of the regular equity session.
	regularSessionMinutes = 390
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	FiveMinute
	FifteenMinute
	ThirtyMinute
	OneHour
)

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1m"
	case FiveMinute:
		return "5m"
	case FifteenMinute:
		return "15m"
	case ThirtyMinute:
		return "30m"
	case OneHour:
		return "1H"
	default:
		return "unknown"
	}
}

// Minutes returns the number of minutes covered by a single bar of the timeframe.
func (t Timeframe) Minutes() int {
	switch t {
	case OneMinute:
		return 1
	case FiveMinute:
		return 5
	case FifteenMinute:
		return 15
	case ThirtyMinute:
		return 30
	case OneHour:
		return 60
	default:
		return 0
	}
}

// ParseTimeframe parses the provided timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "1m":
		return OneMinute, nil
	case "5m":
		return FiveMinute, nil
	case "15m":
		return FifteenMinute, nil
	case "30m":
		return ThirtyMinute, nil
	case "1H", "1h":
		return OneHour, nil
	default:
		return 0, fmt.Errorf("unknown timeframe %q", s)
	}
}

// BarsPerYear returns the number of regular session bars in a trading year for the
// provided timeframe.
func BarsPerYear(t Timeframe) float64 {
	minutes := t.Minutes()
	if minutes == 0 {
		return 0
	}

	return float64(tradingDaysPerYear*regularSessionMinutes) / float64(minutes)
}

// NewYorkTime returns the current time in new york (EST/EDT adjusted automatically).
func NewYorkTime() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading new york timezone: %w", err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}
