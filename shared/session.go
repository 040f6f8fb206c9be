package shared

import (
	"fmt"
	"time"
)

const (
	// minutesPerDay is the number of minutes in a day.
	minutesPerDay = 24 * 60
)

// Clock represents a time of day as minutes past midnight in new york time.
type Clock int

// ParseClock parses a "15:04" formatted time of day.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(SessionTimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("parsing session time %q: %w", s, err)
	}

	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the time of day of the provided time in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Add returns the clock advanced by the provided number of minutes.
func (c Clock) Add(minutes int) Clock {
	return Clock((int(c) + minutes) % minutesPerDay)
}

// On returns the clock time on the day of the provided time.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
}

// String stringifies the clock.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// SessionTimes represents the parsed intraday schedule of the strategy.
type SessionTimes struct {
	Open               Clock
	OpeningRangeEnd    Clock
	TradingWindowStart Clock
	TradingWindowEnd   Clock
	TimeStop           Clock
}

// InTradingWindow checks whether the provided time is eligible for entries.
func (s SessionTimes) InTradingWindow(t time.Time) bool {
	clock := ClockOf(t)
	return clock >= s.OpeningRangeEnd && clock >= s.TradingWindowStart && clock <= s.TradingWindowEnd
}

// DayKey returns the trading day key of the provided time.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// OpeningRange represents the high and low established in the first minutes of a session.
type OpeningRange struct {
	Day   string
	Open  time.Time
	End   time.Time
	High  float64
	Low   float64
	Range float64
	Valid bool
	// Gap is the fractional gap between the session's first open and the previous
	// session's last close. It is zero for the first session in a series.
	Gap float64
}
