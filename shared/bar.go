package shared

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Bar represents a single intraday OHLCV bar for a symbol.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64

	// Metadata and derived fields.
	Day           string
	ATR           float64
	ATRAverage    float64
	VolumeAverage float64
	// RelativeVolume is the volume against the mean volume of the relative volume period,
	// the current bar included. Zero when the filter is disabled.
	RelativeVolume float64
	// EMAFast and EMASlow are the trend filter averages of the close. Zero when disabled.
	EMAFast float64
	EMASlow float64
	// Ready is set once every indicator lookback window for the bar is filled.
	Ready bool
}

// TrueRange returns the true range of the bar against the previous close.
func (b *Bar) TrueRange(prevClose float64, hasPrev bool) float64 {
	barRange := b.High - b.Low
	if !hasPrev {
		return barRange
	}

	return max(barRange, abs(b.High-prevClose), abs(b.Low-prevClose))
}

// Validate asserts the bar holds sane prices.
func (b *Bar) Validate() error {
	switch {
	case b.Date.IsZero():
		return fmt.Errorf("bar date cannot be zero")
	case b.High < b.Low:
		return fmt.Errorf("bar high %.4f is below low %.4f at %s", b.High, b.Low, b.Date.Format(DateLayout))
	case b.Low <= 0:
		return fmt.Errorf("bar low must be positive at %s", b.Date.Format(DateLayout))
	case b.Volume < 0:
		return fmt.Errorf("bar volume cannot be negative at %s", b.Date.Format(DateLayout))
	default:
		return nil
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ParseBars parses bars from the provided json data in the provided location.
func ParseBars(data []gjson.Result, symbol string, loc *time.Location) ([]Bar, error) {
	bars := make([]Bar, 0, len(data))

	for idx := range data {
		var bar Bar

		bar.Open = data[idx].Get("open").Float()
		bar.Low = data[idx].Get("low").Float()
		bar.High = data[idx].Get("high").Float()
		bar.Close = data[idx].Get("close").Float()
		bar.Volume = data[idx].Get("volume").Int()
		bar.Symbol = symbol

		dt, err := time.ParseInLocation(DateLayout, data[idx].Get("date").String(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing bar date: %w", err)
		}

		bar.Date = dt
		bar.Day = DayKey(dt)

		err = bar.Validate()
		if err != nil {
			return nil, fmt.Errorf("validating %s bar: %w", symbol, err)
		}

		bars = append(bars, bar)
	}

	return bars, nil
}
