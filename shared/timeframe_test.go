package shared

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestNewYorkTime(t *testing.T) {
	// Ensure new york locale times can be created.
	now, loc, err := NewYorkTime()
	assert.NoError(t, err)
	assert.Equal(t, now.Location().String(), "America/New_York")
	assert.Equal(t, now.Location().String(), loc.String())
}

func TestTimeframeString(t *testing.T) {
	tests := []struct {
		name      string
		timeframe Timeframe
		want      string
	}{
		{"one minute", OneMinute, "1m"},
		{"five minute", FiveMinute, "5m"},
		{"fifteen minute", FifteenMinute, "15m"},
		{"thirty minute", ThirtyMinute, "30m"},
		{"one hour", OneHour, "1H"},
		{"unknown", Timeframe(999), "unknown"},
	}

	for _, test := range tests {
		str := test.timeframe.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
	}
}

func TestParseTimeframe(t *testing.T) {
	// Ensure every known timeframe round trips through its string form.
	for _, tf := range []Timeframe{OneMinute, FiveMinute, FifteenMinute, ThirtyMinute, OneHour} {
		parsed, err := ParseTimeframe(tf.String())
		assert.NoError(t, err)
		assert.Equal(t, parsed, tf)
	}

	// Ensure unknown timeframes are rejected.
	_, err := ParseTimeframe("2d")
	assert.Error(t, err)
}

func TestBarsPerYear(t *testing.T) {
	// Ensure bars per year scale with the timeframe.
	assert.Equal(t, BarsPerYear(FiveMinute), float64(252*78))
	assert.Equal(t, BarsPerYear(OneMinute), float64(252*390))
	assert.Equal(t, BarsPerYear(Timeframe(999)), float64(0))
}
