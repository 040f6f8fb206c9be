package shared

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestExitReasonString(t *testing.T) {
	tests := []struct {
		name   string
		reason ExitReason
		want   string
	}{
		{"time stop", TimeStop, "time-stop"},
		{"stop loss", StopLoss, "stop-loss"},
		{"profit target", TargetHit, "profit-target"},
		{"trailing stop", TrailingStop, "trailing-stop"},
		{"end of data", EndOfData, "end-of-data"},
		{"unknown", ExitReason(999), "unknown"},
	}

	for _, test := range tests {
		str := test.reason.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
	}
}

func TestDirectionString(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		want      string
	}{
		{"long", Long, "long"},
		{"short", Short, "short"},
		{"unknown", Direction(999), "unknown"},
	}

	for _, test := range tests {
		str := test.direction.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
	}
}

func TestDirectionSign(t *testing.T) {
	// Ensure long positions profit from rising prices and short positions from falling ones.
	assert.Equal(t, Long.Sign(), float64(1))
	assert.Equal(t, Short.Sign(), float64(-1))
}
