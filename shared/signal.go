package shared

import (
	"fmt"
	"time"
)

// Signal represents a confirmed opening range breakout for a symbol.
type Signal struct {
	Symbol            string
	Date              time.Time
	Day               string
	Direction         Direction
	Price             float64
	ConfirmationCount int
	OpeningRange      OpeningRange
	ATR               float64
}

// NewSignal initializes a new breakout signal from the provided bar.
func NewSignal(bar Bar, direction Direction, confirmations int, openingRange OpeningRange) Signal {
	return Signal{
		Symbol:            bar.Symbol,
		Date:              bar.Date,
		Day:               bar.Day,
		Direction:         direction,
		Price:             bar.Close,
		ConfirmationCount: confirmations,
		OpeningRange:      openingRange,
		ATR:               bar.ATR,
	}
}

// String stringifies the signal.
func (s Signal) String() string {
	return fmt.Sprintf("%s %s breakout at %.4f on %s (%d confirmations)", s.Symbol, s.Direction.String(),
		s.Price, s.Date.Format(DateLayout), s.ConfirmationCount)
}
