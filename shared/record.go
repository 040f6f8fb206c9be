package shared

import "time"

// TradeRecord represents a closed trade row of the trade table.
type TradeRecord struct {
	ID               string
	Symbol           string
	Day              string
	Direction        Direction
	EntryDate        time.Time
	EntryPrice       float64
	ExitDate         time.Time
	ExitPrice        float64
	AverageExitPrice float64
	Size             int64
	InitialStop      float64
	InitialRisk      float64
	PnL              float64
	RMultiple        float64
	Commission       float64
	ExitReason       ExitReason
	PartialExits     int
}

// HoldingTime returns the duration the trade was held for.
func (r *TradeRecord) HoldingTime() time.Duration {
	return r.ExitDate.Sub(r.EntryDate)
}

// EquityPoint represents the account equity recorded after a bar was processed.
type EquityPoint struct {
	Date       time.Time
	Equity     float64
	Realized   float64
	Unrealized float64
	OpenSize   int64
}
