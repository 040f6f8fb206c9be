package shared

// ExitReason represents the reason a trade, or part of it, was exited.
type ExitReason int

const (
	TimeStop ExitReason = iota
	StopLoss
	TargetHit
	TrailingStop
	EndOfData
)

// String stringifies the provided exit reason.
func (r ExitReason) String() string {
	switch r {
	case TimeStop:
		return "time-stop"
	case StopLoss:
		return "stop-loss"
	case TargetHit:
		return "profit-target"
	case TrailingStop:
		return "trailing-stop"
	case EndOfData:
		return "end-of-data"
	default:
		return "unknown"
	}
}

// Direction represents market direction.
type Direction int

const (
	Long Direction = iota
	Short
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Sign returns 1 for long and -1 for short positions.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}
