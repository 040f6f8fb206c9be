package shared

import "context"

// BarProvider defines the requirements for sourcing historical bars for a symbol.
type BarProvider interface {
	// FetchBars returns the chronologically ordered, deduplicated bars of the provided symbol.
	FetchBars(ctx context.Context, symbol string) ([]Bar, error)
}
