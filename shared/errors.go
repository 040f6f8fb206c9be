package shared

import (
	"errors"
	"fmt"
)

// Reason codes attached to per-symbol failures.
const (
	InsufficientDataCode = "insufficient-data"
	InvalidSizingCode    = "invalid-sizing"
	ConfigurationCode    = "configuration"
	DataSourceCode       = "data-source"
	InvariantCode        = "invariant"
	PersistenceCode      = "persistence"
	UnknownCode          = "unknown"
)

// InsufficientDataError is returned when a symbol has fewer bars than the longest
// indicator lookback.
type InsufficientDataError struct {
	Symbol string
	Have   int
	Need   int
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d bars, need %d", e.Symbol, e.Have, e.Need)
}

// InvalidSizingError is returned when a position size cannot be computed.
type InvalidSizingError struct {
	Reason string
}

// Error implements the error interface.
func (e *InvalidSizingError) Error() string {
	return fmt.Sprintf("invalid position sizing: %s", e.Reason)
}

// ConfigurationError is returned when a configuration value is out of range or
// contradicts another one.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// DataSourceError is returned when bars for a symbol cannot be loaded or are malformed.
type DataSourceError struct {
	Symbol string
	Err    error
}

// Error implements the error interface.
func (e *DataSourceError) Error() string {
	return fmt.Sprintf("loading bars for %s: %v", e.Symbol, e.Err)
}

// Unwrap returns the underlying error.
func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// InvariantError is returned when a trade's bookkeeping no longer holds.
type InvariantError struct {
	TradeID string
	Reason  string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("trade %s invariant violated: %s", e.TradeID, e.Reason)
}

// PersistenceError is returned when results cannot be written to a store.
type PersistenceError struct {
	Store string
	Err   error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting to %s: %v", e.Store, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ReasonCode returns the reason code of the provided error.
func ReasonCode(err error) string {
	var insufficientData *InsufficientDataError
	var invalidSizing *InvalidSizingError
	var configuration *ConfigurationError
	var dataSource *DataSourceError
	var invariant *InvariantError
	var persistence *PersistenceError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &insufficientData):
		return InsufficientDataCode
	case errors.As(err, &invalidSizing):
		return InvalidSizingCode
	case errors.As(err, &configuration):
		return ConfigurationCode
	case errors.As(err, &dataSource):
		return DataSourceCode
	case errors.As(err, &invariant):
		return InvariantCode
	case errors.As(err, &persistence):
		return PersistenceCode
	default:
		return UnknownCode
	}
}
