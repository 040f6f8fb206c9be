package fetch

import (
	"fmt"

	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
)

// Supported bar data formats.
const (
	JSONFormat    = "json"
	ParquetFormat = "parquet"
)

// NewProvider initializes the bar provider of the provided data format.
func NewProvider(format string, dir string, logger *zerolog.Logger) (shared.BarProvider, error) {
	switch format {
	case JSONFormat:
		return NewJSONProvider(&JSONProviderConfig{Dir: dir, Logger: logger})
	case ParquetFormat:
		return NewParquetProvider(&ParquetProviderConfig{Dir: dir, Logger: logger})
	default:
		return nil, &shared.ConfigurationError{
			Field:  "dataformat",
			Reason: fmt.Sprintf("unknown bar data format %q", format),
		}
	}
}
