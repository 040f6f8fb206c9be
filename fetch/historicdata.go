package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dnldd/orb/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

var _ shared.BarProvider = (*JSONProvider)(nil)

// JSONProviderConfig represents the json bar provider configuration.
type JSONProviderConfig struct {
	// Dir is the directory holding a <SYMBOL>.json file per symbol.
	Dir string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *JSONProviderConfig) Validate() error {
	if cfg.Dir == "" {
		return fmt.Errorf("json provider directory cannot be empty")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("json provider logger cannot be nil")
	}

	return nil
}

// JSONProvider serves historic bars from json files.
type JSONProvider struct {
	cfg *JSONProviderConfig
	loc *time.Location
}

// NewJSONProvider initializes a new json bar provider.
func NewJSONProvider(cfg *JSONProviderConfig) (*JSONProvider, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating json provider config: %w", err)
	}

	loc, err := time.LoadLocation(shared.NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading new york location: %w", err)
	}

	return &JSONProvider{cfg: cfg, loc: loc}, nil
}

// loadHistoricData loads the bar entries of the json file at the provided path. Both a
// bare array of bars and an object holding them under "bars" are accepted.
func loadHistoricData(path string) (string, []gjson.Result, error) {
	readb, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading historic data from file with path '%s': %w", path, err)
	}

	if !gjson.ValidBytes(readb) {
		return "", nil, fmt.Errorf("invalid json in file with path '%s'", path)
	}

	root := gjson.ParseBytes(readb)
	if root.IsArray() {
		return "", root.Array(), nil
	}

	return root.Get("symbol").String(), root.Get("bars").Array(), nil
}

// FetchBars returns the normalized bars of the provided symbol.
func (p *JSONProvider) FetchBars(ctx context.Context, symbol string) ([]shared.Bar, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(p.cfg.Dir, strings.ToUpper(symbol)+".json")
	fileSymbol, data, err := loadHistoricData(path)
	if err != nil {
		return nil, &shared.DataSourceError{Symbol: symbol, Err: err}
	}

	if fileSymbol != "" && !strings.EqualFold(fileSymbol, symbol) {
		return nil, &shared.DataSourceError{
			Symbol: symbol,
			Err:    fmt.Errorf("file %s holds bars for %s", path, fileSymbol),
		}
	}

	bars, err := shared.ParseBars(data, symbol, p.loc)
	if err != nil {
		return nil, &shared.DataSourceError{Symbol: symbol, Err: err}
	}

	bars = normalize(bars, p.loc)
	p.cfg.Logger.Debug().Msgf("loaded %d %s bars from %s", len(bars), symbol, path)

	return bars, nil
}
