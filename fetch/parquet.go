package fetch

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dnldd/orb/shared"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

var _ shared.BarProvider = (*ParquetProvider)(nil)

// BarRecord is the parquet schema of intraday bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ParquetProviderConfig represents the parquet bar provider configuration.
type ParquetProviderConfig struct {
	// Dir is the directory holding a <SYMBOL>.parquet file per symbol.
	Dir string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ParquetProviderConfig) Validate() error {
	if cfg.Dir == "" {
		return fmt.Errorf("parquet provider directory cannot be empty")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("parquet provider logger cannot be nil")
	}

	return nil
}

// ParquetProvider serves historic bars from parquet files.
type ParquetProvider struct {
	cfg *ParquetProviderConfig
	loc *time.Location
}

// NewParquetProvider initializes a new parquet bar provider.
func NewParquetProvider(cfg *ParquetProviderConfig) (*ParquetProvider, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating parquet provider config: %w", err)
	}

	loc, err := time.LoadLocation(shared.NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading new york location: %w", err)
	}

	return &ParquetProvider{cfg: cfg, loc: loc}, nil
}

// barPath returns the parquet file path of the provided symbol.
func (p *ParquetProvider) barPath(symbol string) string {
	return filepath.Join(p.cfg.Dir, strings.ToUpper(symbol)+".parquet")
}

// FetchBars returns the normalized bars of the provided symbol.
func (p *ParquetProvider) FetchBars(ctx context.Context, symbol string) ([]shared.Bar, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	path := p.barPath(symbol)
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, &shared.DataSourceError{Symbol: symbol, Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	bars := make([]shared.Bar, 0, len(records))
	for _, r := range records {
		bar := shared.Bar{
			Symbol: symbol,
			Date:   time.UnixMilli(r.Timestamp),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}

		err = bar.Validate()
		if err != nil {
			return nil, &shared.DataSourceError{Symbol: symbol, Err: err}
		}

		bars = append(bars, bar)
	}

	bars = normalize(bars, p.loc)
	p.cfg.Logger.Debug().Msgf("loaded %d %s bars from %s", len(bars), symbol, path)

	return bars, nil
}

// WriteBars writes the provided bars of a symbol to its parquet file, merging them with
// any bars already stored. New bars replace stored bars with the same timestamp.
func (p *ParquetProvider) WriteBars(symbol string, bars []shared.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	records := make([]BarRecord, 0, len(bars))
	for idx := range bars {
		records = append(records, BarRecord{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: bars[idx].Date.UnixMilli(),
			Open:      bars[idx].Open,
			High:      bars[idx].High,
			Low:       bars[idx].Low,
			Close:     bars[idx].Close,
			Volume:    bars[idx].Volume,
		})
	}

	path := p.barPath(symbol)
	var existing []BarRecord
	_, err := os.Stat(path)
	if err == nil {
		existing, err = parquet.ReadFile[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading existing bars from %s: %w", path, err)
		}
	}

	err = os.MkdirAll(p.cfg.Dir, 0o755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", p.cfg.Dir, err)
	}

	err = parquet.WriteFile(path, mergeBarRecords(existing, records))
	if err != nil {
		return fmt.Errorf("writing bars for %s: %w", symbol, err)
	}

	return nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring incoming records
// over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing []BarRecord, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	slices.SortFunc(merged, func(a, b BarRecord) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	return merged
}
