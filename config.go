package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/dnldd/orb/fetch"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Supported result stores.
const (
	noStore     = "none"
	csvStore    = "csv"
	sqliteStore = "sqlite"
	rqliteStore = "rqlite"
)

// Config is the configuration struct for the service.
type Config struct {
	// Symbols represents the backtested symbols.
	Symbols []string
	// DataDir is the directory holding the historic bar files.
	DataDir string
	// DataFormat is the format of the historic bar files, json or parquet.
	DataFormat string
	// StrategyFile is the optional yaml strategy configuration file.
	StrategyFile string
	// Store is the result store, one of none, csv, sqlite or rqlite.
	Store string
	// OutputDir is the csv store output directory.
	OutputDir string
	// SQLitePath is the sqlite store database path.
	SQLitePath string
	// DBEndpoint is the rqlite store endpoint.
	DBEndpoint string
	// DBUser is the rqlite store user.
	DBUser string
	// DBPass is the rqlite store user pass.
	DBPass string
	// MaxWorkers bounds the number of symbols backtested concurrently.
	MaxWorkers int
	// Schedule is an optional cron expression for recurring runs.
	Schedule string
	// LogLevel is the application log level.
	LogLevel string
	// WalkForward is the walk-forward flag.
	WalkForward bool
	// TrainDays is the number of training days of a walk-forward window.
	TrainDays int
	// TestDays is the number of testing days of a walk-forward window.
	TestDays int
	// GridFile is the optional yaml parameter grid searched per symbol.
	GridFile string
	// MinTrades is the number of trades a grid combination needs to be ranked.
	MinTrades int

	registeredFlags map[string]bool
}

// applyDefaults fills the unset optional fields.
func (cfg *Config) applyDefaults() {
	if cfg.DataFormat == "" {
		cfg.DataFormat = fetch.JSONFormat
	}
	if cfg.Store == "" {
		cfg.Store = noStore
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = zerolog.InfoLevel.String()
	}
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if len(cfg.Symbols) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no symbols provided for backtest"))
	}
	if cfg.DataDir == "" {
		errs = errors.Join(errs, fmt.Errorf("data directory cannot be an empty string"))
	}

	switch cfg.DataFormat {
	case fetch.JSONFormat, fetch.ParquetFormat:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown data format %q", cfg.DataFormat))
	}

	switch cfg.Store {
	case noStore:
	case csvStore:
		if cfg.OutputDir == "" {
			errs = errors.Join(errs, fmt.Errorf("output directory cannot be an empty string for the csv store"))
		}
	case sqliteStore:
		if cfg.SQLitePath == "" {
			errs = errors.Join(errs, fmt.Errorf("sqlite path cannot be an empty string for the sqlite store"))
		}
	case rqliteStore:
		if cfg.DBEndpoint == "" {
			errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string for the rqlite store"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown store %q", cfg.Store))
	}

	if cfg.MaxWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("max workers cannot be negative"))
	}
	if cfg.WalkForward && (cfg.TrainDays <= 0 || cfg.TestDays <= 0) {
		errs = errors.Join(errs, fmt.Errorf("walk-forward train and test days must be positive"))
	}
	if cfg.WalkForward && cfg.GridFile != "" {
		errs = errors.Join(errs, fmt.Errorf("walk-forward and parameter search cannot be combined"))
	}
	if cfg.MinTrades < 0 {
		errs = errors.Join(errs, fmt.Errorf("min trades cannot be negative"))
	}

	_, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("parsing log level: %w", err))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value any
		usage string
	}{
		{"symbols", &cfg.Symbols, "the comma separated backtested symbols"},
		{"datadir", &cfg.DataDir, "the historic bar data directory"},
		{"dataformat", &cfg.DataFormat, "the historic bar data format, json or parquet"},
		{"strategyfile", &cfg.StrategyFile, "the yaml strategy configuration file"},
		{"store", &cfg.Store, "the result store, one of none, csv, sqlite or rqlite"},
		{"outputdir", &cfg.OutputDir, "the csv store output directory"},
		{"sqlitepath", &cfg.SQLitePath, "the sqlite store database path"},
		{"dbendpoint", &cfg.DBEndpoint, "the rqlite store endpoint"},
		{"dbuser", &cfg.DBUser, "the rqlite store user"},
		{"dbpass", &cfg.DBPass, "the rqlite store user pass"},
		{"maxworkers", &cfg.MaxWorkers, "the number of symbols backtested concurrently"},
		{"schedule", &cfg.Schedule, "the cron expression of recurring runs"},
		{"loglevel", &cfg.LogLevel, "the log level"},
		{"walkforward", &cfg.WalkForward, "the walk-forward flag"},
		{"traindays", &cfg.TrainDays, "the training days of a walk-forward window"},
		{"testdays", &cfg.TestDays, "the testing days of a walk-forward window"},
		{"gridfile", &cfg.GridFile, "the yaml parameter grid searched per symbol"},
		{"mintrades", &cfg.MinTrades, "the trades a grid combination needs to be ranked"},
	}

	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
