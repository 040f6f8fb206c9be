package database

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnldd/orb/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	assert.NoError(t, err)
	return rows
}

func TestCSVStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Ensure a store requires a directory and a logger.
	_, err := NewCSVStore("", &log.Logger)
	assert.Error(t, err)
	_, err = NewCSVStore(dir, nil)
	assert.Error(t, err)

	store, err := NewCSVStore(dir, &log.Logger)
	assert.NoError(t, err)

	assert.NoError(t, store.PersistTrades(ctx, "run", "spy", testTrades()))
	assert.NoError(t, store.PersistEquity(ctx, "run", "spy", testEquity()))
	assert.NoError(t, store.PersistSummary(ctx, "run", "spy", testReport()))
	assert.NoError(t, store.Close())

	// Ensure trades are written with fixed decimals under the run directory.
	trades := readCSV(t, filepath.Join(dir, "run", "SPY_trades.csv"))
	assert.Equal(t, len(trades), 3)
	assert.Equal(t, trades[0], tradeHeader)
	assert.Equal(t, trades[1][0], "a")
	assert.Equal(t, trades[1][3], "long")
	assert.Equal(t, trades[1][4], "2025-02-04 15:00:00")
	assert.Equal(t, trades[1][5], "100.0500")
	assert.Equal(t, trades[1][12], "170.50")
	assert.Equal(t, trades[2][12], "-152.00")
	assert.Equal(t, trades[2][15], "stop-loss")

	equity := readCSV(t, filepath.Join(dir, "run", "SPY_equity.csv"))
	assert.Equal(t, len(equity), 4)
	assert.Equal(t, equity[2][1], "100120.50")
	assert.Equal(t, equity[2][4], "75")

	summary := readCSV(t, filepath.Join(dir, "run", "SPY_summary.csv"))
	assert.Equal(t, len(summary), 2)
	assert.Equal(t, summary[1][1], "2")
	assert.Equal(t, summary[1][6], "999.0000")
	assert.Equal(t, summary[1][7], "true")

	// Ensure a cancelled context skips the write.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = store.PersistTrades(cancelled, "other", "SPY", testTrades())
	assert.Error(t, err)
	assert.Equal(t, shared.ReasonCode(err), shared.PersistenceCode)
	assert.True(t, errors.Is(err, context.Canceled))
	err = store.PersistEquity(cancelled, "other", "SPY", testEquity())
	assert.Equal(t, shared.ReasonCode(err), shared.PersistenceCode)
	err = store.PersistSummary(cancelled, "other", "SPY", testReport())
	assert.Equal(t, shared.ReasonCode(err), shared.PersistenceCode)
	_, err = os.Stat(filepath.Join(dir, "other"))
	assert.True(t, os.IsNotExist(err))
}

func TestCSVStoreWriteFailure(t *testing.T) {
	dir := t.TempDir()

	// A regular file in place of the run directory fails the write.
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "run"), []byte("taken"), 0o644))

	store, err := NewCSVStore(dir, &log.Logger)
	assert.NoError(t, err)

	// Ensure write failures are reported as persistence errors.
	err = store.PersistTrades(context.Background(), "run", "SPY", testTrades())
	assert.Error(t, err)
	assert.Equal(t, shared.ReasonCode(err), shared.PersistenceCode)
}
