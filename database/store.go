package database

import (
	"context"

	"github.com/dnldd/orb/performance"
	"github.com/dnldd/orb/shared"
)

const (
	// SQL statements shared by the sql backed stores.
	createTradeTableSQL   = "CREATE TABLE IF NOT EXISTS trade (id TEXT PRIMARY KEY, runid TEXT, symbol TEXT, day TEXT, direction TEXT, entrydate INTEGER, entryprice REAL, exitdate INTEGER, exitprice REAL, averageexitprice REAL, size INTEGER, initialstop REAL, initialrisk REAL, pnl REAL, rmultiple REAL, commission REAL, exitreason TEXT, partialexits INTEGER)"
	createEquityTableSQL  = "CREATE TABLE IF NOT EXISTS equity (runid TEXT, symbol TEXT, date INTEGER, equity REAL, realized REAL, unrealized REAL, opensize INTEGER, PRIMARY KEY (runid, symbol, date))"
	createSummaryTableSQL = "CREATE TABLE IF NOT EXISTS summary (runid TEXT, symbol TEXT, totaltrades INTEGER, wins INTEGER, losses INTEGER, winrate REAL, netpnl REAL, profitfactor REAL, profitfactorunbounded INTEGER, averager REAL, sharpe REAL, maxdrawdown REAL, maxdrawdownamount REAL, totalreturn REAL, finalequity REAL, createdon INTEGER, PRIMARY KEY (runid, symbol))"
	persistTradeSQL       = "INSERT OR REPLACE INTO trade(id, runid, symbol, day, direction, entrydate, entryprice, exitdate, exitprice, averageexitprice, size, initialstop, initialrisk, pnl, rmultiple, commission, exitreason, partialexits) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	persistEquitySQL      = "INSERT OR REPLACE INTO equity(runid, symbol, date, equity, realized, unrealized, opensize) VALUES(?,?,?,?,?,?,?)"
	persistSummarySQL     = "INSERT OR REPLACE INTO summary(runid, symbol, totaltrades, wins, losses, winrate, netpnl, profitfactor, profitfactorunbounded, averager, sharpe, maxdrawdown, maxdrawdownamount, totalreturn, finalequity, createdon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
)

// TradeStorer defines the requirements for storing backtest results.
type TradeStorer interface {
	// PersistTrades stores the provided closed trades of a symbol.
	PersistTrades(ctx context.Context, runID string, symbol string, trades []shared.TradeRecord) error
	// PersistEquity stores the provided equity curve of a symbol.
	PersistEquity(ctx context.Context, runID string, symbol string, equity []shared.EquityPoint) error
	// PersistSummary stores the provided performance report of a symbol.
	PersistSummary(ctx context.Context, runID string, symbol string, report performance.Report) error
	// Close releases the resources held by the store.
	Close() error
}

// tableStatements returns the statements creating the result tables.
func tableStatements() []string {
	return []string{createTradeTableSQL, createEquityTableSQL, createSummaryTableSQL}
}

// tradeParams returns the positional parameters persisting the provided trade.
func tradeParams(runID string, trade *shared.TradeRecord) []any {
	return []any{trade.ID, runID, trade.Symbol, trade.Day, trade.Direction.String(),
		trade.EntryDate.UnixMilli(), trade.EntryPrice, trade.ExitDate.UnixMilli(), trade.ExitPrice,
		trade.AverageExitPrice, trade.Size, trade.InitialStop, trade.InitialRisk, trade.PnL,
		trade.RMultiple, trade.Commission, trade.ExitReason.String(), trade.PartialExits}
}

// equityParams returns the positional parameters persisting the provided equity point.
func equityParams(runID string, symbol string, point *shared.EquityPoint) []any {
	return []any{runID, symbol, point.Date.UnixMilli(), point.Equity, point.Realized,
		point.Unrealized, point.OpenSize}
}

// summaryParams returns the positional parameters persisting the provided report.
func summaryParams(runID string, symbol string, report *performance.Report, createdOn int64) []any {
	var unbounded int
	if report.ProfitFactorUnbounded {
		unbounded = 1
	}

	return []any{runID, symbol, report.TotalTrades, report.Wins, report.Losses, report.WinRate,
		report.NetPnL, report.ProfitFactor, unbounded, report.AverageR, report.Sharpe,
		report.MaxDrawdown, report.MaxDrawdownAmount, report.TotalReturn, report.FinalEquity, createdOn}
}
