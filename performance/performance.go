package performance

import (
	"math"
	"time"

	"github.com/dnldd/orb/shared"
)

const (
	// InfiniteProfitFactor is reported as the profit factor of a winning trade list without losses.
	InfiniteProfitFactor = 999.0
)

// Config represents the configuration of a performance summary.
type Config struct {
	// InitialCapital is the starting equity of the summarized run.
	InitialCapital float64
	// BarsPerYear annualises the per-bar sharpe ratio.
	BarsPerYear float64
}

// Report represents the performance summary of a set of closed trades and their equity curve.
type Report struct {
	TotalTrades     int
	Wins            int
	Losses          int
	BreakevenTrades int
	LongTrades      int
	ShortTrades     int
	WinRate         float64

	GrossProfit           float64
	GrossLoss             float64
	NetPnL                float64
	ProfitFactor          float64
	ProfitFactorUnbounded bool

	AverageWin  float64
	AverageLoss float64
	LargestWin  float64
	LargestLoss float64
	AverageR    float64

	Sharpe             float64
	MaxDrawdown        float64
	MaxDrawdownAmount  float64
	AverageHoldingTime time.Duration

	InitialCapital float64
	FinalEquity    float64
	TotalReturn    float64
	ExitReasons    map[string]int
}

// Summarize computes the performance report of the provided trades and equity curve. The
// inputs are not modified.
func Summarize(trades []shared.TradeRecord, equity []shared.EquityPoint, cfg Config) Report {
	report := Report{
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    cfg.InitialCapital,
		ExitReasons:    make(map[string]int),
	}

	summarizeTrades(&report, trades)

	if len(equity) > 0 {
		report.FinalEquity = equity[len(equity)-1].Equity
	}
	if cfg.InitialCapital > 0 {
		report.TotalReturn = (report.FinalEquity - cfg.InitialCapital) / cfg.InitialCapital
	}

	report.Sharpe = Sharpe(equity, cfg.BarsPerYear)
	report.MaxDrawdown, report.MaxDrawdownAmount = MaxDrawdown(equity)

	return report
}

// summarizeTrades fills the trade statistics of the provided report.
func summarizeTrades(report *Report, trades []shared.TradeRecord) {
	report.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var totalR float64
	var holding time.Duration
	for idx := range trades {
		trade := &trades[idx]

		switch {
		case trade.PnL > 0:
			report.Wins++
			report.GrossProfit += trade.PnL
			report.LargestWin = math.Max(report.LargestWin, trade.PnL)
		case trade.PnL < 0:
			report.Losses++
			report.GrossLoss += -trade.PnL
			report.LargestLoss = math.Min(report.LargestLoss, trade.PnL)
		default:
			report.BreakevenTrades++
		}

		if trade.Direction == shared.Long {
			report.LongTrades++
		} else {
			report.ShortTrades++
		}

		totalR += trade.RMultiple
		holding += trade.HoldingTime()
		report.ExitReasons[trade.ExitReason.String()]++
	}

	count := float64(len(trades))
	report.WinRate = float64(report.Wins) / count
	report.NetPnL = report.GrossProfit - report.GrossLoss
	report.AverageR = totalR / count
	report.AverageHoldingTime = holding / time.Duration(len(trades))

	if report.Wins > 0 {
		report.AverageWin = report.GrossProfit / float64(report.Wins)
	}
	if report.Losses > 0 {
		report.AverageLoss = -report.GrossLoss / float64(report.Losses)
	}

	switch {
	case report.GrossLoss > 0:
		report.ProfitFactor = report.GrossProfit / report.GrossLoss
	case report.GrossProfit > 0:
		report.ProfitFactor = InfiniteProfitFactor
		report.ProfitFactorUnbounded = true
	default:
		report.ProfitFactor = 0
	}
}

// Sharpe returns the annualised sharpe ratio of the bar to bar returns of the provided equity
// curve. It is zero when fewer than two returns exist or returns do not vary.
func Sharpe(equity []shared.EquityPoint, barsPerYear float64) float64 {
	returns := make([]float64, 0, len(equity))
	for idx := 1; idx < len(equity); idx++ {
		prev := equity[idx-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[idx].Equity-prev)/prev)
	}

	if len(returns) < 2 || barsPerYear <= 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var squares float64
	for _, r := range returns {
		squares += (r - mean) * (r - mean)
	}
	stdev := math.Sqrt(squares / float64(len(returns)-1))
	if stdev == 0 {
		return 0
	}

	return mean / stdev * math.Sqrt(barsPerYear)
}

// MaxDrawdown returns the largest peak to trough decline of the provided equity curve as a
// fraction of the peak and as an amount.
func MaxDrawdown(equity []shared.EquityPoint) (float64, float64) {
	var peak, maxFraction, maxAmount float64
	for idx := range equity {
		value := equity[idx].Equity
		if idx == 0 || value > peak {
			peak = value
		}

		amount := peak - value
		maxAmount = math.Max(maxAmount, amount)
		if peak > 0 {
			maxFraction = math.Max(maxFraction, amount/peak)
		}
	}

	return maxFraction, maxAmount
}
