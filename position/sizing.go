package position

import (
	"fmt"
	"math"

	"github.com/dnldd/orb/shared"
)

const (
	// wideRangeRatio is the opening range to ATR ratio above which size is reduced.
	wideRangeRatio = 1.5
	// narrowRangeRatio is the opening range to ATR ratio below which size is reduced.
	narrowRangeRatio = 0.5
	// wideRangeAdjustment scales the risk of unusually wide opening ranges.
	wideRangeAdjustment = 0.7
	// narrowRangeAdjustment scales the risk of unusually narrow opening ranges.
	narrowRangeAdjustment = 0.5
)

// SizingInput represents the inputs of a position size calculation.
type SizingInput struct {
	Capital    float64
	EntryPrice float64
	StopPrice  float64
	ORRange    float64
	ATR        float64
	// History holds the closed trades of the symbol, oldest first.
	History []shared.TradeRecord
}

// Sizer computes risk based position sizes scaled by a fractional kelly criterion.
type Sizer struct {
	cfg shared.StrategyConfig
}

// NewSizer initializes a new position sizer.
func NewSizer(cfg shared.StrategyConfig) (*Sizer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating sizer config: %w", err)
	}

	return &Sizer{cfg: cfg.Clone()}, nil
}

// winStats returns the win rate and win/loss ratio of the trailing closed trades, falling
// back to the configured priors until enough trades have closed.
func (s *Sizer) winStats(history []shared.TradeRecord) (float64, float64) {
	if len(history) > s.cfg.KellyLookback {
		history = history[len(history)-s.cfg.KellyLookback:]
	}

	if len(history) < s.cfg.KellyMinTrades {
		return s.cfg.KellyWinRate, s.cfg.KellyWinLossRatio
	}

	var wins int
	var grossWin, grossLoss float64
	for idx := range history {
		pnl := history[idx].PnL
		switch {
		case pnl > 0:
			wins++
			grossWin += pnl
		case pnl < 0:
			grossLoss += -pnl
		}
	}

	losses := len(history) - wins
	winRate := float64(wins) / float64(len(history))
	if wins == 0 || losses == 0 || grossLoss == 0 {
		// The payoff ratio is undefined without both wins and losses.
		return winRate, s.cfg.KellyWinLossRatio
	}

	avgWin := grossWin / float64(wins)
	avgLoss := grossLoss / float64(losses)

	return winRate, avgWin / avgLoss
}

// KellyFraction returns the safety scaled kelly fraction for the provided trade history.
func (s *Sizer) KellyFraction(history []shared.TradeRecord) float64 {
	p, b := s.winStats(history)
	if b <= 0 {
		return 0
	}

	kelly := (p*b - (1 - p)) / b
	if kelly < 0 {
		kelly = 0
	}

	return kelly * s.cfg.KellySafetyFactor
}

// VolatilityAdjustment returns the risk scale for the provided opening range and ATR.
func VolatilityAdjustment(orRange float64, atr float64) float64 {
	if atr <= 0 {
		return 1
	}

	ratio := orRange / atr
	switch {
	case ratio > wideRangeRatio:
		return wideRangeAdjustment
	case ratio < narrowRangeRatio:
		return narrowRangeAdjustment
	default:
		return 1
	}
}

// finite checks the provided values are neither NaN nor infinite.
func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Size returns the number of shares to trade for the provided inputs.
func (s *Sizer) Size(in SizingInput) (int64, error) {
	if !finite(in.Capital, in.EntryPrice, in.StopPrice, in.ORRange, in.ATR) {
		return 0, &shared.InvalidSizingError{Reason: "non-finite sizing input"}
	}
	if in.Capital <= 0 {
		return 0, &shared.InvalidSizingError{Reason: fmt.Sprintf("non-positive capital %.2f", in.Capital)}
	}
	if in.EntryPrice <= 0 {
		return 0, &shared.InvalidSizingError{Reason: fmt.Sprintf("non-positive entry price %.4f", in.EntryPrice)}
	}

	stopDistance := math.Abs(in.EntryPrice - in.StopPrice)
	if stopDistance == 0 {
		return 0, &shared.InvalidSizingError{Reason: "zero stop distance"}
	}

	risk := math.Min(s.KellyFraction(in.History), s.cfg.MaxRiskPerTradePct)
	risk *= VolatilityAdjustment(in.ORRange, in.ATR)

	shares := math.Floor(in.Capital * risk / stopDistance)
	maxShares := math.Floor(in.Capital * s.cfg.MaxPositionSizePct / in.EntryPrice)
	minShares := math.Floor(in.Capital * s.cfg.MinPositionSizePct / in.EntryPrice)

	shares = math.Max(math.Min(shares, maxShares), minShares)
	if shares <= 0 {
		return 0, &shared.InvalidSizingError{
			Reason: fmt.Sprintf("zero shares for capital %.2f at %.4f", in.Capital, in.EntryPrice),
		}
	}

	return int64(shares), nil
}
