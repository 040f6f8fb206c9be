package position

import (
	"fmt"
	"math"
	"time"

	"github.com/dnldd/orb/shared"
	"github.com/google/uuid"
)

// Status represents the status of a trade.
type Status int

const (
	PendingEntry Status = iota
	Open
	PartiallyClosed
	Closed
)

// String stringifies the provided trade status.
func (s Status) String() string {
	switch s {
	case PendingEntry:
		return "pending-entry"
	case Open:
		return "open"
	case PartiallyClosed:
		return "partially-closed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// stopSource represents what last set a trade's stop.
type stopSource int

const (
	initialStop stopSource = iota
	breakevenStop
	trailingStop
)

// ExitConfig represents the exit rules applied to a trade.
type ExitConfig struct {
	StopMultiplier      float64
	BreakevenMultiplier float64
	TrailingMultiplier  float64
	Targets             []shared.ProfitTarget
	TimeStop            shared.Clock
	SlippagePct         float64
	Commission          float64
}

// NewExitConfig derives the exit rules of the provided strategy configuration.
func NewExitConfig(cfg shared.StrategyConfig) (ExitConfig, error) {
	session, err := cfg.Session()
	if err != nil {
		return ExitConfig{}, err
	}

	return ExitConfig{
		StopMultiplier:      cfg.InitialStopMultiplier,
		BreakevenMultiplier: cfg.BreakevenTriggerMultiplier,
		TrailingMultiplier:  cfg.TrailingStopMultiplier,
		Targets:             append([]shared.ProfitTarget(nil), cfg.ProfitTargets...),
		TimeStop:            session.TimeStop,
		SlippagePct:         cfg.SlippagePct,
		Commission:          cfg.CommissionPerTrade,
	}, nil
}

// EntryFill returns the fill price of an entry at the provided price after slippage.
func EntryFill(price float64, direction shared.Direction, slippagePct float64) float64 {
	return price * (1 + direction.Sign()*slippagePct)
}

// ExitFill returns the fill price of a market exit at the provided price after slippage.
func ExitFill(price float64, direction shared.Direction, slippagePct float64) float64 {
	return price * (1 - direction.Sign()*slippagePct)
}

// TargetLevel represents a scale-out level of a trade.
type TargetLevel struct {
	Multiplier float64
	Allocation float64
	Price      float64
	Reached    bool
}

// Exit represents a full or partial exit of a trade.
type Exit struct {
	Date     time.Time
	Price    float64
	Quantity int64
	Reason   shared.ExitReason
	PnL      float64
}

// TradeParams represents the entry details of a trade.
type TradeParams struct {
	Symbol    string
	Direction shared.Direction
	Date      time.Time
	// EntryPrice is the fill price of the entry, slippage included.
	EntryPrice float64
	Size       int64
	ORRange    float64
}

// Trade represents a position opened on a breakout signal and managed through its exits.
type Trade struct {
	ID            string
	Symbol        string
	Day           string
	Direction     shared.Direction
	EntryDate     time.Time
	EntryPrice    float64
	InitialSize   int64
	RemainingSize int64
	InitialStop   float64
	StopLoss      float64
	ORRange       float64
	Targets       []TargetLevel
	Exits         []Exit
	Status        Status
	RealizedPnL   float64
	Commission    float64

	cfg            ExitConfig
	stopSource     stopSource
	breakevenArmed bool
	trailing       bool
	bestPrice      float64
}

// NewTrade initializes a new open trade.
func NewTrade(params TradeParams, cfg ExitConfig) (*Trade, error) {
	switch {
	case params.Size <= 0:
		return nil, fmt.Errorf("trade size must be positive, got %d", params.Size)
	case params.EntryPrice <= 0 || math.IsNaN(params.EntryPrice) || math.IsInf(params.EntryPrice, 0):
		return nil, fmt.Errorf("trade entry price must be positive, got %v", params.EntryPrice)
	case params.ORRange <= 0 || math.IsNaN(params.ORRange):
		return nil, fmt.Errorf("trade opening range must be positive, got %v", params.ORRange)
	case params.Direction != shared.Long && params.Direction != shared.Short:
		return nil, fmt.Errorf("unknown trade direction %s", params.Direction.String())
	case len(cfg.Targets) == 0:
		return nil, fmt.Errorf("trade requires at least one profit target")
	}

	sign := params.Direction.Sign()
	stop := params.EntryPrice - sign*cfg.StopMultiplier*params.ORRange

	targets := make([]TargetLevel, len(cfg.Targets))
	for idx, target := range cfg.Targets {
		targets[idx] = TargetLevel{
			Multiplier: target.Multiplier,
			Allocation: target.Allocation,
			Price:      params.EntryPrice + sign*target.Multiplier*params.ORRange,
		}
	}

	trade := &Trade{
		ID:            uuid.New().String(),
		Symbol:        params.Symbol,
		Day:           shared.DayKey(params.Date),
		Direction:     params.Direction,
		EntryDate:     params.Date,
		EntryPrice:    params.EntryPrice,
		InitialSize:   params.Size,
		RemainingSize: params.Size,
		InitialStop:   stop,
		StopLoss:      stop,
		ORRange:       params.ORRange,
		Targets:       targets,
		Exits:         make([]Exit, 0, len(targets)),
		Status:        Open,
		RealizedPnL:   -cfg.Commission,
		Commission:    cfg.Commission,
		cfg:           cfg,
		bestPrice:     params.EntryPrice,
	}

	return trade, nil
}

// tightenStop moves the stop to the provided price if it is in the trade's favour.
func (t *Trade) tightenStop(price float64) bool {
	switch {
	case t.Direction == shared.Long && price > t.StopLoss:
		t.StopLoss = price
		return true
	case t.Direction == shared.Short && price < t.StopLoss:
		t.StopLoss = price
		return true
	default:
		return false
	}
}

// stopHit checks whether the provided bar traded through the stop.
func (t *Trade) stopHit(bar shared.Bar) bool {
	if t.Direction == shared.Long {
		return bar.Low <= t.StopLoss
	}
	return bar.High >= t.StopLoss
}

// stopFill returns the stop fill price for the provided bar. Bars opening beyond the stop
// fill at the open.
func (t *Trade) stopFill(bar shared.Bar) float64 {
	price := t.StopLoss
	if t.Direction == shared.Long {
		price = math.Min(price, bar.Open)
	} else {
		price = math.Max(price, bar.Open)
	}

	return ExitFill(price, t.Direction, t.cfg.SlippagePct)
}

// reached checks whether the provided bar traded at the provided price in the trade's favour.
func (t *Trade) reached(bar shared.Bar, price float64) bool {
	if t.Direction == shared.Long {
		return bar.High >= price
	}
	return bar.Low <= price
}

// favourable returns the most favourable price of the bar for the trade.
func (t *Trade) favourable(bar shared.Bar) float64 {
	if t.Direction == shared.Long {
		return bar.High
	}
	return bar.Low
}

// better returns the more favourable of the provided prices for the trade.
func (t *Trade) better(a float64, b float64) float64 {
	if t.Direction == shared.Long {
		return math.Max(a, b)
	}
	return math.Min(a, b)
}

// exit records an exit of the provided quantity.
func (t *Trade) exit(date time.Time, price float64, quantity int64, reason shared.ExitReason) Exit {
	pnl := t.Direction.Sign()*(price-t.EntryPrice)*float64(quantity) - t.cfg.Commission

	exit := Exit{
		Date:     date,
		Price:    price,
		Quantity: quantity,
		Reason:   reason,
		PnL:      pnl,
	}

	t.Exits = append(t.Exits, exit)
	t.RemainingSize -= quantity
	t.RealizedPnL += pnl
	t.Commission += t.cfg.Commission

	if t.RemainingSize == 0 {
		t.Status = Closed
	} else {
		t.Status = PartiallyClosed
	}

	return exit
}

// targetQuantity returns the quantity exited at the target level at the provided index.
func (t *Trade) targetQuantity(idx int) int64 {
	level := t.Targets[idx]
	quantity := int64(math.Floor(float64(t.InitialSize) * level.Allocation))
	if quantity < 1 {
		quantity = 1
	}

	if idx == len(t.Targets)-1 || quantity > t.RemainingSize {
		quantity = t.RemainingSize
	}

	return quantity
}

// Update applies the exit rules to the provided bar and returns the exits it triggered.
// Rules apply in order: time stop, stop-loss, breakeven, profit targets, trailing stop.
func (t *Trade) Update(bar shared.Bar) ([]Exit, error) {
	if t.Status == Closed {
		return nil, fmt.Errorf("trade %s is already closed", t.ID)
	}

	exits := make([]Exit, 0, 1)

	if shared.ClockOf(bar.Date) >= t.cfg.TimeStop {
		exit := t.exit(bar.Date, ExitFill(bar.Close, t.Direction, t.cfg.SlippagePct), t.RemainingSize, shared.TimeStop)
		return append(exits, exit), t.Verify()
	}

	if t.stopHit(bar) {
		reason := shared.StopLoss
		if t.stopSource == trailingStop {
			reason = shared.TrailingStop
		}

		exit := t.exit(bar.Date, t.stopFill(bar), t.RemainingSize, reason)
		return append(exits, exit), t.Verify()
	}

	if t.cfg.BreakevenMultiplier > 0 && !t.breakevenArmed {
		excursion := t.Direction.Sign() * (t.favourable(bar) - t.EntryPrice)
		if excursion >= t.cfg.BreakevenMultiplier*t.ORRange {
			t.breakevenArmed = true
			if t.tightenStop(t.EntryPrice) {
				t.stopSource = breakevenStop
			}
		}
	}

	wasTrailing := t.trailing
	for idx := range t.Targets {
		level := &t.Targets[idx]
		if level.Reached {
			continue
		}
		if t.RemainingSize == 0 || !t.reached(bar, level.Price) {
			// Levels are ordered by distance, farther levels cannot be reached either.
			break
		}

		level.Reached = true
		exits = append(exits, t.exit(bar.Date, level.Price, t.targetQuantity(idx), shared.TargetHit))

		if t.cfg.TrailingMultiplier > 0 {
			t.trailing = true
			t.bestPrice = t.better(t.bestPrice, level.Price)
		}
	}

	if t.trailing && t.RemainingSize > 0 {
		if wasTrailing {
			t.bestPrice = t.better(t.bestPrice, t.favourable(bar))
		}

		candidate := t.bestPrice - t.Direction.Sign()*t.cfg.TrailingMultiplier*t.ORRange
		if t.tightenStop(candidate) {
			t.stopSource = trailingStop
		}
	}

	return exits, t.Verify()
}

// ForceClose exits the remaining size at the provided bar's close.
func (t *Trade) ForceClose(bar shared.Bar, reason shared.ExitReason) (Exit, error) {
	if t.Status == Closed {
		return Exit{}, fmt.Errorf("trade %s is already closed", t.ID)
	}

	exit := t.exit(bar.Date, ExitFill(bar.Close, t.Direction, t.cfg.SlippagePct), t.RemainingSize, reason)
	return exit, t.Verify()
}

// UnrealizedPnL returns the open profit or loss of the remaining size at the provided price.
func (t *Trade) UnrealizedPnL(price float64) float64 {
	return t.Direction.Sign() * (price - t.EntryPrice) * float64(t.RemainingSize)
}

// Verify asserts the exited and remaining quantities add up to the initial size.
func (t *Trade) Verify() error {
	var exited int64
	for idx := range t.Exits {
		exited += t.Exits[idx].Quantity
	}

	switch {
	case t.RemainingSize < 0:
		return &shared.InvariantError{TradeID: t.ID, Reason: fmt.Sprintf("negative remaining size %d", t.RemainingSize)}
	case exited+t.RemainingSize != t.InitialSize:
		return &shared.InvariantError{TradeID: t.ID, Reason: fmt.Sprintf("exited %d + remaining %d != initial %d",
			exited, t.RemainingSize, t.InitialSize)}
	case (t.Status == Closed) != (t.RemainingSize == 0):
		return &shared.InvariantError{TradeID: t.ID, Reason: fmt.Sprintf("status %s with remaining size %d",
			t.Status.String(), t.RemainingSize)}
	default:
		return nil
	}
}

// Record returns the closed trade row of the trade.
func (t *Trade) Record() (shared.TradeRecord, error) {
	if t.Status != Closed || len(t.Exits) == 0 {
		return shared.TradeRecord{}, fmt.Errorf("trade %s is not closed", t.ID)
	}

	var notional float64
	var quantity int64
	for idx := range t.Exits {
		notional += t.Exits[idx].Price * float64(t.Exits[idx].Quantity)
		quantity += t.Exits[idx].Quantity
	}

	last := t.Exits[len(t.Exits)-1]
	risk := math.Abs(t.EntryPrice-t.InitialStop) * float64(t.InitialSize)

	var rMultiple float64
	if risk > 0 {
		rMultiple = t.RealizedPnL / risk
	}

	return shared.TradeRecord{
		ID:               t.ID,
		Symbol:           t.Symbol,
		Day:              t.Day,
		Direction:        t.Direction,
		EntryDate:        t.EntryDate,
		EntryPrice:       t.EntryPrice,
		ExitDate:         last.Date,
		ExitPrice:        last.Price,
		AverageExitPrice: notional / float64(quantity),
		Size:             t.InitialSize,
		InitialStop:      t.InitialStop,
		InitialRisk:      risk,
		PnL:              t.RealizedPnL,
		RMultiple:        rMultiple,
		Commission:       t.Commission,
		ExitReason:       last.Reason,
		PartialExits:     len(t.Exits),
	}, nil
}
