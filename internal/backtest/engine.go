package backtest

import (
	"math"
	"time"

	"noiseband/internal/config"
	"noiseband/internal/logger"
	"noiseband/internal/market"
)

// position is the engine's single piece of mutable simulation state. It is
// reset on every flat transition and never escapes the engine.
type position struct {
	side       Side
	entryPrice float64
	entryTime  time.Time
	shares     int64
	stopPrice  float64
}

// Engine is the breakout state machine. One instance owns one simulation;
// Run is a single deterministic forward pass and must not be called
// concurrently on the same instance.
type Engine struct {
	profile      config.StrategyProfile
	sessionClose market.TimeOfDay

	aum     float64
	dayOpen float64
	pos     position
	trades  []Trade
	equity  []EquityPoint
}

func NewEngine(profile config.StrategyProfile, sessionClose market.TimeOfDay) *Engine {
	return &Engine{profile: profile, sessionClose: sessionClose}
}

// Run replays the joined sequence bar by bar and returns the trade ledger
// and equity curve. Exit rules pre-empt each other in a fixed order on the
// same bar: stop loss, then entry, then market close / signal reversal.
func (e *Engine) Run(ticks []Tick) (Result, error) {
	if len(ticks) == 0 {
		return Result{}, ErrNoInput
	}
	e.aum = e.profile.InitialAUM
	e.pos = position{}
	e.trades = nil
	e.equity = make([]EquityPoint, 0, len(ticks))

	var curDate time.Time
	for _, tick := range ticks {
		bar := tick.Bar
		if d := bar.Date(); !d.Equal(curDate) {
			curDate = d
			e.dayOpen = bar.Open
		}
		e.step(bar, tick.Upper, tick.Lower)
		e.equity = append(e.equity, EquityPoint{Time: bar.Time, AUM: e.aum})
	}

	return Result{
		InitialAUM: e.profile.InitialAUM,
		FinalAUM:   e.aum,
		Trades:     e.trades,
		Equity:     e.equity,
	}, nil
}

func (e *Engine) step(bar market.Bar, upper, lower float64) {
	buf := e.profile.BoundsBufferFraction
	upperBuf := upper * (1 + buf)
	lowerBuf := lower * (1 - buf)

	var (
		exitPending bool
		exitReason  ExitReason
		exitPrice   float64
	)

	// Stop loss first: it wins over any same-bar signal and fills at the
	// stop price, not the close.
	if e.profile.StopLossFraction > 0 && e.pos.side != Flat {
		switch {
		case e.pos.side == Long && bar.Low <= e.pos.stopPrice:
			exitPending, exitReason, exitPrice = true, ExitStopLoss, e.pos.stopPrice
		case e.pos.side == Short && bar.High >= e.pos.stopPrice:
			exitPending, exitReason, exitPrice = true, ExitStopLoss, e.pos.stopPrice
		}
	}

	if e.pos.side == Flat && !exitPending {
		switch {
		case bar.Close > upperBuf:
			e.open(Long, bar)
		case bar.Close < lowerBuf:
			e.open(Short, bar)
		}
	}

	if e.pos.side != Flat && !exitPending {
		switch {
		case bar.TimeOfDay() == e.sessionClose:
			exitPending = true
			exitReason = ExitMarketClose
			exitPrice = bar.Close - e.profile.SlippagePerShare*float64(e.pos.side)
		case e.profile.ReversalExits && e.pos.side == Long && bar.Close < lowerBuf:
			exitPending = true
			exitReason = ExitLongToShort
			exitPrice = bar.Close - e.profile.SlippagePerShare
		case e.profile.ReversalExits && e.pos.side == Short && bar.Close > upperBuf:
			exitPending = true
			exitReason = ExitShortToLong
			exitPrice = bar.Close + e.profile.SlippagePerShare
		}
	}

	if !exitPending {
		return
	}
	e.settle(bar, exitReason, exitPrice)

	// A reversal flips straight into the opposite side on the same bar at
	// post-exit sizing; stop-loss and market-close exits go flat.
	if exitReason.Reversal() {
		if exitReason == ExitLongToShort {
			e.open(Short, bar)
		} else {
			e.open(Long, bar)
		}
		return
	}
	e.pos = position{}
}

// open enters a position at the bar's close adjusted for slippage. Sizing
// floors to whole shares; a size of zero leaves the engine flat.
func (e *Engine) open(side Side, bar market.Bar) {
	ref := e.dayOpen
	if e.profile.SizeByClose {
		ref = bar.Close
	}
	if ref <= 0 {
		return
	}
	shares := int64(math.Floor(e.aum * e.profile.MaxPositionFraction / ref))
	if shares <= 0 {
		logger.Debugf("backtest: %s signal at %s sized to zero shares, staying flat", side, bar.Time.Format(time.RFC3339))
		return
	}
	entry := bar.Close + e.profile.SlippagePerShare*float64(side)
	e.pos = position{
		side:       side,
		entryPrice: entry,
		entryTime:  bar.Time,
		shares:     shares,
	}
	if e.profile.StopLossFraction > 0 {
		e.pos.stopPrice = entry * (1 - e.profile.StopLossFraction*float64(side))
	}
}

// settle realizes PnL with round-trip commission and appends the trade.
func (e *Engine) settle(bar market.Bar, reason ExitReason, exitPrice float64) {
	pos := e.pos
	pnl := (exitPrice-pos.entryPrice)*float64(pos.shares)*float64(pos.side) -
		e.profile.CommissionPerShare*float64(pos.shares)*2
	e.aum += pnl
	e.trades = append(e.trades, Trade{
		EntryTime:  pos.entryTime,
		EntryPrice: pos.entryPrice,
		ExitTime:   bar.Time,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		Side:       pos.side,
		Shares:     pos.shares,
		ExitReason: reason,
	})
}
