// Package backtest replays a joined bar/bound sequence through a breakout
// position state machine and produces a trade ledger plus an equity curve.
package backtest

import (
	"errors"
	"time"

	"noiseband/internal/market"
)

// ErrNoInput reports an empty joined sequence. The engine fails fast so a
// caller can tell "no data" apart from "no trades happened".
var ErrNoInput = errors.New("backtest: no input ticks")

// Side is the position direction. The numeric values double as the sign in
// PnL math.
type Side int

const (
	Flat  Side = 0
	Long  Side = 1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitStopLoss    ExitReason = "stop_loss"
	ExitMarketClose ExitReason = "market_close"
	ExitLongToShort ExitReason = "long_to_short"
	ExitShortToLong ExitReason = "short_to_long"
)

// Reversal reports whether the exit flips straight into the opposite side
// on the same bar.
func (r ExitReason) Reversal() bool {
	return r == ExitLongToShort || r == ExitShortToLong
}

// Trade is one completed round trip. Records are append-only; the engine
// never mutates a trade after settlement.
type Trade struct {
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitPrice  float64    `json:"exit_price"`
	PnL        float64    `json:"pnl"`
	Side       Side       `json:"side"`
	Shares     int64      `json:"shares"`
	ExitReason ExitReason `json:"exit_reason"`
}

// EquityPoint is one sample of the equity curve, appended for every
// processed bar whether or not a trade occurred.
type EquityPoint struct {
	Time time.Time `json:"time"`
	AUM  float64   `json:"aum"`
}

// Tick is one bar joined with the bounds of its trading day.
type Tick struct {
	Bar   market.Bar
	Upper float64
	Lower float64
}

// Result is everything a run produces. It lives purely in memory.
type Result struct {
	InitialAUM float64       `json:"initial_aum"`
	FinalAUM   float64       `json:"final_aum"`
	Trades     []Trade       `json:"trades"`
	Equity     []EquityPoint `json:"equity"`
}
