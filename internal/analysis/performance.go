// Package analysis computes performance metrics from a backtest's trade
// ledger and equity curve.
package analysis

import (
	"math"

	"noiseband/internal/backtest"
)

// Performance summarizes one backtest run.
//
// ProfitFactor is |sum of winning PnL| / |sum of losing PnL|. With winners
// and no losers it is +Inf; with no trades at all every ratio metric is 0.
type Performance struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	NumTrades      int     `json:"num_trades"`
	WinRate        float64 `json:"win_rate_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	AvgPnL         float64 `json:"avg_pnl"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	BestTrade      float64 `json:"best_trade"`
	WorstTrade     float64 `json:"worst_trade"`
	StopLossExits  int     `json:"stop_loss_exits"`
}

// Evaluate is a pure function over the engine's outputs.
func Evaluate(initialAUM, finalAUM float64, trades []backtest.Trade, equity []backtest.EquityPoint) Performance {
	var p Performance
	if initialAUM != 0 {
		p.TotalReturnPct = (finalAUM - initialAUM) / initialAUM * 100
	}
	p.NumTrades = len(trades)
	p.MaxDrawdownPct = maxDrawdownPct(equity)
	if len(trades) == 0 {
		return p
	}

	var (
		wins, losses        int
		grossWin, grossLoss float64
		sum                 float64
	)
	p.BestTrade = math.Inf(-1)
	p.WorstTrade = math.Inf(1)
	for _, t := range trades {
		sum += t.PnL
		if t.PnL > 0 {
			wins++
			grossWin += t.PnL
		} else if t.PnL < 0 {
			losses++
			grossLoss += t.PnL
		}
		if t.PnL > p.BestTrade {
			p.BestTrade = t.PnL
		}
		if t.PnL < p.WorstTrade {
			p.WorstTrade = t.PnL
		}
		if t.ExitReason == backtest.ExitStopLoss {
			p.StopLossExits++
		}
	}
	p.WinRate = float64(wins) / float64(len(trades)) * 100
	p.AvgPnL = sum / float64(len(trades))
	if wins > 0 {
		p.AvgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		p.AvgLoss = grossLoss / float64(losses)
	}
	switch {
	case losses > 0:
		p.ProfitFactor = math.Abs(grossWin / grossLoss)
	case wins > 0:
		p.ProfitFactor = math.Inf(1)
	}
	return p
}

// maxDrawdownPct is the worst peak-to-current decline of the equity curve,
// as a percentage <= 0. A non-decreasing curve yields exactly 0.
func maxDrawdownPct(equity []backtest.EquityPoint) float64 {
	var (
		runningMax float64
		worst      float64
	)
	for i, pt := range equity {
		if i == 0 || pt.AUM > runningMax {
			runningMax = pt.AUM
		}
		if runningMax == 0 {
			continue
		}
		dd := (pt.AUM - runningMax) / runningMax * 100
		if dd < worst {
			worst = dd
		}
	}
	return worst
}
