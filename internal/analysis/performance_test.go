package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"noiseband/internal/backtest"
)

func equityCurve(values ...float64) []backtest.EquityPoint {
	base := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	pts := make([]backtest.EquityPoint, len(values))
	for i, v := range values {
		pts[i] = backtest.EquityPoint{Time: base.Add(time.Duration(i) * 30 * time.Minute), AUM: v}
	}
	return pts
}

func TestEvaluate(t *testing.T) {
	t.Run("no trades yields zero ratios", func(t *testing.T) {
		p := Evaluate(100000, 100000, nil, equityCurve(100000, 100000))
		assert.Equal(t, 0, p.NumTrades)
		assert.Zero(t, p.TotalReturnPct)
		assert.Zero(t, p.WinRate)
		assert.Zero(t, p.ProfitFactor)
		assert.Zero(t, p.MaxDrawdownPct)
	})

	t.Run("mixed ledger", func(t *testing.T) {
		trades := []backtest.Trade{
			{PnL: 10, ExitReason: backtest.ExitMarketClose},
			{PnL: -5, ExitReason: backtest.ExitStopLoss},
			{PnL: 20, ExitReason: backtest.ExitLongToShort},
			{PnL: -15, ExitReason: backtest.ExitStopLoss},
		}
		p := Evaluate(100000, 100010, trades, equityCurve(100000, 100010))
		assert.Equal(t, 4, p.NumTrades)
		assert.InDelta(t, 0.01, p.TotalReturnPct, 1e-9)
		assert.InDelta(t, 50, p.WinRate, 1e-9)
		assert.InDelta(t, 1.5, p.ProfitFactor, 1e-9) // 30 / 20
		assert.InDelta(t, 2.5, p.AvgPnL, 1e-9)
		assert.InDelta(t, 15, p.AvgWin, 1e-9)
		assert.InDelta(t, -10, p.AvgLoss, 1e-9)
		assert.Equal(t, 20.0, p.BestTrade)
		assert.Equal(t, -15.0, p.WorstTrade)
		assert.Equal(t, 2, p.StopLossExits)
	})

	t.Run("winners without losers", func(t *testing.T) {
		trades := []backtest.Trade{{PnL: 10}, {PnL: 5}}
		p := Evaluate(100000, 100015, trades, equityCurve(100000, 100015))
		assert.True(t, math.IsInf(p.ProfitFactor, 1))
		assert.InDelta(t, 100, p.WinRate, 1e-9)
	})

	t.Run("losers without winners", func(t *testing.T) {
		trades := []backtest.Trade{{PnL: -10}}
		p := Evaluate(100000, 99990, trades, equityCurve(100000, 99990))
		assert.Zero(t, p.ProfitFactor)
		assert.Zero(t, p.WinRate)
	})
}

func TestMaxDrawdown(t *testing.T) {
	t.Run("worst peak-to-trough decline", func(t *testing.T) {
		p := Evaluate(100, 105, nil, equityCurve(100, 110, 99, 105))
		assert.InDelta(t, -10, p.MaxDrawdownPct, 1e-9) // (99-110)/110
	})

	t.Run("non-decreasing curve never draws down", func(t *testing.T) {
		p := Evaluate(100, 120, nil, equityCurve(100, 100, 110, 120))
		assert.Zero(t, p.MaxDrawdownPct)
	})

	t.Run("drawdown measured against the running peak only", func(t *testing.T) {
		// The later higher peak must not rewrite the earlier decline.
		p := Evaluate(100, 150, nil, equityCurve(100, 80, 150, 140))
		assert.InDelta(t, -20, p.MaxDrawdownPct, 1e-9)
	})
}
