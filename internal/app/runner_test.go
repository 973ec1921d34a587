package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noiseband/internal/backtest"
	"noiseband/internal/config"
	"noiseband/internal/data"
	"noiseband/internal/market"
)

func seedBar(day, hour, minute int, open, close float64) market.Bar {
	high, low := open, close
	if close > high {
		high = close
	}
	if open < low {
		low = open
	}
	return market.Bar{
		Time:  time.Date(2024, 3, 1+day, hour, minute, 0, 0, time.UTC),
		Open:  open,
		High:  high + 0.5,
		Low:   low - 0.5,
		Close: close,
	}
}

func newTestRunner(t *testing.T) (*Runner, *data.Store) {
	t.Helper()
	store, err := data.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRunner(config.Default(), store, 1), store
}

func TestRunnerPipeline(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t)

	// Day 0 calibrates sigma (2% move); day 1 breaks out above the band
	// and is forced flat at the session close.
	bars := []market.Bar{
		seedBar(0, 13, 30, 100, 100),
		seedBar(0, 19, 30, 102, 102),
		seedBar(1, 13, 30, 102, 101),
		seedBar(1, 14, 0, 101, 105),
		seedBar(1, 19, 30, 105, 106),
	}
	_, err := store.InsertBars(ctx, "TEST", "30m", bars)
	require.NoError(t, err)

	t.Run("synchronous run", func(t *testing.T) {
		run, err := runner.RunSync(ctx, RunParams{Symbol: "TEST", Interval: "30m", Profile: "baseline"})
		require.NoError(t, err)
		assert.Equal(t, RunStatusDone, run.Status)
		require.NotNil(t, run.Result)
		require.NotNil(t, run.Performance)

		// Only day 1 has a bound; day 0 drops out of the joined stream.
		assert.Equal(t, 1, run.BoundsUsed.Emitted)
		assert.Equal(t, 1, run.DroppedDays)

		require.Len(t, run.Result.Trades, 1)
		tr := run.Result.Trades[0]
		assert.Equal(t, backtest.Long, tr.Side)
		assert.Equal(t, backtest.ExitMarketClose, tr.ExitReason)
		assert.InDelta(t, run.Result.FinalAUM-run.Result.InitialAUM,
			sumPnL(run.Result.Trades), 1e-6)
	})

	t.Run("background run reaches done", func(t *testing.T) {
		run, err := runner.StartRun(RunParams{Symbol: "TEST", Interval: "30m"})
		require.NoError(t, err)
		assert.Equal(t, RunStatusPending, run.Status)

		assert.Eventually(t, func() bool {
			snap, ok := runner.RunSnapshot(run.ID)
			return ok && snap.Status == RunStatusDone
		}, 5*time.Second, 10*time.Millisecond)

		snap, ok := runner.RunSnapshot(run.ID)
		require.True(t, ok)
		require.NotNil(t, snap.Performance)
		assert.NotEmpty(t, runner.RunsSnapshot())
	})

	t.Run("unknown profile is rejected up front", func(t *testing.T) {
		_, err := runner.RunSync(ctx, RunParams{Symbol: "TEST", Interval: "30m", Profile: "nope"})
		assert.ErrorContains(t, err, "unknown profile")
	})

	t.Run("empty cache fails the run", func(t *testing.T) {
		_, err := runner.RunSync(ctx, RunParams{Symbol: "EMPTY", Interval: "30m"})
		assert.Error(t, err)
	})
}

func TestRunnerBounds(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t)

	var bars []market.Bar
	for i := 0; i < 3; i++ {
		open := 100 + float64(i)
		bars = append(bars,
			seedBar(i, 13, 30, open, open),
			seedBar(i, 19, 30, open+2, open+2),
		)
	}
	_, err := store.InsertBars(ctx, "TEST", "30m", bars)
	require.NoError(t, err)

	table, report, err := runner.ComputeDailyBounds(ctx, "TEST", "30m")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Emitted)
	assert.Len(t, table, 2)
	for _, b := range table {
		assert.Greater(t, b.Upper, b.Lower)
		assert.Greater(t, b.Sigma, 0.0)
	}
}

func sumPnL(trades []backtest.Trade) float64 {
	var sum float64
	for _, tr := range trades {
		sum += tr.PnL
	}
	return sum
}
