package bounds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noiseband/internal/market"
)

const (
	openTOD  = market.TimeOfDay(13*60 + 30)
	closeTOD = market.TimeOfDay(19*60 + 30)
)

func barAt(day int, tod market.TimeOfDay, open, close float64) market.Bar {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, day).
		Add(time.Duration(tod) * time.Minute)
	return market.Bar{Time: ts, Open: open, High: open, Low: close, Close: close}
}

// simpleDay builds a session with a canonical open bar and close bar.
func simpleDay(day int, open, close float64) []market.Bar {
	return []market.Bar{
		barAt(day, openTOD, open, open),
		barAt(day, closeTOD, close, close),
	}
}

func TestDailyBounds(t *testing.T) {
	est := NewEstimator(Config{})

	t.Run("empty input fails fast", func(t *testing.T) {
		_, _, err := est.Daily(nil)
		assert.ErrorIs(t, err, ErrNoBars)
	})

	t.Run("first day has no bound", func(t *testing.T) {
		out, report, err := est.Daily(simpleDay(0, 100, 102))
		assert.ErrorIs(t, err, ErrAllSkipped)
		assert.Nil(t, out)
		assert.Equal(t, 0, report.Candidates)
	})

	t.Run("sigma is the mean absolute prior-day return", func(t *testing.T) {
		var bars []market.Bar
		bars = append(bars, simpleDay(0, 100, 102)...) // |102/100-1| = 0.02
		bars = append(bars, simpleDay(1, 102, 101)...) // |101/102-1|
		bars = append(bars, simpleDay(2, 101, 103)...)

		out, report, err := est.Daily(bars)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, Report{Candidates: 2, Emitted: 2}, report)

		// Day 1: one prior sample, anchors today-open=102 and
		// yesterday-close=102.
		assert.InDelta(t, 0.02, out[0].Sigma, 1e-12)
		assert.InDelta(t, 102*1.02, out[0].Upper, 1e-9)
		assert.InDelta(t, 102*0.98, out[0].Lower, 1e-9)

		// Day 2: two prior samples averaged, anchors 101 and 101.
		wantSigma := (0.02 + 1.0/102.0) / 2
		assert.InDelta(t, wantSigma, out[1].Sigma, 1e-12)
		assert.InDelta(t, 101*(1+wantSigma), out[1].Upper, 1e-9)
		assert.InDelta(t, 101*(1-wantSigma), out[1].Lower, 1e-9)
	})

	t.Run("anchors stretch the wider and narrower base", func(t *testing.T) {
		var bars []market.Bar
		bars = append(bars, simpleDay(0, 100, 110)...) // yesterday close above today open
		bars = append(bars, simpleDay(1, 105, 107)...)

		out, _, err := est.Daily(bars)
		require.NoError(t, err)
		require.Len(t, out, 1)
		sigma := out[0].Sigma
		assert.InDelta(t, 110*(1+sigma), out[0].Upper, 1e-9)
		assert.InDelta(t, 105*(1-sigma), out[0].Lower, 1e-9)
	})

	t.Run("lookback window caps the sample count", func(t *testing.T) {
		short := NewEstimator(Config{LookbackDays: 2})
		var bars []market.Bar
		bars = append(bars, simpleDay(0, 100, 110)...) // 0.10, must fall out of the window
		bars = append(bars, simpleDay(1, 100, 101)...) // 0.01
		bars = append(bars, simpleDay(2, 100, 103)...) // 0.03
		bars = append(bars, simpleDay(3, 100, 100)...)

		out, _, err := short.Daily(bars)
		require.NoError(t, err)
		require.Len(t, out, 3)
		last := out[len(out)-1]
		assert.InDelta(t, (0.01+0.03)/2, last.Sigma, 1e-12)
	})

	t.Run("fallback resolution uses earliest and latest bars", func(t *testing.T) {
		// No bar sits at the canonical open or close on either day.
		bars := []market.Bar{
			barAt(0, market.TimeOfDay(14*60), 100, 100),
			barAt(0, market.TimeOfDay(15*60), 101, 102),
			barAt(1, market.TimeOfDay(14*60), 102, 102),
			barAt(1, market.TimeOfDay(15*60), 103, 104),
		}
		out, _, err := est.Daily(bars)
		require.NoError(t, err)
		require.Len(t, out, 1)
		// Day 0 resolves open=100 (earliest) and close=102 (latest).
		assert.InDelta(t, 0.02, out[0].Sigma, 1e-12)
		assert.InDelta(t, 102*1.02, out[0].Upper, 1e-9)
	})

	t.Run("unresolvable days are skipped and counted", func(t *testing.T) {
		var bars []market.Bar
		bars = append(bars, simpleDay(0, 100, 102)...)
		// Day 1 opens at zero and cannot anchor.
		bars = append(bars, simpleDay(1, 0, 101)...)
		bars = append(bars, simpleDay(2, 101, 103)...)
		bars = append(bars, simpleDay(3, 103, 104)...)

		out, report, err := est.Daily(bars)
		require.NoError(t, err)
		// Day 1 fails on its own anchors, day 2 on yesterday's; day 3 emits
		// because the bad day simply drops out of its lookback sample.
		assert.Equal(t, Report{Candidates: 3, Emitted: 1, Skipped: 2}, report)
		require.Len(t, out, 1)
		assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), out[0].Date)
	})

	t.Run("parallel and serial runs agree", func(t *testing.T) {
		var bars []market.Bar
		for i := 0; i < 30; i++ {
			open := 100 + float64(i)
			bars = append(bars, simpleDay(i, open, open*1.01)...)
		}
		serial, _, err := NewEstimator(Config{}).Daily(bars)
		require.NoError(t, err)
		parallel, _, err := NewEstimator(Config{Parallelism: 4}).Daily(bars)
		require.NoError(t, err)
		assert.Equal(t, serial, parallel)
	})
}

func TestIntradayBounds(t *testing.T) {
	est := NewEstimator(Config{})

	// Ten history days with buckets at 13:30 and 14:00, plus a thin 15:00
	// bucket present on only three of them.
	var bars []market.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars,
			barAt(i, openTOD, 100, 100),
			barAt(i, market.TimeOfDay(14*60), 100, 101),
		)
		if i < 3 {
			bars = append(bars, barAt(i, market.TimeOfDay(15*60), 101, 102))
		}
	}
	// Anchor day.
	bars = append(bars, barAt(10, openTOD, 110, 110))

	t.Run("buckets below the observation floor are excluded", func(t *testing.T) {
		out, report, err := est.Intraday(bars)
		require.NoError(t, err)
		assert.Equal(t, Report{Candidates: 3, Emitted: 2, Skipped: 1}, report)
		for _, b := range out {
			assert.NotEqual(t, market.TimeOfDay(15*60), b.TimeOfDay)
		}
	})

	t.Run("bounds share the day anchors and differ only by sigma", func(t *testing.T) {
		out, _, err := est.Intraday(bars)
		require.NoError(t, err)
		require.Len(t, out, 2)

		// Last day opens at 110; the prior day's close resolves to its
		// latest bar, 101.
		openBucket := out[0]
		assert.Equal(t, openTOD, openBucket.TimeOfDay)
		assert.InDelta(t, 0, openBucket.Sigma, 1e-12)
		assert.InDelta(t, 110, openBucket.Upper, 1e-9)
		assert.InDelta(t, 101, openBucket.Lower, 1e-9)

		second := out[1]
		assert.Equal(t, market.TimeOfDay(14*60), second.TimeOfDay)
		assert.InDelta(t, 0.01, second.Sigma, 1e-12)
		assert.InDelta(t, 110*1.01, second.Upper, 1e-9)
		assert.InDelta(t, 101*0.99, second.Lower, 1e-9)
	})

	t.Run("exactly the floor count is included", func(t *testing.T) {
		floor := NewEstimator(Config{MinBucketObs: 10})
		out, _, err := floor.Intraday(bars)
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("single day cannot anchor", func(t *testing.T) {
		_, _, err := est.Intraday(simpleDay(0, 100, 101))
		assert.ErrorIs(t, err, ErrAllSkipped)
	})

	t.Run("empty input fails fast", func(t *testing.T) {
		_, _, err := est.Intraday(nil)
		assert.ErrorIs(t, err, ErrNoBars)
	})

	t.Run("historical day index uses only earlier samples", func(t *testing.T) {
		// At day 5 every bucket has only 5 samples, below the floor of 10.
		_, report, err := est.IntradayAt(bars, 5)
		assert.ErrorIs(t, err, ErrAllSkipped)
		assert.Equal(t, report.Candidates, report.Skipped)

		relaxed := NewEstimator(Config{MinBucketObs: 3})
		out, _, err := relaxed.IntradayAt(bars, 5)
		require.NoError(t, err)
		assert.NotEmpty(t, out)
	})
}
