package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noiseband/internal/market"
)

func testBars(n int) []market.Bar {
	base := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = market.Bar{
			Time:  base.Add(time.Duration(i) * 30 * time.Minute),
			Open:  price,
			High:  price + 0.5,
			Low:   price - 0.5,
			Close: price + 0.25,
		}
	}
	return bars
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	bars := testBars(5)

	t.Run("insert and list round trip", func(t *testing.T) {
		n, err := store.InsertBars(ctx, "^GSPC", "30m", bars)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		got, err := store.ListAllBars(ctx, "^GSPC", "30m")
		require.NoError(t, err)
		assert.Equal(t, bars, got)
	})

	t.Run("reinsert overwrites on timestamp", func(t *testing.T) {
		changed := bars[2]
		changed.Close = 999
		_, err := store.InsertBars(ctx, "^GSPC", "30m", []market.Bar{changed})
		require.NoError(t, err)

		got, err := store.ListAllBars(ctx, "^GSPC", "30m")
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, 999.0, got[2].Close)
	})

	t.Run("range query is inclusive", func(t *testing.T) {
		start := bars[1].Time.Unix()
		end := bars[3].Time.Unix()
		got, err := store.RangeBars(ctx, "^GSPC", "30m", start, end)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, bars[1].Time, got[0].Time)
		assert.Equal(t, bars[3].Time, got[2].Time)
	})

	t.Run("manifest tracks extent and row count", func(t *testing.T) {
		m, err := store.Manifest(ctx, "^GSPC", "30m")
		require.NoError(t, err)
		assert.Equal(t, "^GSPC", m.Symbol)
		assert.Equal(t, "30m", m.Interval)
		assert.Equal(t, int64(5), m.Rows)
		assert.Equal(t, bars[0].Time.Unix(), m.MinTime)
		assert.Equal(t, bars[4].Time.Unix(), m.MaxTime)
		assert.NotZero(t, m.LastSyncAt)
	})

	t.Run("symbols are cached independently", func(t *testing.T) {
		_, err := store.InsertBars(ctx, "QQQ", "30m", bars[:2])
		require.NoError(t, err)
		got, err := store.ListAllBars(ctx, "QQQ", "30m")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("empty symbol is rejected", func(t *testing.T) {
		_, err := store.ListAllBars(ctx, "", "30m")
		assert.Error(t, err)
	})
}
