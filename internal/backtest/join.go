package backtest

import (
	"noiseband/internal/bounds"
	"noiseband/internal/market"
)

// Join aligns a bar stream with a daily bound table. Bars whose trading day
// has no bound row are silently excluded; the count of excluded days is
// returned so callers can log coverage. Output preserves bar order.
func Join(bars []market.Bar, daily []bounds.DailyBound) ([]Tick, int) {
	byDate := make(map[int64]bounds.DailyBound, len(daily))
	for _, b := range daily {
		byDate[b.Date.UTC().Unix()] = b
	}
	ticks := make([]Tick, 0, len(bars))
	droppedDays := make(map[int64]struct{})
	for _, bar := range bars {
		d := bar.Date().Unix()
		bound, ok := byDate[d]
		if !ok {
			droppedDays[d] = struct{}{}
			continue
		}
		ticks = append(ticks, Tick{Bar: bar, Upper: bound.Upper, Lower: bound.Lower})
	}
	return ticks, len(droppedDays)
}
