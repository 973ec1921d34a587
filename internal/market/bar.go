// Package market holds the bar-level data model shared by the estimator and
// the backtest engine: price bars, trading sessions, and time-of-day buckets.
package market

import (
	"sort"
	"time"
)

// Bar is one OHLC sample of a trading session. Bars are immutable once
// ingested and ordered by timestamp.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Date returns the bar's calendar date, normalized to midnight UTC.
func (b Bar) Date() time.Time {
	t := b.Time.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TimeOfDay returns the bar's intraday bucket.
func (b Bar) TimeOfDay() TimeOfDay {
	t := b.Time.UTC()
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// SortBars orders bars ascending by timestamp in place.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
}
