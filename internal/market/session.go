package market

import (
	"sort"
	"time"
)

// Session groups the bars of one calendar date.
type Session struct {
	Date time.Time // midnight UTC
	Bars []Bar     // ascending by timestamp
}

// ResolveDirection selects the fallback bar when the canonical time of day
// is absent from a session.
type ResolveDirection int

const (
	// ResolveEarliest falls back to the earliest bar of the session
	// (open-side resolution).
	ResolveEarliest ResolveDirection = iota
	// ResolveLatest falls back to the latest bar of the session
	// (close-side resolution).
	ResolveLatest
)

// Resolve returns the bar at the canonical time of day, or, when that bucket
// is absent, the earliest/latest bar present. Returns false only for an
// empty session.
func (s Session) Resolve(tod TimeOfDay, dir ResolveDirection) (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	for _, b := range s.Bars {
		if b.TimeOfDay() == tod {
			return b, true
		}
	}
	if dir == ResolveEarliest {
		return s.Bars[0], true
	}
	return s.Bars[len(s.Bars)-1], true
}

// OpenBar resolves the session's open bar: the bar at the canonical
// session-open time, else the earliest bar present.
func (s Session) OpenBar(open TimeOfDay) (Bar, bool) {
	return s.Resolve(open, ResolveEarliest)
}

// CloseBar resolves the session's close bar: the bar at the canonical
// session-close time, else the latest bar present.
func (s Session) CloseBar(close TimeOfDay) (Bar, bool) {
	return s.Resolve(close, ResolveLatest)
}

// SplitSessions groups bars into per-date sessions, ordered by date with
// bars ordered by timestamp inside each session. The input slice is not
// modified.
func SplitSessions(bars []Bar) []Session {
	byDate := make(map[time.Time][]Bar)
	for _, b := range bars {
		d := b.Date()
		byDate[d] = append(byDate[d], b)
	}
	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	sessions := make([]Session, 0, len(dates))
	for _, d := range dates {
		dayBars := byDate[d]
		SortBars(dayBars)
		sessions = append(sessions, Session{Date: d, Bars: dayBars})
	}
	return sessions
}
