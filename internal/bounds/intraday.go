package bounds

import (
	"math"
	"sort"

	"noiseband/internal/market"
)

// Intraday emits one bound per time-of-day bucket, anchored on the last day
// in the history.
func (e *Estimator) Intraday(bars []market.Bar) ([]BucketBound, Report, error) {
	if len(bars) == 0 {
		return nil, Report{}, ErrNoBars
	}
	sessions := market.SplitSessions(bars)
	return e.intradayAt(sessions, len(sessions)-1)
}

// IntradayAt emits bucket bounds as of the given day index: sigma samples
// come from the days strictly before dayIndex, while the band anchors are
// dayIndex's open and the preceding day's close.
func (e *Estimator) IntradayAt(bars []market.Bar, dayIndex int) ([]BucketBound, Report, error) {
	if len(bars) == 0 {
		return nil, Report{}, ErrNoBars
	}
	return e.intradayAt(market.SplitSessions(bars), dayIndex)
}

func (e *Estimator) intradayAt(sessions []market.Session, dayIndex int) ([]BucketBound, Report, error) {
	if dayIndex < 1 || dayIndex >= len(sessions) {
		return nil, Report{}, ErrAllSkipped
	}

	// Distinct buckets present anywhere in the history, in time order.
	bucketSet := make(map[market.TimeOfDay]struct{})
	for _, s := range sessions {
		for _, b := range s.Bars {
			bucketSet[b.TimeOfDay()] = struct{}{}
		}
	}
	buckets := make([]market.TimeOfDay, 0, len(bucketSet))
	for tod := range bucketSet {
		buckets = append(buckets, tod)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	today := sessions[dayIndex]
	yesterday := sessions[dayIndex-1]
	openBar, okOpen := today.OpenBar(e.cfg.SessionOpen)
	closeBar, okClose := yesterday.CloseBar(e.cfg.SessionClose)
	if !okOpen || !okClose || openBar.Open == 0 {
		return nil, Report{Candidates: len(buckets), Skipped: len(buckets)}, ErrAllSkipped
	}
	todayOpen := openBar.Open
	yesterdayClose := closeBar.Close

	report := Report{Candidates: len(buckets)}
	out := make([]BucketBound, 0, len(buckets))
	for _, tod := range buckets {
		moves := make([]float64, 0, dayIndex)
		for i := 0; i < dayIndex; i++ {
			day := sessions[i]
			dayOpen, ok := day.OpenBar(e.cfg.SessionOpen)
			if !ok || dayOpen.Open == 0 {
				continue
			}
			bar, ok := barAtBucket(day, tod)
			if !ok {
				continue
			}
			moves = append(moves, math.Abs(bar.Close/dayOpen.Open-1))
		}
		// Insufficient-sample quality gate: unlike the daily variant,
		// thin buckets are excluded outright.
		if len(moves) < e.cfg.MinBucketObs {
			report.Skipped++
			continue
		}
		var sum float64
		for _, m := range moves {
			sum += m
		}
		sigma := sum / float64(len(moves))
		upper, lower := band(todayOpen, yesterdayClose, sigma)
		out = append(out, BucketBound{TimeOfDay: tod, Sigma: sigma, Upper: upper, Lower: lower})
	}
	report.Emitted = len(out)
	if report.Emitted == 0 {
		return nil, report, ErrAllSkipped
	}
	return out, report, nil
}

// barAtBucket returns the day's bar at exactly the given bucket. Bucket
// closes take no fallback; a missing bucket just drops that day's sample.
func barAtBucket(s market.Session, tod market.TimeOfDay) (market.Bar, bool) {
	for _, b := range s.Bars {
		if b.TimeOfDay() == tod {
			return b, true
		}
	}
	return market.Bar{}, false
}
