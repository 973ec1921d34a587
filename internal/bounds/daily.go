package bounds

import (
	"math"

	"golang.org/x/sync/errgroup"

	"noiseband/internal/logger"
	"noiseband/internal/market"
)

// dayAnchors holds the resolved open/close of one session. ok is false when
// the session yielded no usable pair (data gap).
type dayAnchors struct {
	open      float64
	close     float64
	absReturn float64
	ok        bool
}

func (e *Estimator) resolveAnchors(sessions []market.Session) []dayAnchors {
	anchors := make([]dayAnchors, len(sessions))
	for i, s := range sessions {
		openBar, okOpen := s.OpenBar(e.cfg.SessionOpen)
		closeBar, okClose := s.CloseBar(e.cfg.SessionClose)
		if !okOpen || !okClose || openBar.Open == 0 {
			continue
		}
		a := dayAnchors{open: openBar.Open, close: closeBar.Close, ok: true}
		a.absReturn = math.Abs(a.close/a.open - 1)
		anchors[i] = a
	}
	return anchors
}

// Daily emits one bound per trading day from the second day onward. Days
// whose open/close cannot be resolved, or that have no valid prior-day
// return in the lookback window, are skipped and counted in the report.
func (e *Estimator) Daily(bars []market.Bar) ([]DailyBound, Report, error) {
	if len(bars) == 0 {
		return nil, Report{}, ErrNoBars
	}
	sessions := market.SplitSessions(bars)
	anchors := e.resolveAnchors(sessions)

	results := make([]*DailyBound, len(sessions))
	compute := func(t int) {
		a := anchors[t]
		yesterday := anchors[t-1]
		if !a.ok || !yesterday.ok {
			return
		}
		n := e.cfg.LookbackDays
		if t < n {
			n = t
		}
		var sum float64
		var count int
		for j := t - n; j < t; j++ {
			if !anchors[j].ok {
				continue
			}
			sum += anchors[j].absReturn
			count++
		}
		if count == 0 {
			return
		}
		sigma := sum / float64(count)
		upper, lower := band(a.open, yesterday.close, sigma)
		results[t] = &DailyBound{Date: sessions[t].Date, Sigma: sigma, Upper: upper, Lower: lower}
	}

	if e.cfg.Parallelism > 1 && len(sessions) > 2 {
		// Each day only reads anchors of strictly earlier days, so the
		// fan-out cannot change results.
		var g errgroup.Group
		g.SetLimit(e.cfg.Parallelism)
		for t := 1; t < len(sessions); t++ {
			t := t
			g.Go(func() error {
				compute(t)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for t := 1; t < len(sessions); t++ {
			compute(t)
		}
	}

	report := Report{Candidates: len(sessions) - 1}
	if report.Candidates < 0 {
		report.Candidates = 0
	}
	out := make([]DailyBound, 0, report.Candidates)
	for t := 1; t < len(sessions); t++ {
		if results[t] == nil {
			report.Skipped++
			logger.Debugf("bounds: skipping %s (unresolved open/close or empty lookback)", sessions[t].Date.Format("2006-01-02"))
			continue
		}
		out = append(out, *results[t])
	}
	report.Emitted = len(out)
	if report.Emitted == 0 {
		return nil, report, ErrAllSkipped
	}
	return out, report, nil
}
