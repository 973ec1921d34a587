// Package bounds turns a bar history into breakout thresholds: one
// (sigma, upper, lower) triple per trading day, or per intraday time bucket.
package bounds

import (
	"errors"
	"time"

	"noiseband/internal/market"
)

var (
	// ErrNoBars reports that the caller supplied no bar history at all.
	// Downstream consumers cannot tell "no trading happened" from "no data
	// was obtained", so an empty input fails fast.
	ErrNoBars = errors.New("bounds: no bars supplied")
	// ErrAllSkipped reports that input was present but every candidate day
	// or bucket was skipped, leaving nothing to emit.
	ErrAllSkipped = errors.New("bounds: all candidates skipped")
)

// DailyBound is the noise band for one trading day.
type DailyBound struct {
	Date  time.Time `json:"date"`
	Sigma float64   `json:"sigma"`
	Upper float64   `json:"upper_bound"`
	Lower float64   `json:"lower_bound"`
}

// BucketBound is the noise band for one intraday time bucket.
type BucketBound struct {
	TimeOfDay market.TimeOfDay `json:"time_of_day"`
	Sigma     float64          `json:"sigma"`
	Upper     float64          `json:"upper_bound"`
	Lower     float64          `json:"lower_bound"`
}

// Report counts how much of the candidate set survived estimation. Skips
// are recoverable by design; the report lets callers judge coverage.
type Report struct {
	Candidates int `json:"candidates"`
	Emitted    int `json:"emitted"`
	Skipped    int `json:"skipped"`
}

// Config controls the estimator. Zero values fall back to the defaults the
// strategy was calibrated with.
type Config struct {
	// LookbackDays caps the trailing window for the daily sigma average.
	LookbackDays int
	// MinBucketObs is the minimum number of valid historical observations
	// an intraday bucket needs before it is emitted.
	MinBucketObs int
	// SessionOpen and SessionClose are the canonical open/close times of
	// day (UTC).
	SessionOpen  market.TimeOfDay
	SessionClose market.TimeOfDay
	// Parallelism bounds the worker count for the daily sigma pass.
	// Values <= 1 run serially; results are identical either way.
	Parallelism int
}

const (
	DefaultLookbackDays = 13
	DefaultMinBucketObs = 10
	DefaultSessionOpen  = market.TimeOfDay(13*60 + 30) // 09:30 New York in UTC
	DefaultSessionClose = market.TimeOfDay(19*60 + 30) // 16:00 New York in UTC
)

func (c Config) withDefaults() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	if c.MinBucketObs <= 0 {
		c.MinBucketObs = DefaultMinBucketObs
	}
	if c.SessionOpen == 0 {
		c.SessionOpen = DefaultSessionOpen
	}
	if c.SessionClose == 0 {
		c.SessionClose = DefaultSessionClose
	}
	return c
}

// Estimator computes daily and intraday noise bounds from a bar history.
// It is stateless beyond its config and safe for concurrent use.
type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg.withDefaults()}
}

// band applies the shared bound formula: the wider of the two anchors
// stretched up by sigma, the narrower stretched down. Sigma >= 0 and
// max >= min guarantee upper >= lower.
func band(todayOpen, yesterdayClose, sigma float64) (upper, lower float64) {
	baseUpper := todayOpen
	if yesterdayClose > baseUpper {
		baseUpper = yesterdayClose
	}
	baseLower := todayOpen
	if yesterdayClose < baseLower {
		baseLower = yesterdayClose
	}
	return baseUpper * (1 + sigma), baseLower * (1 - sigma)
}
