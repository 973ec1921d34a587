// Package data holds the acquisition collaborators around the core: remote
// bar sources, the local sqlite bar cache, the rate-limited fetch service,
// and CSV import/export. The estimator and engine never touch I/O; they
// consume what this package supplies.
package data

import (
	"context"

	"noiseband/internal/market"
)

// FetchRequest describes one remote bar request. Either Range (a trailing
// window like "14d") or the Start/End pair (Unix seconds) bounds the query;
// Start/End wins when set.
type FetchRequest struct {
	Symbol   string
	Interval string
	Range    string
	Start    int64
	End      int64
}

// Source unifies remote bar providers.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]market.Bar, error)
	Name() string
}
