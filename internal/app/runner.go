// Package app wires the estimator, engine, and analyzer into complete
// backtest runs and keeps an in-memory registry of them. Results are never
// persisted; a run lives as long as the process.
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"noiseband/internal/analysis"
	"noiseband/internal/backtest"
	"noiseband/internal/bounds"
	"noiseband/internal/config"
	"noiseband/internal/data"
	"noiseband/internal/logger"
	"noiseband/internal/market"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunParams selects what to simulate.
type RunParams struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Profile  string `json:"profile"`
	// Optional Unix-second range; zero means the whole cache.
	Start int64 `json:"start_ts"`
	End   int64 `json:"end_ts"`
}

// Run is one backtest task and, once done, its in-memory results.
type Run struct {
	ID          string                `json:"id"`
	Params      RunParams             `json:"params"`
	Status      string                `json:"status"`
	Message     string                `json:"message,omitempty"`
	BoundsUsed  bounds.Report         `json:"bounds_report"`
	DroppedDays int                   `json:"dropped_days"`
	Result      *backtest.Result      `json:"result,omitempty"`
	Performance *analysis.Performance `json:"performance,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	CompletedAt time.Time             `json:"completed_at,omitempty"`
}

// Runner executes runs against the bar cache. Runs started via StartRun
// proceed in the background, bounded by a worker semaphore.
type Runner struct {
	cfg   *config.Config
	store *data.Store

	sem     chan struct{}
	baseCtx context.Context

	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRunner(cfg *config.Config, store *data.Store, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		cfg:     cfg,
		store:   store,
		sem:     make(chan struct{}, maxConcurrent),
		baseCtx: context.Background(),
		runs:    make(map[string]*Run),
	}
}

// SetContext injects the host context for background runs.
func (r *Runner) SetContext(ctx context.Context) {
	if ctx != nil {
		r.baseCtx = ctx
	}
}

func (r *Runner) estimator() *bounds.Estimator {
	return bounds.NewEstimator(bounds.Config{
		LookbackDays: r.cfg.Estimator.LookbackDays,
		MinBucketObs: r.cfg.Estimator.MinBucketObs,
		SessionOpen:  r.cfg.SessionOpenTime(),
		SessionClose: r.cfg.SessionCloseTime(),
		Parallelism:  r.cfg.Estimator.Parallelism,
	})
}

func (r *Runner) normalize(p RunParams) (RunParams, config.StrategyProfile, error) {
	if p.Symbol == "" {
		p.Symbol = r.cfg.Data.Symbol
	}
	if p.Interval == "" {
		p.Interval = r.cfg.Data.Interval
	}
	if p.Profile == "" {
		p.Profile = "baseline"
	}
	profile, ok := r.cfg.Profile(p.Profile)
	if !ok {
		return p, profile, fmt.Errorf("unknown profile: %s", p.Profile)
	}
	return p, profile, nil
}

// StartRun registers a run and returns immediately; the simulation proceeds
// in the background.
func (r *Runner) StartRun(p RunParams) (Run, error) {
	p, profile, err := r.normalize(p)
	if err != nil {
		return Run{}, err
	}
	now := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		Params:    p,
		Status:    RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()
	go func() {
		r.sem <- struct{}{}
		defer func() { <-r.sem }()
		r.executeRun(run.ID, p, profile)
	}()
	return *run, nil
}

// RunSync executes a run in the calling goroutine, for CLI use.
func (r *Runner) RunSync(ctx context.Context, p RunParams) (Run, error) {
	p, profile, err := r.normalize(p)
	if err != nil {
		return Run{}, err
	}
	bars, err := r.loadBars(ctx, p)
	if err != nil {
		return Run{}, err
	}
	run := Run{ID: uuid.NewString(), Params: p, CreatedAt: time.Now()}
	if err := r.simulate(&run, bars, profile); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ComputeDailyBounds estimates the daily bound table from the cache.
func (r *Runner) ComputeDailyBounds(ctx context.Context, symbol, interval string) ([]bounds.DailyBound, bounds.Report, error) {
	bars, err := r.loadBars(ctx, RunParams{Symbol: symbol, Interval: interval})
	if err != nil {
		return nil, bounds.Report{}, err
	}
	return r.estimator().Daily(bars)
}

// ComputeIntradayBounds estimates today's per-bucket bounds from the cache.
func (r *Runner) ComputeIntradayBounds(ctx context.Context, symbol, interval string) ([]bounds.BucketBound, bounds.Report, error) {
	bars, err := r.loadBars(ctx, RunParams{Symbol: symbol, Interval: interval})
	if err != nil {
		return nil, bounds.Report{}, err
	}
	return r.estimator().Intraday(bars)
}

func (r *Runner) loadBars(ctx context.Context, p RunParams) ([]market.Bar, error) {
	symbol := p.Symbol
	if symbol == "" {
		symbol = r.cfg.Data.Symbol
	}
	interval := p.Interval
	if interval == "" {
		interval = r.cfg.Data.Interval
	}
	if p.Start > 0 || p.End > 0 {
		end := p.End
		if end <= 0 {
			end = time.Now().Unix()
		}
		return r.store.RangeBars(ctx, symbol, interval, p.Start, end)
	}
	return r.store.ListAllBars(ctx, symbol, interval)
}

func (r *Runner) executeRun(id string, p RunParams, profile config.StrategyProfile) {
	ctx := r.baseCtx
	r.updateRun(id, RunStatusRunning, "loading bars", nil)
	bars, err := r.loadBars(ctx, p)
	if err != nil {
		r.failRun(id, err)
		return
	}
	r.mu.RLock()
	run := *r.runs[id]
	r.mu.RUnlock()
	if err := r.simulate(&run, bars, profile); err != nil {
		r.failRun(id, err)
		return
	}
	r.updateRun(id, RunStatusDone, "", &run)
}

// simulate is the full pipeline: estimate bounds, join, replay, evaluate.
func (r *Runner) simulate(run *Run, bars []market.Bar, profile config.StrategyProfile) error {
	daily, report, err := r.estimator().Daily(bars)
	if err != nil {
		return fmt.Errorf("estimating bounds: %w", err)
	}
	run.BoundsUsed = report
	if report.Skipped > 0 {
		logger.Warnf("run %s: %d of %d candidate days skipped by the estimator", run.ID, report.Skipped, report.Candidates)
	}
	ticks, droppedDays := backtest.Join(bars, daily)
	run.DroppedDays = droppedDays
	engine := backtest.NewEngine(profile, r.cfg.SessionCloseTime())
	result, err := engine.Run(ticks)
	if err != nil {
		return fmt.Errorf("running engine: %w", err)
	}
	perf := analysis.Evaluate(result.InitialAUM, result.FinalAUM, result.Trades, result.Equity)
	run.Result = &result
	run.Performance = &perf
	run.Status = RunStatusDone
	run.UpdatedAt = time.Now()
	run.CompletedAt = run.UpdatedAt
	return nil
}

func (r *Runner) updateRun(id, status, message string, done *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	if done != nil {
		*run = *done
	}
	run.Status = status
	run.Message = message
	run.UpdatedAt = time.Now()
	if status == RunStatusDone {
		run.CompletedAt = run.UpdatedAt
	}
}

func (r *Runner) failRun(id string, err error) {
	logger.Warnf("run %s failed: %v", id, err)
	r.updateRun(id, RunStatusFailed, err.Error(), nil)
}

// RunSnapshot returns a copy of one run.
func (r *Runner) RunSnapshot(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// RunsSnapshot returns copies of all runs, newest first.
func (r *Runner) RunsSnapshot() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		list = append(list, *run)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}
