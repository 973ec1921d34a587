package data

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"noiseband/internal/logger"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// FetchJob tracks one background fetch.
type FetchJob struct {
	ID        string       `json:"id"`
	Params    FetchRequest `json:"params"`
	Status    string       `json:"status"`
	Message   string       `json:"message,omitempty"`
	Bars      int          `json:"bars"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ServiceConfig wires the fetch service.
type ServiceConfig struct {
	Store           *Store
	Sources         map[string]Source
	DefaultSource   string
	RateLimitPerMin int
	MaxConcurrent   int
}

// Service coordinates remote fetches with the local cache: rate limited,
// bounded concurrency, job status queryable by ID.
type Service struct {
	store         *Store
	sources       map[string]Source
	defaultSource string

	limiter *rate.Limiter
	sem     chan struct{}

	mu   sync.RWMutex
	jobs map[string]*FetchJob

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	perSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		perSec = 1
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	svc := &Service{
		store:         cfg.Store,
		sources:       make(map[string]Source, len(cfg.Sources)),
		defaultSource: strings.ToLower(cfg.DefaultSource),
		limiter:       rate.NewLimiter(perSec, 1),
		sem:           make(chan struct{}, maxConcurrent),
		jobs:          make(map[string]*FetchJob),
		baseCtx:       context.Background(),
	}
	for k, v := range cfg.Sources {
		svc.sources[strings.ToLower(k)] = v
	}
	if svc.defaultSource == "" {
		for k := range svc.sources {
			svc.defaultSource = k
			break
		}
	}
	return svc, nil
}

// SetContext injects the host context so in-flight jobs stop with the app.
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// SubmitFetch queues a fetch and returns immediately with the job handle.
func (s *Service) SubmitFetch(sourceName string, req FetchRequest) (FetchJob, error) {
	if req.Symbol == "" {
		return FetchJob{}, fmt.Errorf("symbol cannot be empty")
	}
	if req.Interval == "" {
		return FetchJob{}, fmt.Errorf("interval cannot be empty")
	}
	if sourceName == "" {
		sourceName = s.defaultSource
	}
	src := s.sources[strings.ToLower(sourceName)]
	if src == nil {
		return FetchJob{}, fmt.Errorf("unknown source: %s", sourceName)
	}
	now := time.Now()
	job := &FetchJob{
		ID:        uuid.NewString(),
		Params:    req,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	go s.runJob(job.ID, src, req)
	return *job, nil
}

// FetchSync fetches and caches bars in the calling goroutine, for CLI use.
func (s *Service) FetchSync(ctx context.Context, sourceName string, req FetchRequest) (int, error) {
	if sourceName == "" {
		sourceName = s.defaultSource
	}
	src := s.sources[strings.ToLower(sourceName)]
	if src == nil {
		return 0, fmt.Errorf("unknown source: %s", sourceName)
	}
	return s.fetchInto(ctx, src, req)
}

func (s *Service) runJob(id string, src Source, req FetchRequest) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx := s.baseCtx
	s.updateJob(id, JobStatusRunning, "fetching", 0)
	n, err := s.fetchInto(ctx, src, req)
	if err != nil {
		logger.Warnf("fetch job %s failed: %v", id, err)
		s.updateJob(id, JobStatusFailed, err.Error(), 0)
		return
	}
	s.updateJob(id, JobStatusDone, "", n)
}

func (s *Service) fetchInto(ctx context.Context, src Source, req FetchRequest) (int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	bars, err := src.Fetch(ctx, req)
	if err != nil {
		return 0, err
	}
	n, err := s.store.InsertBars(ctx, req.Symbol, req.Interval, bars)
	if err != nil {
		return 0, err
	}
	logger.Infof("cached %d bars for %s %s from %s", n, req.Symbol, req.Interval, src.Name())
	return n, nil
}

func (s *Service) updateJob(id, status, message string, bars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	job.Status = status
	job.Message = message
	if bars > 0 {
		job.Bars = bars
	}
	job.UpdatedAt = time.Now()
}

// JobSnapshot returns a copy of one job.
func (s *Service) JobSnapshot(id string) (FetchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return FetchJob{}, false
	}
	return *job, true
}

// JobsSnapshot returns copies of all jobs, newest first.
func (s *Service) JobsSnapshot() []FetchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]FetchJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, *j)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}
