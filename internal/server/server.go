// Package server exposes the fetch service, the bound estimator, and the
// run registry over a small gin API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"noiseband/internal/app"
	"noiseband/internal/data"
)

type Server struct {
	addr   string
	svc    *data.Service
	store  *data.Store
	runner *app.Runner
	router *gin.Engine
}

type Config struct {
	Addr   string
	Svc    *data.Service
	Store  *data.Store
	Runner *app.Runner
}

func New(cfg Config) (*Server, error) {
	if cfg.Svc == nil {
		return nil, errors.New("fetch service cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:   cfg.Addr,
		svc:    cfg.Svc,
		store:  cfg.Store,
		runner: cfg.Runner,
		router: router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.POST("/fetch", s.handleFetch)
	api.GET("/fetch/:id", s.handleFetchStatus)
	api.GET("/jobs", s.handleJobs)
	api.GET("/manifest", s.handleManifest)
	api.GET("/bars", s.handleBars)
	api.GET("/bounds", s.handleDailyBounds)
	api.GET("/bounds/intraday", s.handleIntradayBounds)
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)
	api.GET("/runs/:id/metrics", s.handleRunMetrics)
}

func (s *Server) handleFetch(c *gin.Context) {
	var req struct {
		Source   string `json:"source"`
		Symbol   string `json:"symbol" binding:"required"`
		Interval string `json:"interval" binding:"required"`
		Range    string `json:"range"`
		StartTS  int64  `json:"start_ts"`
		EndTS    int64  `json:"end_ts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.svc.SubmitFetch(req.Source, data.FetchRequest{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Range:    req.Range,
		Start:    req.StartTS,
		End:      req.EndTS,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleFetchStatus(c *gin.Context) {
	job, ok := s.svc.JobSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.svc.JobsSnapshot()})
}

func (s *Server) symbolInterval(c *gin.Context) (string, string, bool) {
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and interval are required"})
		return "", "", false
	}
	return symbol, interval, true
}

func (s *Server) handleManifest(c *gin.Context) {
	symbol, interval, ok := s.symbolInterval(c)
	if !ok {
		return
	}
	info, err := s.store.Manifest(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *Server) handleBars(c *gin.Context) {
	symbol, interval, ok := s.symbolInterval(c)
	if !ok {
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	if start > 0 || end > 0 {
		if end <= 0 {
			end = time.Now().Unix()
		}
		bars, err := s.store.RangeBars(c.Request.Context(), symbol, interval, start, end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bars": bars})
		return
	}
	bars, err := s.store.ListAllBars(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bars": bars})
}

func (s *Server) handleDailyBounds(c *gin.Context) {
	symbol, interval, ok := s.symbolInterval(c)
	if !ok {
		return
	}
	table, report, err := s.runner.ComputeDailyBounds(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bounds": table, "report": report})
}

func (s *Server) handleIntradayBounds(c *gin.Context) {
	symbol, interval, ok := s.symbolInterval(c)
	if !ok {
		return
	}
	table, report, err := s.runner.ComputeIntradayBounds(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bounds": table, "report": report})
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req app.RunParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.runner.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.runner.RunsSnapshot()})
}

func (s *Server) runByID(c *gin.Context) (app.Run, bool) {
	run, ok := s.runner.RunSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return app.Run{}, false
	}
	return run, true
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, ok := s.runByID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	run, ok := s.runByID(c)
	if !ok {
		return
	}
	if run.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run not finished", "status": run.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": run.Result.Trades})
}

func (s *Server) handleRunEquity(c *gin.Context) {
	run, ok := s.runByID(c)
	if !ok {
		return
	}
	if run.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run not finished", "status": run.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": run.Result.Equity})
}

func (s *Server) handleRunMetrics(c *gin.Context) {
	run, ok := s.runByID(c)
	if !ok {
		return
	}
	if run.Performance == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run not finished", "status": run.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": run.Performance})
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
