// Package http exposes the worker's ops endpoints: health, readiness,
// Prometheus metrics and the background job table.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-hub/internal/interface/http/handlers"
	"github.com/alem-hub/study-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":9090".
	Addr string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// DisableMetrics hides /metrics even when a registry is wired.
	DisableMetrics bool

	// Debug switches gin to debug mode.
	Debug bool
}

// DefaultConfig returns sensible defaults for the ops server.
func DefaultConfig() Config {
	return Config{
		Addr:            ":9090",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// JobRunner is the slice of the scheduler the server needs.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, jobName string) (scheduler.JobResult, error)
	History(limit int) []scheduler.JobResult
}

// Dependencies holds everything the handlers use. Only Logger is required.
type Dependencies struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Health  *handlers.HealthChecker
	Jobs    JobRunner
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the ops HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	engine *gin.Engine
	server *http.Server
	log    *logger.Logger
}

// NewServer creates a server with its routes mounted.
func NewServer(config Config, deps Dependencies) *Server {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthChecker("")
	}

	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		log:    deps.Logger.Named("http"),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(
		handlers.RequestID(),
		handlers.Recovery(s.log),
		handlers.RequestLogger(s.log),
	)

	s.engine.GET("/healthz", s.deps.Health.Live)
	s.engine.GET("/readyz", s.deps.Health.Ready)

	if !s.config.DisableMetrics && s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	if s.deps.Jobs != nil {
		jobs := s.engine.Group("/jobs")
		jobs.GET("", s.listJobs)
		jobs.GET("/history", s.jobHistory)
		jobs.POST("/:name/run", s.runJob)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorBody{
			Error:   "not_found",
			Message: "Endpoint not found",
		})
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ops server listening", logger.String("addr", s.config.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down ops server")
	return s.server.Shutdown(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Job handlers
// ─────────────────────────────────────────────────────────────────────────────

type jobResultView struct {
	JobName     string    `json:"job_name"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Duration    string    `json:"duration"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Manual      bool      `json:"manual"`
}

func viewResult(r scheduler.JobResult) jobResultView {
	v := jobResultView{
		JobName:     r.JobName,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Duration:    r.Duration.String(),
		Success:     r.Success(),
		Manual:      r.Manual,
	}
	if r.Error != nil {
		v.Error = r.Error.Error()
	}
	return v
}

func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.deps.Jobs.ListJobs()})
}

func (s *Server) jobHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, handlers.ErrorBody{
				Error:   "invalid_limit",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	history := s.deps.Jobs.History(limit)
	out := make([]jobResultView, 0, len(history))
	for _, r := range history {
		out = append(out, viewResult(r))
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

func (s *Server) runJob(c *gin.Context) {
	name := c.Param("name")
	result, err := s.deps.Jobs.RunNow(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		c.JSON(http.StatusNotFound, handlers.ErrorBody{Error: "job_not_found", Message: err.Error()})
		return
	case errors.Is(err, scheduler.ErrJobBusy):
		c.JSON(http.StatusConflict, handlers.ErrorBody{Error: "job_busy", Message: err.Error()})
		return
	}

	s.log.Info("job triggered manually",
		logger.String("job", name),
		logger.Bool("success", result.Success()),
	)
	code := http.StatusOK
	if !result.Success() {
		code = http.StatusInternalServerError
	}
	c.JSON(code, viewResult(result))
}
