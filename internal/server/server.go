// Package server exposes the pipeline over HTTP with a small upload page.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgpai22/vaani/internal/logging"
	"github.com/mgpai22/vaani/internal/pipeline"
)

// Runner starts pipeline runs. *pipeline.Runner satisfies it.
type Runner interface {
	NewRun() (*pipeline.Report, error)
	Execute(ctx context.Context, rep *pipeline.Report, input string, observe pipeline.Observer) error
}

type Config struct {
	Addr           string
	MaxUploadBytes int64         // default 200MB
	Retention      time.Duration // finished runs are removed after this (default 1h)
}

type Server struct {
	runner Runner
	cfg    Config
	logger *logging.Logger
	engine *gin.Engine
	runs   *registry
	now    func() time.Time

	// runs are bound to baseCtx rather than the request
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func New(runner Runner, cfg Config, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 200 << 20
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		runs:    newRegistry(),
		now:     time.Now,
		baseCtx: ctx,
		stop:    stop,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), recovery(s.logger), requestLogger(s.logger))

	r.GET("/", s.handleIndex)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/runs")
	api.POST("", s.handleCreateRun)
	api.GET("/:id", s.handleGetRun)
	api.DELETE("/:id", s.handleDeleteRun)
	api.GET("/:id/clips/:index", s.handleClip)
	api.GET("/:id/captions", s.handleCaptions)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and removes every run's files.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.sweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Infow("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Infow("Server exited gracefully")
	return nil
}

// Close cancels running pipelines, waits for them and removes all work
// directories.
func (s *Server) Close() {
	s.stop()
	for _, e := range s.runs.drain() {
		s.removeWorkDir(e.workDir)
	}
	s.wg.Wait()
}

func (s *Server) sweepLoop(ctx context.Context) {
	interval := s.cfg.Retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes finished runs past the retention window.
func (s *Server) sweep() int {
	expired := s.runs.expired(s.now().Add(-s.cfg.Retention))
	for _, e := range expired {
		s.removeWorkDir(e.workDir)
	}
	if len(expired) > 0 {
		s.logger.Infow("Removed expired runs", "count", len(expired))
	}
	return len(expired)
}

// start registers rep and executes it in the background.
func (s *Server) start(rep *pipeline.Report, input string) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	id := rep.RunID

	s.runs.add(id, &entry{
		report:  &pipeline.Report{RunID: id, Input: rep.Input, Clips: rep.Clips},
		workDir: rep.WorkDir,
		cancel:  cancel,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		err := s.runner.Execute(ctx, rep, input, func(_ pipeline.StageResult, progress *pipeline.Report) {
			s.runs.update(id, progress)
		})
		if err != nil {
			s.logger.Warnw("Run finished with errors", "run_id", id, "error", err)
		}

		if !s.runs.finish(id, rep, err, s.now()) {
			s.removeWorkDir(rep.WorkDir)
		}
	}()
}

func (s *Server) removeWorkDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warnw("Failed to remove work directory", "dir", dir, "error", err)
	}
}
