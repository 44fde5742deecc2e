// Package api exposes reconciliation jobs over HTTP: upload two datasets,
// poll the job status, download the result.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/saofleet/reconciler/internal/jobs"
	"github.com/saofleet/reconciler/internal/status"
)

// Jobs is the job facade the server drives.
type Jobs interface {
	Submit(ctx context.Context, services, usages jobs.Upload) (string, error)
	Status(ctx context.Context, jobID string) (status.Snapshot, error)
	Result(ctx context.Context, jobID string) (io.ReadCloser, string, error)
}

// Server provides the HTTP API.
type Server struct {
	jobs       Jobs
	config     ServerConfig
	limiter    *RateLimiter
	httpServer *http.Server
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr    string // listen address (default: ":5000")
	Version string // reported by /health

	// MaxUploadMB caps the size of one upload request (default: 32)
	MaxUploadMB int64

	// RateLimitRPS and RateLimitBurst limit uploads per client; 0 disables
	RateLimitRPS   float64
	RateLimitBurst int

	// Metrics serves GET /metrics when set
	Metrics http.Handler

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, j Jobs) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 32
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	s := &Server{jobs: j, config: cfg}
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return s
}

func (s *Server) log(level, format string, args ...any) {
	if s.config.LogFn != nil {
		s.config.LogFn(level, fmt.Sprintf(format, args...))
	}
}

// Handler returns the routed, CORS-enabled handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /download/{id}", s.handleDownload)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.config.Metrics != nil {
		mux.Handle("GET /metrics", s.config.Metrics)
	}
	return withCORS(mux)
}

// Start begins listening for HTTP requests.
// This method blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	if s.limiter != nil {
		defer s.limiter.Stop()
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	s.log("success", "API listening on %s", s.config.Addr)

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Addr
}

// withCORS allows any origin, as browser front-ends call the API directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
