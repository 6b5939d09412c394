// Package server exposes the classifier over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shahar-caura/salestalk/internal/intent"
)

// RequestIDHeader carries a caller-chosen request id in and the effective
// one out.
const RequestIDHeader = "X-Request-ID"

// Options configure a Server.
type Options struct {
	Port            int
	Version         string
	ShutdownTimeout time.Duration
	Classifier      Classifier
	Taxonomy        intent.Source
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the salestalk HTTP API server.
type Server struct {
	opts      Options
	startTime time.Time
	logger    *slog.Logger
}

func New(opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Server{opts: opts, startTime: time.Now(), logger: opts.Logger}
}

// Handler builds the routed, validated handler.
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	router, err := loadRouter(ctx)
	if err != nil {
		return nil, err
	}

	h := &Handlers{
		Classifier: s.opts.Classifier,
		Taxonomy:   s.opts.Taxonomy,
		Version:    s.opts.Version,
		StartTime:  s.startTime,
		Logger:     s.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/classify", h.Classify)
	mux.HandleFunc("GET /api/health", h.GetHealth)
	mux.HandleFunc("GET /api/taxonomy", h.GetTaxonomy)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return s.accessLog(validateRequests(router, mux)), nil
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	handler, err := s.Handler(ctx)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", s.opts.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start listener so we can log the actual port.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.logger.Info("api server started", "addr", ln.Addr().String())

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
