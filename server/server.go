// Package server exposes the gate over HTTP: diff submission, the approval
// queue, policy inspection and mutation, health and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/patchgate/patchgate/service/gate"
)

// Options tunes the HTTP listener.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wires the gate service into a chi router.
type Server struct {
	router  *chi.Mux
	logger  *zap.Logger
	gate    *gate.Service
	metrics *Metrics
	http    *http.Server
}

// New builds the server. logger must not be nil; pass zap.NewNop() to silence.
func New(svc *gate.Service, logger *zap.Logger, options Options) *Server {
	if options.Addr == "" {
		options.Addr = ":8091"
	}
	s := &Server{
		router: chi.NewRouter(),
		logger: logger.Named("http"),
		gate:   svc,
	}
	s.metrics = NewMetrics(s.pendingCount)
	s.routes()
	s.http = &http.Server{
		Addr:         options.Addr,
		Handler:      s.router,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Post("/v1/diffs/apply", s.handleApply)

	r.Route("/v1/approvals", func(r chi.Router) {
		r.Get("/", s.handleListApprovals)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetApproval)
			r.Post("/approve", s.resolveHandler(gate.OutcomeApprove))
			r.Post("/deny", s.resolveHandler(gate.OutcomeDeny))
		})
	})

	r.Route("/v1/policy", func(r chi.Router) {
		r.Get("/", s.handleGetPolicy)
		r.Put("/", s.handlePutOverrides)
	})
	r.Put("/v1/mode", s.handlePutMode)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) pendingCount() float64 {
	records, err := s.gate.List(context.Background(), gate.StatusPending)
	if err != nil {
		return 0
	}
	return float64(len(records))
}
