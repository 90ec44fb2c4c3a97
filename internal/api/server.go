// Package api exposes the tuning engine over HTTP: attempt ingest and
// queries, mined sweet spots, resolved recommendations, and generation
// plans.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/forgepoint/gentuner/internal/config"
	"github.com/forgepoint/gentuner/internal/genconfig"
	"github.com/forgepoint/gentuner/internal/monitoring"
	"github.com/forgepoint/gentuner/internal/recommend"
	"github.com/forgepoint/gentuner/internal/scorer"
	"github.com/forgepoint/gentuner/internal/store"
	"github.com/forgepoint/gentuner/internal/sweetspot"
)

// Deps carries the engine components the server fronts.
type Deps struct {
	Store      store.Store
	Scorer     *scorer.Scorer
	Analyzer   *sweetspot.Analyzer
	Resolver   *recommend.Resolver
	Calculator *genconfig.Calculator
	Metrics    *monitoring.Metrics
	// Registry backs the /metrics endpoint. When nil the endpoint is not
	// mounted.
	Registry *prometheus.Registry
}

// Server is the engine HTTP API.
type Server struct {
	store      store.Store
	scorer     *scorer.Scorer
	analyzer   *sweetspot.Analyzer
	resolver   *recommend.Resolver
	calculator *genconfig.Calculator
	metrics    *monitoring.Metrics
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer assembles the router and wraps it in an http.Server listening
// on cfg.Port.
func NewServer(deps Deps, cfg config.ServerConfig) *Server {
	s := &Server{
		store:      deps.Store,
		scorer:     deps.Scorer,
		analyzer:   deps.Analyzer,
		resolver:   deps.Resolver,
		calculator: deps.Calculator,
		metrics:    deps.Metrics,
		limiter:    rate.NewLimiter(rate.Limit(cfg.IngestRate), cfg.IngestBurst),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(s.throttleWrites).Post("/attempts", s.handleIngest)
		r.Get("/attempts", s.handleListAttempts)
		r.With(s.throttleWrites).Post("/attempts/{id}/archive", s.handleArchive)
		r.Get("/sweetspots/{componentType}", s.handleSweetSpot)
		r.Get("/sweetspots/{componentType}/{itemKey}", s.handleSweetSpot)
		r.Get("/recommendations/{componentType}", s.handleRecommendation)
		r.Get("/recommendations/{componentType}/{itemKey}", s.handleRecommendation)
		r.Post("/plan", s.handlePlan)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	zap.L().Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: server listen")
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// logRequests emits one debug line per request and feeds the latency
// histogram. Runs outside Recoverer so panicking requests still get logged.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, r.Method, ww.Status(), elapsed)
		}
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// throttleWrites applies the shared ingest rate limit to mutating endpoints.
func (s *Server) throttleWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "ingest rate exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
