// Package server implements the read-only HTTP facade: health, sync
// status, stored price history, latest price, derived analytics, and
// provider routability, over the Public Facade. Middleware chain and route
// wiring follow the originating codebase's internal/server package
// (chi router, go-chi/cors, a request-scoped logging middleware) adapted
// to use google/uuid for request correlation instead of chi's built-in
// request-id generator.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/config"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/facade"
)

// Config holds server construction parameters.
type Config struct {
	Log     zerolog.Logger
	Facade  *facade.Facade
	Cfg     *config.Config
	Port    int
	DevMode bool
}

// Server is the read-only HTTP facade.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	facade *facade.Facade
	cfg    *config.Config
}

// New constructs the Server, wiring middleware and routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		facade: cfg.Facade,
		cfg:    cfg.Cfg,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestIDMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/providers/health", s.handleProvidersHealth)

	s.router.Route("/symbols/{code}", func(r chi.Router) {
		r.Get("/prices", s.handlePrices)
		r.Get("/prices/latest", s.handleLatestPrice)
		r.Get("/analytics/sma", s.handleSMA)
		r.Get("/analytics/volatility", s.handleVolatility)
	})
}

// Start begins serving. Blocks until the server stops or errors.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs one line per request, mirroring the originating
// codebase's request logger but keying on the uuid-based request ID this
// package installs instead of chi's built-in generator.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", requestIDFromContext(r.Context())).
			Msg("http request")
	})
}
