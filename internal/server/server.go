// Package server exposes the comparator, adjudicator, and review workflow
// over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/label-review/internal/config"
	"github.com/sells-group/label-review/internal/review"
	"github.com/sells-group/label-review/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	cfg     config.ServerConfig
}

// New builds the router and middleware stack.
func New(cfg config.ServerConfig, st store.Store, svc *review.Service) *Server {
	handler := NewHandler(st, svc)
	router := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	router.Get("/health", handler.Health)

	router.Route("/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)))

		r.Post("/compare", handler.Compare)
		r.Post("/adjudicate", handler.Adjudicate)
		r.Get("/stats", handler.Stats)

		r.Route("/applications/{id}", func(r chi.Router) {
			r.Post("/review", handler.Review)
			r.Get("/results", handler.ListResults)
			r.Get("/results/latest", handler.LatestResult)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
	}
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}
