// Package web serves the JSON API: health, status, stored preferences and
// the track change history, plus a manual sync trigger.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"autolingo/internal/config"
	"autolingo/internal/database"
	"autolingo/internal/notification"
	"autolingo/internal/web/middleware"
)

// Server represents the API server
type Server struct {
	cfg      *config.Store
	db       *database.DB
	notifier *notification.Manager
	router   *chi.Mux

	// syncFn runs a full preference sync when the API asks for one.
	syncFn func(context.Context)

	version   string
	startedAt time.Time
}

// NewServer creates the API server. syncFn may be nil when manual syncs are
// not available.
func NewServer(cfg *config.Store, db *database.DB, notifier *notification.Manager, syncFn func(context.Context), version string) *Server {
	s := &Server{
		cfg:       cfg,
		db:        db,
		notifier:  notifier,
		router:    chi.NewRouter(),
		syncFn:    syncFn,
		version:   version,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Use(middleware.APIKey(func() string { return s.cfg.Get().HTTP.APIKey }))

		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/preferences", s.handleListPreferences)
		r.Delete("/preferences/{userID}/{showRatingKey}", s.handleDeletePreference)
		r.Post("/sync", s.handleSync)
		r.Post("/notifications/{provider}/test", s.handleTestNotification)
	})
}

// Start runs the server until ctx is cancelled, then shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Get()
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
