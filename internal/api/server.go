package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/LucaNori/arrranger/internal/api/handlers"
	"github.com/LucaNori/arrranger/internal/api/middleware"
	"github.com/LucaNori/arrranger/internal/models"
	"github.com/LucaNori/arrranger/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// Server is the operational HTTP surface: health, status, the run log and
// manual job triggers.
type Server struct {
	server *http.Server
	db     *models.Database
	sched  *scheduler.Scheduler
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(port string, db *models.Database, sched *scheduler.Scheduler, logger *logrus.Logger) *Server {
	s := &Server{
		db:     db,
		sched:  sched,
		logger: logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	statusHandler := handlers.NewStatusHandler(s.db, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	runsHandler := handlers.NewRunsHandler(s.db, s.logger)
	mux.HandleFunc("/runs", runsHandler.ServeHTTP)

	triggerHandler := handlers.NewTriggerHandler(s.sched, s.logger)
	mux.HandleFunc("/api/backup/", triggerHandler.Backup)
	mux.HandleFunc("/api/sync/", triggerHandler.Sync)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
