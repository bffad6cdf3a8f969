// Package httpapi exposes the scheduler over a small JSON HTTP surface:
// task submission, status, cancellation, reports and worker registration.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskpilot/taskpilot/internal/core/port"
	"github.com/taskpilot/taskpilot/internal/core/service"
	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	scheduler  *service.Scheduler
	reports    *service.ReportGenerator

	archive   port.ArchiveStore
	directory port.WorkerDirectory
	dbHealth  func(ctx context.Context) error
}

type Config struct {
	Port string
}

func NewServer(cfg Config, logger *zap.Logger, sched *service.Scheduler, reports *service.ReportGenerator) *Server {
	r := mux.NewRouter()

	srv := &Server{
		logger:    logger,
		scheduler: sched,
		reports:   reports,
	}

	// Metrics
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Health
	r.HandleFunc("/api/v1/health", srv.handleHealth).Methods(http.MethodGet)

	// Tasks. The archive route must be registered before the {id} routes so
	// mux does not capture "archive" as a task id.
	r.HandleFunc("/api/v1/tasks", srv.handleSubmitTask).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/tasks", srv.handleListActive).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tasks/archive", srv.handleListArchive).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tasks/{id}", srv.handleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tasks/{id}", srv.handleCancelTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/tasks/{id}/report", srv.handleTaskReport).Methods(http.MethodGet)

	// System report
	r.HandleFunc("/api/v1/report", srv.handleSystemReport).Methods(http.MethodGet)

	// Workers
	r.HandleFunc("/api/v1/workers", srv.handleRegisterWorker).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/workers", srv.handleListWorkers).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/workers/cluster", srv.handleClusterWorkers).Methods(http.MethodGet)

	s := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv.httpServer = s
	return srv
}

// SetArchiveStore enables the durable-history endpoint.
func (s *Server) SetArchiveStore(store port.ArchiveStore) {
	s.archive = store
}

// SetWorkerDirectory enables the cluster-wide worker view.
func (s *Server) SetWorkerDirectory(dir port.WorkerDirectory) {
	s.directory = dir
}

// SetHealthCheck attaches a dependency probe; the health endpoint reports
// 503 while the probe fails.
func (s *Server) SetHealthCheck(check func(ctx context.Context) error) {
	s.dbHealth = check
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
