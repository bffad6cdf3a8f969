package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/taskpilot/taskpilot/internal/core/domain"
	"github.com/taskpilot/taskpilot/internal/core/service"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.dbHealth != nil {
		if err := s.dbHealth(r.Context()); err != nil {
			s.logger.Warn("health probe failed", zap.Error(err))
			writeErr(w, http.StatusServiceUnavailable, "dependency_unavailable", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string, details string) {
	writeJSON(w, status, apiError{Error: msg, Details: details})
}

type submitTaskResponse struct {
	Task *domain.Task `json:"task"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	task, err := s.scheduler.Submit(req)
	if err != nil {
		if domain.IsValidation(err) {
			writeErr(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	s.logger.Debug("task accepted over http", zap.String("task_id", task.ID))
	writeJSON(w, http.StatusCreated, submitTaskResponse{Task: task})
}

type getTaskResponse struct {
	Task *domain.Task `json:"task"`
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.scheduler.GetStatus(id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeErr(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, getTaskResponse{Task: task})
}

type listTasksResponse struct {
	Items []*domain.Task `json:"items"`
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listTasksResponse{Items: s.scheduler.ListActive()})
}

// handleListArchive serves finalized records from the durable archive, newest
// first. Only available when a Postgres archive is configured.
func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeErr(w, http.StatusServiceUnavailable, "archive_not_configured", "no durable archive store is attached")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	tasks, err := s.archive.ListRecent(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listTasksResponse{Items: tasks})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.scheduler.Cancel(id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrTaskNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, domain.ErrNotCancelable):
		writeErr(w, http.StatusConflict, "not_cancelable", "only queued or retrying tasks can be cancelled")
	default:
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleTaskReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, err := s.scheduler.TaskReport(id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeErr(w, http.StatusNotFound, "not_found", "no report for task (not finalized or evicted)")
			return
		}
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSystemReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.SystemReport(s.reports))
}

type registerWorkerResponse struct {
	Worker *domain.Worker `json:"worker"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var spec service.WorkerSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	worker, err := s.scheduler.RegisterWorker(spec)
	if err != nil {
		switch {
		case domain.IsValidation(err):
			writeErr(w, http.StatusBadRequest, "validation_error", err.Error())
		case errors.Is(err, domain.ErrWorkerExists):
			writeErr(w, http.StatusConflict, "already_registered", err.Error())
		default:
			writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, registerWorkerResponse{Worker: worker})
}

type listWorkersResponse struct {
	Items []domain.Worker `json:"items"`
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listWorkersResponse{Items: s.scheduler.ListWorkers()})
}

type clusterWorkersResponse struct {
	Items []*domain.Worker `json:"items"`
}

// handleClusterWorkers returns the directory's view of live workers across
// every daemon, as opposed to this process's own registrations.
func (s *Server) handleClusterWorkers(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeErr(w, http.StatusServiceUnavailable, "directory_not_configured", "no worker directory is attached")
		return
	}

	workers, err := s.directory.ListActive(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, clusterWorkersResponse{Items: workers})
}
