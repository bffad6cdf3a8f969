package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpilot/taskpilot/internal/core/domain"
	"github.com/taskpilot/taskpilot/internal/core/service"
	"go.uber.org/zap"
)

func newTestServer() *Server {
	log := zap.NewNop()
	gen := service.NewReportGenerator(service.DefaultThresholds())
	tracker := service.NewTracker(service.TrackerConfig{}, gen, log)
	sched := service.NewScheduler(service.SchedulerConfig{}, tracker, log)
	return NewServer(Config{Port: "0"}, log, sched, gen)
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func submitTask(t *testing.T, srv *Server, body string) *domain.Task {
	t.Helper()
	rec := doRequest(srv, http.MethodPost, "/api/v1/tasks", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp submitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Task)
	return resp.Task
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("no probe configured", func(t *testing.T) {
		rec := doRequest(newTestServer(), http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("probe passing", func(t *testing.T) {
		srv := newTestServer()
		srv.SetHealthCheck(func(_ context.Context) error { return nil })
		rec := doRequest(srv, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("probe failing turns health red", func(t *testing.T) {
		srv := newTestServer()
		srv.SetHealthCheck(func(_ context.Context) error { return errors.New("dial tcp: connection refused") })
		rec := doRequest(srv, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var apiErr apiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, "dependency_unavailable", apiErr.Error)
	})
}

func TestSubmitTask(t *testing.T) {
	srv := newTestServer()

	t.Run("accepted", func(t *testing.T) {
		task := submitTask(t, srv, `{"description":"reindex","priority":"high"}`)
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, domain.PriorityHigh, task.Priority)
		assert.Equal(t, domain.TaskStatusQueued, task.Status)
	})

	t.Run("validation failure", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/api/v1/tasks", `{"priority":"high"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var apiErr apiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, "validation_error", apiErr.Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/api/v1/tasks", `{"description":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var apiErr apiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, "invalid_json", apiErr.Error)
	})
}

func TestGetTask(t *testing.T) {
	srv := newTestServer()
	task := submitTask(t, srv, `{"description":"lookup me"}`)

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/"+task.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp getTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, task.ID, resp.Task.ID)
	assert.Equal(t, "lookup me", resp.Task.Description)

	rec = doRequest(srv, http.MethodGet, "/api/v1/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListActiveTasks(t *testing.T) {
	srv := newTestServer()
	submitTask(t, srv, `{"description":"one"}`)
	submitTask(t, srv, `{"description":"two"}`)

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp listTasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
}

func TestCancelTask(t *testing.T) {
	srv := newTestServer()
	task := submitTask(t, srv, `{"description":"to cancel"}`)

	rec := doRequest(srv, http.MethodDelete, "/api/v1/tasks/"+task.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Already cancelled.
	rec = doRequest(srv, http.MethodDelete, "/api/v1/tasks/"+task.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "not_cancelable", apiErr.Error)

	rec = doRequest(srv, http.MethodDelete, "/api/v1/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskReportEndpoint(t *testing.T) {
	srv := newTestServer()
	task := submitTask(t, srv, `{"description":"finalized"}`)

	// No report until the task is finalized.
	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/"+task.ID+"/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Cancellation finalizes the record and generates its report.
	rec = doRequest(srv, http.MethodDelete, "/api/v1/tasks/"+task.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/tasks/"+task.ID+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.TaskReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, task.ID, report.TaskID)
	assert.Equal(t, domain.TaskStatusCancelled, report.Status)
}

func TestSystemReportEndpoint(t *testing.T) {
	srv := newTestServer()

	rec := doRequest(srv, http.MethodGet, "/api/v1/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.SystemReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 100, report.HealthScore)
	assert.Equal(t, 0, report.TotalTasks)
}

type fakeArchiveStore struct {
	tasks     []*domain.Task
	gotLimit  int
	returnErr error
}

func (f *fakeArchiveStore) Save(_ context.Context, _ *domain.Task) error { return nil }

func (f *fakeArchiveStore) ListRecent(_ context.Context, limit int) ([]*domain.Task, error) {
	f.gotLimit = limit
	return f.tasks, f.returnErr
}

type fakeWorkerDirectory struct {
	workers   []*domain.Worker
	returnErr error
}

func (f *fakeWorkerDirectory) Announce(_ context.Context, _ *domain.Worker) error { return nil }

func (f *fakeWorkerDirectory) ListActive(_ context.Context) ([]*domain.Worker, error) {
	return f.workers, f.returnErr
}

func TestArchiveEndpoint(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		rec := doRequest(newTestServer(), http.MethodGet, "/api/v1/tasks/archive", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var apiErr apiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, "archive_not_configured", apiErr.Error)
	})

	t.Run("lists durable history", func(t *testing.T) {
		srv := newTestServer()
		store := &fakeArchiveStore{tasks: []*domain.Task{
			{ID: "old-1", Status: domain.TaskStatusCompleted},
			{ID: "old-2", Status: domain.TaskStatusFailed},
		}}
		srv.SetArchiveStore(store)

		rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/archive?limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, store.gotLimit)

		var resp listTasksResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "old-1", resp.Items[0].ID)
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		srv := newTestServer()
		srv.SetArchiveStore(&fakeArchiveStore{})
		rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/archive?limit=soon", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure surfaces as 500", func(t *testing.T) {
		srv := newTestServer()
		srv.SetArchiveStore(&fakeArchiveStore{returnErr: errors.New("relation does not exist")})
		rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/archive", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("does not shadow task lookup", func(t *testing.T) {
		srv := newTestServer()
		srv.SetArchiveStore(&fakeArchiveStore{})
		task := submitTask(t, srv, `{"description":"still reachable"}`)
		rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/"+task.ID, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestClusterWorkersEndpoint(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		rec := doRequest(newTestServer(), http.MethodGet, "/api/v1/workers/cluster", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var apiErr apiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, "directory_not_configured", apiErr.Error)
	})

	t.Run("lists directory workers", func(t *testing.T) {
		srv := newTestServer()
		srv.SetWorkerDirectory(&fakeWorkerDirectory{workers: []*domain.Worker{
			{ID: "remote-1", MaxLoad: 5, Status: domain.WorkerStatusReady},
			{ID: "remote-2", MaxLoad: 3, Status: domain.WorkerStatusReady},
		}})

		rec := doRequest(srv, http.MethodGet, "/api/v1/workers/cluster", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp clusterWorkersResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "remote-1", resp.Items[0].ID)
	})

	t.Run("directory failure surfaces as 500", func(t *testing.T) {
		srv := newTestServer()
		srv.SetWorkerDirectory(&fakeWorkerDirectory{returnErr: errors.New("redis: connection pool timeout")})
		rec := doRequest(srv, http.MethodGet, "/api/v1/workers/cluster", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestWorkerEndpoints(t *testing.T) {
	srv := newTestServer()

	rec := doRequest(srv, http.MethodPost, "/api/v1/workers", `{"id":"w1","max_load":4,"capabilities":["gpu"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created registerWorkerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "w1", created.Worker.ID)
	assert.Equal(t, 4, created.Worker.MaxLoad)

	rec = doRequest(srv, http.MethodPost, "/api/v1/workers", `{"id":"w1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/v1/workers", `{"max_load":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/workers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listWorkersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, []string{"gpu"}, list.Items[0].Capabilities)
}
