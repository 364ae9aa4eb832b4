package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Ingesta/internal/domain"
	"github.com/shaiso/Ingesta/internal/registry"
)

// --- Test Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedTask создаёт задачу в нужном статусе с заданным created_at.
func seedTask(status domain.TaskStatus, createdAt time.Time) domain.Task {
	task := domain.NewTask()
	task.CreatedAt = createdAt

	switch status {
	case domain.TaskStatusRunning:
		task.MarkRunning()
	case domain.TaskStatusCompleted:
		task.MarkRunning()
		task.MarkCompleted()
	case domain.TaskStatusFailed:
		task.MarkRunning()
		task.MarkFailed("boom")
	}

	return task
}

func newTestHandler(tasks ...domain.Task) *Handler {
	reg := registry.New(0)
	for _, t := range tasks {
		reg.Upsert(t)
	}

	return NewHandler(Config{
		Registry: reg,
		Logger:   discardLogger(),
	})
}

func doRequest(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
}

type taskListBody struct {
	Data  []TaskResponse `json:"data"`
	Total int            `json:"total"`
}

type taskBody struct {
	Data TaskResponse `json:"data"`
}

type healthBody struct {
	Data HealthResponse `json:"data"`
}

// --- ListTasks Tests ---

func TestListTasks_All(t *testing.T) {
	base := time.Now()
	h := newTestHandler(
		seedTask(domain.TaskStatusCompleted, base.Add(-3*time.Minute)),
		seedTask(domain.TaskStatusRunning, base.Add(-2*time.Minute)),
		seedTask(domain.TaskStatusFailed, base.Add(-1*time.Minute)),
	)

	rec := doRequest(t, h, "/api/v1/tasks")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var body taskListBody
	decodeJSON(t, rec, &body)

	if body.Total != 3 {
		t.Errorf("expected total 3, got %d", body.Total)
	}
	if len(body.Data) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(body.Data))
	}

	// Сортировка: новые первыми.
	if body.Data[0].Status != string(domain.TaskStatusFailed) {
		t.Errorf("expected newest task first, got status %q", body.Data[0].Status)
	}
	if body.Data[2].Status != string(domain.TaskStatusCompleted) {
		t.Errorf("expected oldest task last, got status %q", body.Data[2].Status)
	}
}

func TestListTasks_FilterByStatus(t *testing.T) {
	base := time.Now()
	h := newTestHandler(
		seedTask(domain.TaskStatusCompleted, base.Add(-2*time.Minute)),
		seedTask(domain.TaskStatusFailed, base.Add(-1*time.Minute)),
	)

	rec := doRequest(t, h, "/api/v1/tasks?status=completed")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body taskListBody
	decodeJSON(t, rec, &body)

	if body.Total != 1 {
		t.Fatalf("expected total 1, got %d", body.Total)
	}
	if body.Data[0].Status != string(domain.TaskStatusCompleted) {
		t.Errorf("expected completed task, got %q", body.Data[0].Status)
	}
}

func TestListTasks_Limit(t *testing.T) {
	base := time.Now()
	h := newTestHandler(
		seedTask(domain.TaskStatusCompleted, base.Add(-3*time.Minute)),
		seedTask(domain.TaskStatusCompleted, base.Add(-2*time.Minute)),
		seedTask(domain.TaskStatusFailed, base.Add(-1*time.Minute)),
	)

	rec := doRequest(t, h, "/api/v1/tasks?limit=2")

	var body taskListBody
	decodeJSON(t, rec, &body)

	if body.Total != 2 {
		t.Fatalf("expected total 2, got %d", body.Total)
	}
	if body.Data[0].Status != string(domain.TaskStatusFailed) {
		t.Errorf("expected newest task first, got %q", body.Data[0].Status)
	}
}

func TestListTasks_Empty(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, "/api/v1/tasks")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body taskListBody
	decodeJSON(t, rec, &body)

	if body.Total != 0 {
		t.Errorf("expected total 0, got %d", body.Total)
	}
	if body.Data == nil {
		t.Error("expected empty array, got null")
	}
}

func TestListTasks_InvalidStatus(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, "/api/v1/tasks?status=bogus")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body ErrorResponse
	decodeJSON(t, rec, &body)

	if body.Error.Code != ErrCodeBadRequest {
		t.Errorf("expected code %s, got %s", ErrCodeBadRequest, body.Error.Code)
	}
}

func TestListTasks_InvalidLimit(t *testing.T) {
	h := newTestHandler()

	for _, raw := range []string{"abc", "-5", "0"} {
		rec := doRequest(t, h, "/api/v1/tasks?limit="+raw)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%q: expected 400, got %d", raw, rec.Code)
		}
	}
}

// --- GetTask Tests ---

func TestGetTask(t *testing.T) {
	task := seedTask(domain.TaskStatusCompleted, time.Now())
	task.SetFileCount(7)
	h := newTestHandler(task)

	rec := doRequest(t, h, "/api/v1/tasks/"+task.ID)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body taskBody
	decodeJSON(t, rec, &body)

	if body.Data.TaskID != task.ID {
		t.Errorf("expected task_id %s, got %s", task.ID, body.Data.TaskID)
	}
	if body.Data.Status != string(domain.TaskStatusCompleted) {
		t.Errorf("expected status completed, got %q", body.Data.Status)
	}
	if body.Data.FileCount == nil || *body.Data.FileCount != 7 {
		t.Errorf("expected file_count 7, got %v", body.Data.FileCount)
	}
	if body.Data.DurationSec == nil {
		t.Error("expected duration_sec for finished task")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, "/api/v1/tasks/nonexistent")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var body ErrorResponse
	decodeJSON(t, rec, &body)

	if body.Error.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, body.Error.Code)
	}
}

// --- Health Tests ---

func TestHealth(t *testing.T) {
	base := time.Now()
	h := newTestHandler(
		seedTask(domain.TaskStatusRunning, base.Add(-2*time.Minute)),
		seedTask(domain.TaskStatusCompleted, base.Add(-1*time.Minute)),
	)

	rec := doRequest(t, h, "/api/v1/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthBody
	decodeJSON(t, rec, &body)

	if body.Data.Status != "healthy" {
		t.Errorf("expected status healthy, got %q", body.Data.Status)
	}
	if body.Data.Service != "ingesta" {
		t.Errorf("expected service ingesta, got %q", body.Data.Service)
	}
	// Без соединения с брокером health остаётся доступен.
	if body.Data.RabbitMQConnected {
		t.Error("expected rabbitmq_connected false without connection")
	}
	if body.Data.TasksTotal != 2 {
		t.Errorf("expected tasks_total 2, got %d", body.Data.TasksTotal)
	}
	if body.Data.TasksRunning != 1 {
		t.Errorf("expected tasks_running 1, got %d", body.Data.TasksRunning)
	}
}

// --- DTO Tests ---

func TestTaskFromDomain(t *testing.T) {
	task := domain.NewTask()
	task.MessageData = map[string]any{"trigger": "schedule"}
	task.MarkRunning()
	task.SetFileCount(3)
	task.MarkCompleted()

	resp := TaskFromDomain(task)

	if resp.TaskID != task.ID {
		t.Errorf("expected task_id %s, got %s", task.ID, resp.TaskID)
	}
	if resp.Status != string(domain.TaskStatusCompleted) {
		t.Errorf("expected status completed, got %q", resp.Status)
	}
	if resp.FileCount == nil || *resp.FileCount != 3 {
		t.Errorf("expected file_count 3, got %v", resp.FileCount)
	}
	if resp.StartedAt == nil || resp.CompletedAt == nil {
		t.Error("expected started_at and completed_at to be set")
	}
	if resp.DurationSec == nil {
		t.Error("expected duration_sec to be set")
	}
}

func TestTaskFromDomain_Pending(t *testing.T) {
	task := domain.NewTask()

	resp := TaskFromDomain(task)

	if resp.Status != string(domain.TaskStatusPending) {
		t.Errorf("expected status pending, got %q", resp.Status)
	}
	if resp.StartedAt != nil || resp.CompletedAt != nil {
		t.Error("expected nil timestamps for pending task")
	}
	if resp.DurationSec != nil {
		t.Error("expected nil duration_sec for pending task")
	}
}
