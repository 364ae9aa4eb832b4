package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Ingesta/internal/domain"
)

const defaultListLimit = 100

// ListTasks возвращает список задач из реестра.
// Поддерживает фильтр по статусу (?status=) и ограничение размера (?limit=).
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var status domain.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := domain.ParseTaskStatus(raw)
		if !ok {
			BadRequest(w, "invalid status: "+raw)
			return
		}
		status = parsed
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid limit: "+raw)
			return
		}
		limit = parsed
	}

	tasks := h.registry.List(status, limit)

	result := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, TaskFromDomain(t))
	}

	List(w, result, len(result))
}

// GetTask возвращает задачу по ID.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, ok := h.registry.Get(id)
	if !ok {
		NotFound(w, "task not found: "+id)
		return
	}

	Success(w, TaskFromDomain(task))
}

// Health возвращает состояние сервиса: соединение с брокером и счётчики задач.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	total, running := h.registry.Stats()

	connected := false
	if h.conn != nil {
		connected = h.conn.IsConnected()
	}

	Success(w, HealthResponse{
		Status:            "healthy",
		Service:           "ingesta",
		RabbitMQConnected: connected,
		TasksTotal:        total,
		TasksRunning:      running,
	})
}
