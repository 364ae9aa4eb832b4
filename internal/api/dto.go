package api

import (
	"time"

	"github.com/shaiso/Ingesta/internal/domain"
)

// TaskResponse — DTO задачи для API.
type TaskResponse struct {
	TaskID      string         `json:"task_id"`
	Status      string         `json:"status"`
	MessageData map[string]any `json:"message_data,omitempty"`
	FileCount   *int           `json:"file_count,omitempty"`
	MergedFile  string         `json:"merged_file,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationSec *float64       `json:"duration_sec,omitempty"`
}

// TaskFromDomain конвертирует доменную задачу в DTO.
func TaskFromDomain(t domain.Task) TaskResponse {
	resp := TaskResponse{
		TaskID:      t.ID,
		Status:      string(t.Status),
		MessageData: t.MessageData,
		FileCount:   t.FileCount,
		MergedFile:  t.MergedFile,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.StartedAt != nil && t.CompletedAt != nil {
		sec := t.Duration().Seconds()
		resp.DurationSec = &sec
	}
	return resp
}

// HealthResponse — DTO состояния сервиса.
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	RabbitMQConnected bool   `json:"rabbitmq_connected"`
	TasksTotal        int    `json:"tasks_total"`
	TasksRunning      int    `json:"tasks_running"`
}
