package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — единица работы: одно принятое сообщение брокера
// и полное выполнение конвейера по нему.
//
// Task создаётся в момент приёма сообщения в пул (Worker.Submit)
// и мутируется только воркером, которому она принадлежит.
// Реестр хранит снапшоты по значению.
type Task struct {
	// ID — уникальный идентификатор task. Генерируется при приёме
	// сообщения, а не берётся из него.
	ID string `json:"id"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// MessageData — декодированный payload исходного сообщения.
	// Хранится для диагностики.
	MessageData map[string]any `json:"message_data,omitempty"`

	// FileCount — количество входных артефактов, найденных на шаге load.
	FileCount *int `json:"file_count,omitempty"`

	// MergedFile — путь к промежуточному merged-артефакту.
	// Очищается после успешного cleanup; при ошибке индексации
	// остаётся для разбора.
	MergedFile string `json:"merged_file,omitempty"`

	// Error — текст ошибки. Заполняется только при статусе failed.
	Error string `json:"error,omitempty"`

	// CreatedAt — время приёма сообщения в пул.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время начала выполнения конвейера.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время достижения терминального статуса.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask создаёт task в статусе pending со сгенерированным ID.
func NewTask() Task {
	return Task{
		ID:        uuid.New().String(),
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения конвейера.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если task достигла терминального статуса.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// SetFileCount записывает количество найденных артефактов.
func (t *Task) SetFileCount(n int) {
	t.FileCount = &n
}

// MarkRunning переводит task из pending в running.
// Повторные вызовы и вызовы из терминального статуса игнорируются:
// переходы статуса только вперёд.
func (t *Task) MarkRunning() {
	if t.Status != TaskStatusPending {
		return
	}
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
}

// MarkCompleted переводит task в статус completed.
func (t *Task) MarkCompleted() {
	if t.Status.IsTerminal() {
		return
	}
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
}

// MarkFailed переводит task в статус failed с текстом ошибки.
func (t *Task) MarkFailed(reason string) {
	if t.Status.IsTerminal() {
		return
	}
	now := time.Now()
	t.Status = TaskStatusFailed
	t.CompletedAt = &now
	t.Error = reason
}
