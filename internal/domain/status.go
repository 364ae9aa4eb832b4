package domain

// TaskStatus — статус выполнения task.
//
// Жизненный цикл (строго вперёд, без регрессий):
//
//	pending → running → completed
//	                  ↘ failed
type TaskStatus string

const (
	// TaskStatusPending — task принят в пул, ожидает обработчика.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning — конвейер task выполняется воркером.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted — конвейер успешно завершён.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed — конвейер завершился с ошибкой.
	TaskStatusFailed TaskStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// ParseTaskStatus парсит строку в TaskStatus.
// Второе значение false, если строка не является известным статусом.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch s {
	case "pending":
		return TaskStatusPending, true
	case "running":
		return TaskStatusRunning, true
	case "completed":
		return TaskStatusCompleted, true
	case "failed":
		return TaskStatusFailed, true
	default:
		return "", false
	}
}
