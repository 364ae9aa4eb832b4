package worker

import "errors"

// Ошибки воркера.
var (
	// ErrWorkerStopped — пул остановлен, новые задачи не принимаются.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrMalformedPayload — тело сообщения не является JSON-объектом.
	ErrMalformedPayload = errors.New("malformed message payload")

	// ErrNoIndexer — исполнитель индексации не сконфигурирован.
	ErrNoIndexer = errors.New("indexer is not configured")
)
