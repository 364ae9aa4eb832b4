package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Ingesta/internal/domain"
)

// ArchiveRepo пишет терминальные tasks в Postgres.
//
// Реестр живёт в памяти и теряется при рестарте; архив — одностороннее
// хранилище для аудита, которое его переживает. Читателей в системе
// нет, выборки делает оператор вручную.
type ArchiveRepo struct {
	pool *pgxpool.Pool
}

// NewArchiveRepo создаёт новый ArchiveRepo.
func NewArchiveRepo(pool *pgxpool.Pool) *ArchiveRepo {
	return &ArchiveRepo{pool: pool}
}

// EnsureSchema создаёт таблицу архива, если её ещё нет.
func (r *ArchiveRepo) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS task_archive (
			task_id      TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			message_data JSONB,
			file_count   INTEGER,
			merged_file  TEXT,
			error        TEXT,
			created_at   TIMESTAMPTZ NOT NULL,
			started_at   TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create task_archive table: %w", err)
	}
	return nil
}

// Archive сохраняет терминальную task.
//
// Вставка идемпотентна по task_id: task становится терминальной один
// раз, повторный вызов ничего не перезаписывает.
func (r *ArchiveRepo) Archive(ctx context.Context, task domain.Task) error {
	messageJSON, err := json.Marshal(task.MessageData)
	if err != nil {
		return fmt.Errorf("marshal message_data: %w", err)
	}

	query := `
		INSERT INTO task_archive (task_id, status, message_data, file_count,
		                          merged_file, error, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO NOTHING
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		messageJSON,
		task.FileCount,
		nullString(task.MergedFile),
		nullString(task.Error),
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task archive: %w", err)
	}
	return nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
