package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// stderrTailLen ограничивает объём stderr внешней команды, попадающий в ошибку.
const stderrTailLen = 512

// Indexer отправляет staged-артефакт во внешний индекс.
//
// Вызов блокирующий: индексация больших партий может занимать минуты,
// внутренний таймаут не накладывается.
type Indexer interface {
	Run(ctx context.Context, artifactPath string) error
}

// ExecIndexer — Indexer поверх внешней команды chunk_and_ingest.
//
// Команда получает аргументы:
//   - --src <path>: staged-файл с объединёнными записями
//   - --collection <name>: целевая коллекция Qdrant
//   - --qdrant-url <url>: адрес Qdrant
//   - --create-indexes: создать payload-индексы при отсутствии
type ExecIndexer struct {
	command    string
	qdrantURL  string
	collection string
	logger     *slog.Logger
}

// NewExecIndexer создаёт исполнитель индексации.
func NewExecIndexer(command, qdrantURL, collection string, logger *slog.Logger) *ExecIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecIndexer{
		command:    command,
		qdrantURL:  qdrantURL,
		collection: collection,
		logger:     logger,
	}
}

// Run запускает команду индексации и дожидается её завершения.
//
// Ненулевой код выхода возвращается как ошибка с хвостом stderr.
func (e *ExecIndexer) Run(ctx context.Context, artifactPath string) error {
	cmd := exec.CommandContext(ctx, e.command,
		"--src", artifactPath,
		"--collection", e.collection,
		"--qdrant-url", e.qdrantURL,
		"--create-indexes",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("running indexer command",
		"command", e.command,
		"src", artifactPath,
		"collection", e.collection,
	)

	if err := cmd.Run(); err != nil {
		detail := tail(strings.TrimSpace(stderr.String()), stderrTailLen)
		if detail != "" {
			return fmt.Errorf("indexer command failed: %w: %s", err, detail)
		}
		return fmt.Errorf("indexer command failed: %w", err)
	}

	return nil
}

// tail возвращает последние maxLen байт строки.
func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
