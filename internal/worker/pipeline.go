package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// decodePayload разбирает тело сообщения в карту произвольных полей.
//
// Принимается только JSON-объект: массивы, строки и null отклоняются,
// потому что downstream-поля задачи (message_data) определены как объект.
func decodePayload(body []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedPayload)
	}
	return payload, nil
}

// loadArtifacts читает все *.json файлы каталога и возвращает их
// как записи с применённым преобразованием summary -> text.
//
// Каждый файл — одна запись (JSON-объект). Битые файлы пропускаются
// с предупреждением, остальная партия обрабатывается дальше.
// Отсутствующий или нечитаемый каталог — ошибка всей задачи.
func loadArtifacts(dir string, logger *slog.Logger) ([]map[string]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %s: %w", dir, err)
	}

	records := make([]map[string]any, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable artifact", "path", path, "error", err)
			continue
		}

		var record map[string]any
		if err := json.Unmarshal(data, &record); err != nil {
			logger.Warn("skipping corrupt artifact", "path", path, "error", err)
			continue
		}
		if record == nil {
			logger.Warn("skipping artifact: not a JSON object", "path", path)
			continue
		}

		records = append(records, transformArtifact(record))
	}

	return records, nil
}

// transformArtifact переименовывает поле summary в text.
//
// Downstream-индексация ожидает текст записи в поле text.
func transformArtifact(record map[string]any) map[string]any {
	if summary, ok := record["summary"]; ok {
		record["text"] = summary
		delete(record, "summary")
	}
	return record
}

// stageMerged записывает объединённые записи в уникально именованный
// staging-файл и возвращает его путь.
//
// Имя содержит таймштамп и случайный суффикс, поэтому параллельные
// задачи никогда не конкурируют за один файл. Пустая партия даёт
// файл с пустым массивом.
func stageMerged(records []map[string]any, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir %s: %w", dir, err)
	}

	if records == nil {
		records = []map[string]any{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal merged records: %w", err)
	}

	name := fmt.Sprintf("merged_cti_%s_%s.json",
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8],
	)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write merged artifact: %w", err)
	}

	return path, nil
}
