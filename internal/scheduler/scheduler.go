package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Ingesta/internal/mq"
)

// cronParser — парсер cron-выражений (пять полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler публикует синтетические ingest-сообщения по расписанию.
//
// На каждый тик во входную очередь уходит обычное сообщение:
// дальше оно проходит тот же путь, что и событие от upstream —
// consumer, пул, конвейер. Отдельного пути исполнения у плановых
// запусков нет.
type Scheduler struct {
	publisher *mq.Publisher
	schedule  cron.Schedule
	cronExpr  string
	logger    *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	// Publisher, направленный на входную очередь (обязательно)
	Publisher *mq.Publisher

	// CronExpr — расписание запусков
	CronExpr string

	// Logger
	Logger *slog.Logger
}

// New создаёт Scheduler; невалидное cron-выражение — ошибка.
func New(cfg Config) (*Scheduler, error) {
	schedule, err := cronParser.Parse(cfg.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.CronExpr, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		publisher: cfg.Publisher,
		schedule:  schedule,
		cronExpr:  cfg.CronExpr,
		logger:    logger,
	}, nil
}

// Run крутит цикл расписания до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "cron", s.cronExpr)

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.tick(ctx, next)
		}
	}
}

// tick публикует одно синтетическое сообщение.
func (s *Scheduler) tick(ctx context.Context, scheduledAt time.Time) {
	body, err := json.Marshal(map[string]any{
		"trigger":      "schedule",
		"scheduled_at": scheduledAt.Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("failed to marshal scheduled trigger", "error", err)
		return
	}

	if err := s.publisher.PublishRaw(ctx, body); err != nil {
		// Не фатальная ошибка — следующий тик попробует снова
		s.logger.Warn("failed to publish scheduled trigger", "error", err)
		return
	}

	s.logger.Info("scheduled ingest trigger published", "scheduled_at", scheduledAt)
}
