package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shaiso/Ingesta/internal/domain"
	"github.com/shaiso/Ingesta/internal/mq"
	"github.com/shaiso/Ingesta/internal/registry"
	"github.com/shaiso/Ingesta/internal/telemetry"
)

// Default configuration values.
const (
	defaultWorkers      = 4
	defaultDrainTimeout = 30 * time.Second
)

// Archiver сохраняет терминальные tasks во внешнее хранилище.
//
// Реализация: repo.ArchiveRepo.
type Archiver interface {
	Archive(ctx context.Context, task domain.Task) error
}

// Delivery — сообщение входной очереди, взятое Worker'ом в работу.
//
// Реализация: mq.Delivery. Ack/nack уходят через ack-funnel соединения.
type Delivery interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// CompletionPublisher отправляет completion-события в выходную очередь.
//
// Реализация: mq.Publisher.
type CompletionPublisher interface {
	Publish(ctx context.Context, taskID string, data map[string]any) error
}

// Worker выполняет ingest-tasks из очереди RabbitMQ.
//
// Worker — единственный исполняющий компонент системы, который:
//   - Потребляет сообщения входной очереди (prefetch = размер пула)
//   - Для каждого сообщения создаёт task и проводит её через конвейер:
//     decode -> load -> transform -> merge -> index -> cleanup
//   - Подтверждает сообщение после терминального статуса task
//   - Публикует completion-событие для успешных tasks
//
// Пул фиксированного размера: заполненный пул блокирует выдачу
// новых сообщений, prefetch-окно брокера закрывается и upstream
// получает естественный backpressure.
type Worker struct {
	// MQ
	conn      *mq.Connection
	publisher CompletionPublisher

	// Состояние tasks
	registry *registry.Registry
	archiver Archiver

	// Конвейер
	indexer    Indexer
	sourceDir  string
	stagingDir string
	completion map[string]any

	// Пул
	queue        string
	workers      int
	drainTimeout time.Duration

	// Consumer
	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	items      chan item
	quit       chan struct{}
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// item — принятая task вместе с исходным сообщением.
type item struct {
	task     domain.Task
	delivery Delivery
}

// Config — конфигурация Worker.
type Config struct {
	// MQ
	Conn      *mq.Connection
	Publisher CompletionPublisher

	// Реестр tasks (опционально; если nil — создаётся неограниченный)
	Registry *registry.Registry

	// Индексация staged-артефактов (обязательно)
	Indexer Indexer

	// Архив терминальных tasks (опционально; nil — выключено)
	Archiver Archiver

	// Входная очередь
	Queue string

	// Размер пула (default: 4). Он же prefetch брокера.
	Workers int

	// Каталоги конвейера
	SourceDir  string
	StagingDir string

	// Статические поля completion-события (collection, qdrant_url и т.п.)
	Completion map[string]any

	// DrainTimeout — сколько ждать завершения начатых tasks при Stop (default: 30s)
	DrainTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.New(0)
	}

	return &Worker{
		conn:         cfg.Conn,
		publisher:    cfg.Publisher,
		registry:     reg,
		archiver:     cfg.Archiver,
		indexer:      cfg.Indexer,
		sourceDir:    cfg.SourceDir,
		stagingDir:   cfg.StagingDir,
		completion:   cfg.Completion,
		queue:        cfg.Queue,
		workers:      workers,
		drainTimeout: drainTimeout,
		logger:       logger,
		items:        make(chan item),
		quit:         make(chan struct{}),
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Пул из workers горутин-обработчиков
//   - Consumer входной очереди с prefetch = размеру пула
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker pool",
		"queue", w.queue,
		"workers", w.workers,
		"source_dir", w.sourceDir,
		"staging_dir", w.stagingDir,
	)

	w.startPool()

	// Создаём consumer
	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    w.queue,
		Handler:  w.handleDelivery,
		Prefetch: w.workers,
	})

	// Запускаем consumer
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("ingest consumer error", "error", err)
		}
	}()

	w.logger.Info("worker pool started")
	return nil
}

// startPool запускает горутины пула.
func (w *Worker) startPool() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runWorker()
		}()
	}
}

// Stop останавливает Worker.
//
// Порядок: прекратить приём новых сообщений, дождаться начатых tasks
// (не дольше drainTimeout), затем отпустить пул. По истечении таймаута
// оставшиеся tasks бросаются на месте — их терминальный статус уже не
// будет зафиксирован, это отражается в логе.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	if w.stopped {
		w.stoppedMu.Unlock()
		return
	}
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker pool...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	close(w.quit)

	// Ждём завершения горутин, но не дольше drainTimeout
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker pool stopped")
	case <-time.After(w.drainTimeout):
		running := w.registry.List(domain.TaskStatusRunning, 0)
		w.logger.Error("drain timeout exceeded, abandoning in-flight tasks",
			"timeout", w.drainTimeout,
			"abandoned", len(running),
		)
		for _, task := range running {
			w.logger.Warn("task abandoned mid-pipeline", "task_id", task.ID)
		}
	}
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleDelivery — обработчик входной очереди.
//
// Блокируется, пока пул не примет задачу: это и есть backpressure
// для prefetch-окна брокера.
func (w *Worker) handleDelivery(ctx context.Context, d *mq.Delivery) error {
	return w.Submit(ctx, d)
}

// Submit регистрирует новую task и передаёт её пулу.
//
// Блокируется до свободного воркера. Если пул остановлен или ctx отменён
// до передачи, task помечается failed, а ошибка возвращается вызывающему —
// сообщение остаётся за ним (consumer вернёт его в очередь).
func (w *Worker) Submit(ctx context.Context, d Delivery) error {
	w.stoppedMu.RLock()
	stopped := w.stopped
	w.stoppedMu.RUnlock()
	if stopped {
		return ErrWorkerStopped
	}

	task := domain.NewTask()
	w.registry.Upsert(task)

	w.logger.Debug("task submitted", "task_id", task.ID)

	select {
	case w.items <- item{task: task, delivery: d}:
		return nil
	case <-w.quit:
		w.abandonTask(task)
		return ErrWorkerStopped
	case <-ctx.Done():
		w.abandonTask(task)
		return ctx.Err()
	}
}

// abandonTask фиксирует task, не дошедшую до пула из-за остановки.
func (w *Worker) abandonTask(task domain.Task) {
	task.MarkFailed("worker stopped before task started")
	w.registry.Upsert(task)
	telemetry.TasksTotal.WithLabelValues(string(domain.TaskStatusFailed)).Inc()
}

// runWorker — цикл одного воркера пула.
func (w *Worker) runWorker() {
	for {
		select {
		case it := <-w.items:
			w.process(it)
		case <-w.quit:
			return
		}
	}
}

// process проводит одну task через конвейер до терминального статуса.
//
// Конвейер не прерывается отменой контекста: начатая task либо
// завершается, либо фиксирует ошибку. Shutdown ждёт её через drain.
func (w *Worker) process(it item) {
	ctx := context.Background()
	task := it.task
	log := telemetry.WithTaskID(w.logger, task.ID)

	task.MarkRunning()
	w.registry.Upsert(task)

	telemetry.TasksRunning.Inc()
	defer telemetry.TasksRunning.Dec()

	log.Info("task started")
	started := time.Now()

	err := w.runPipeline(ctx, &task, it.delivery.Body(), log)

	duration := time.Since(started)
	telemetry.TaskDuration.Observe(duration.Seconds())

	if err != nil {
		task.MarkFailed(err.Error())
		w.registry.Upsert(task)
		telemetry.TasksTotal.WithLabelValues(string(domain.TaskStatusFailed)).Inc()

		log.Error("task failed", "error", err, "duration", duration)

		// Повторная доставка не поможет: ошибка детерминирована
		// (битый payload или падение downstream-шага)
		if nackErr := it.delivery.Nack(false); nackErr != nil {
			log.Warn("failed to nack message", "error", nackErr)
		}

		w.archiveTask(ctx, task, log)
		return
	}

	task.MarkCompleted()
	w.registry.Upsert(task)
	telemetry.TasksTotal.WithLabelValues(string(domain.TaskStatusCompleted)).Inc()

	w.publishCompletion(ctx, task, log)

	if ackErr := it.delivery.Ack(); ackErr != nil {
		log.Warn("failed to ack message", "error", ackErr)
	}

	log.Info("task completed", "duration", duration, "file_count", fileCount(task))

	w.archiveTask(ctx, task, log)
}

// runPipeline выполняет шаги конвейера, обновляя task в реестре
// по мере продвижения — промежуточное состояние видно status API.
func (w *Worker) runPipeline(ctx context.Context, task *domain.Task, body []byte, log *slog.Logger) error {
	// 1. Decode
	payload, err := decodePayload(body)
	if err != nil {
		return err
	}
	task.MessageData = payload
	w.registry.Upsert(*task)

	// 2-3. Load + transform
	records, err := loadArtifacts(w.sourceDir, log)
	if err != nil {
		return err
	}
	task.SetFileCount(len(records))
	w.registry.Upsert(*task)

	log.Info("artifacts loaded", "count", len(records), "source_dir", w.sourceDir)

	// 4-5. Merge + stage
	path, err := stageMerged(records, w.stagingDir)
	if err != nil {
		return err
	}
	task.MergedFile = path
	w.registry.Upsert(*task)

	log.Info("merged artifact staged", "path", path)

	// 6. Index
	if w.indexer == nil {
		return ErrNoIndexer
	}
	if err := w.indexer.Run(ctx, path); err != nil {
		return err
	}

	// 7. Cleanup: staged-файл нужен только для диагностики ошибок индексации
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove staged artifact: %w", err)
	}
	task.MergedFile = ""

	return nil
}

// publishCompletion отправляет completion-событие в выходную очередь.
//
// Ошибка публикации не меняет статус task: сообщение уже обработано,
// потеря события фиксируется логом и метрикой.
func (w *Worker) publishCompletion(ctx context.Context, task domain.Task, log *slog.Logger) {
	if w.publisher == nil {
		return
	}

	data := make(map[string]any, len(w.completion)+4)
	for k, v := range w.completion {
		data[k] = v
	}
	data["status"] = string(task.Status)
	data["file_count"] = fileCount(task)
	if task.CompletedAt != nil {
		data["completed_at"] = task.CompletedAt.Format(time.RFC3339)
	}
	if task.MergedFile != "" {
		data["merged_file"] = task.MergedFile
	} else {
		data["merged_file"] = nil
	}

	if err := w.publisher.Publish(ctx, task.ID, data); err != nil {
		telemetry.PublishFailures.Inc()
		log.Warn("failed to publish completion event", "error", err)
		return
	}

	log.Debug("completion event published")
}

// archiveTask сохраняет терминальную task во внешний архив, если он настроен.
func (w *Worker) archiveTask(ctx context.Context, task domain.Task, log *slog.Logger) {
	if w.archiver == nil {
		return
	}
	if err := w.archiver.Archive(ctx, task); err != nil {
		log.Warn("failed to archive task", "error", err)
	}
}

// fileCount возвращает количество обработанных артефактов task.
func fileCount(task domain.Task) int {
	if task.FileCount == nil {
		return 0
	}
	return *task.FileCount
}
