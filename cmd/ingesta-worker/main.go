// Ingesta Worker — сервис обработки CTI-артефактов.
//
// Worker:
//   - Получает триггеры из RabbitMQ
//   - Склеивает JSON-артефакты из каталога обмена в один merged-файл
//   - Запускает внешнюю индексацию staged-артефакта в Qdrant
//   - Публикует completion-событие для следующего контура
//
// В том же процессе поднимаются status API, /healthz и /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Ingesta/internal/api"
	"github.com/shaiso/Ingesta/internal/config"
	"github.com/shaiso/Ingesta/internal/mq"
	"github.com/shaiso/Ingesta/internal/registry"
	"github.com/shaiso/Ingesta/internal/repo"
	"github.com/shaiso/Ingesta/internal/scheduler"
	"github.com/shaiso/Ingesta/internal/telemetry"
	"github.com/shaiso/Ingesta/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting ingesta-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Реестр tasks
	reg := registry.New(cfg.Registry.MaxTasks)

	// Опциональный архив терминальных tasks
	var archiver worker.Archiver
	if cfg.Archive.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.Archive.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		archiveRepo := repo.NewArchiveRepo(pool)
		if err := archiveRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare archive schema", "error", err)
			os.Exit(1)
		}
		archiver = archiveRepo
		logger.Info("task archive enabled")
	}

	// RabbitMQ — без брокера сервису делать нечего
	mqConn, err := mq.NewConnection(cfg.Broker.URL(), cfg.Broker.ReconnectDelay, telemetry.WithComponent(logger, "mq"))
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected", "host", cfg.Broker.Host)

	publisher := mq.NewPublisher(cfg.Broker.URL(), cfg.Broker.CompletionQueue, logger)

	// Создаём worker
	w := worker.New(worker.Config{
		Conn:      mqConn,
		Publisher: publisher,
		Registry:  reg,
		Indexer: worker.NewExecIndexer(
			cfg.Indexer.Command,
			cfg.Indexer.QdrantURL,
			cfg.Indexer.Collection,
			logger,
		),
		Archiver:   archiver,
		Queue:      cfg.Broker.InputQueue,
		Workers:    cfg.Worker.Count,
		SourceDir:  cfg.Paths.SourceDir,
		StagingDir: cfg.Paths.StagingDir,
		Completion: map[string]any{
			"collection": cfg.Indexer.Collection,
			"qdrant_url": cfg.Indexer.QdrantURL,
		},
		DrainTimeout: cfg.Worker.DrainTimeout,
		Logger:       telemetry.WithComponent(logger, "worker"),
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Опциональный cron-триггер синтетических запусков
	if cfg.Schedule.Cron != "" {
		trigger := mq.NewPublisher(cfg.Broker.URL(), cfg.Broker.InputQueue, logger)
		sched, err := scheduler.New(scheduler.Config{
			Publisher: trigger,
			CronExpr:  cfg.Schedule.Cron,
			Logger:    telemetry.WithComponent(logger, "scheduler"),
		})
		if err != nil {
			logger.Error("invalid schedule", "error", err)
			os.Exit(1)
		}

		go func() {
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	// HTTP mux: status API + /healthz + /metrics
	handler := api.NewHandler(api.Config{
		Registry: reg,
		Conn:     mqConn,
		Logger:   telemetry.WithComponent(logger, "api"),
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения или фатальную ошибку брокера
	select {
	case <-ctx.Done():
	case err := <-mqConn.Fatal():
		logger.Error("fatal broker error", "error", err)
		cancel()
	}

	// Останавливаем worker: начатые tasks дорабатывают до drain timeout,
	// API остаётся доступен, пока они видны в реестре
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}

	logger.Info("ingesta-worker stopped")
}
