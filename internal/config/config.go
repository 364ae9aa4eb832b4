package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config — полная конфигурация worker-процесса.
// Заполняется из переменных окружения, проверяется при старте (fail-fast).
type Config struct {
	Broker   Broker
	Paths    Paths
	Worker   Worker
	Indexer  Indexer
	API      API
	Registry Registry
	Archive  Archive
	Schedule Schedule
}

// Broker — параметры подключения к RabbitMQ и имена очередей.
type Broker struct {
	Host            string        `env:"RABBITMQ_HOST" envDefault:"rabbitmq"`
	Port            int           `env:"RABBITMQ_PORT" envDefault:"5672"`
	User            string        `env:"RABBITMQ_USER" envDefault:"guest"`
	Pass            string        `env:"RABBITMQ_PASS" envDefault:"guest"`
	InputQueue      string        `env:"RABBITMQ_QUEUE" envDefault:"data.ingest.done"`
	CompletionQueue string        `env:"COMPLETION_QUEUE" envDefault:"history.graph.done"`
	ReconnectDelay  time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
}

// URL собирает AMQP URL из компонентов подключения.
func (b Broker) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", b.User, b.Pass, b.Host, b.Port)
}

// Paths — каталоги обмена артефактами.
type Paths struct {
	// SourceDir — каталог, куда upstream складывает входные JSON-артефакты.
	SourceDir string `env:"OUT_DIR" envDefault:"/app/out"`
	// StagingDir — каталог для промежуточных merged-артефактов.
	StagingDir string `env:"PENDING_DIR" envDefault:"/app/pending"`
}

// Worker — параметры пула обработчиков.
type Worker struct {
	// Count — размер пула. Он же prefetch брокера: больше Count
	// неподтверждённых сообщений в полёте не бывает.
	Count        int           `env:"MAX_WORKERS" envDefault:"4"`
	DrainTimeout time.Duration `env:"DRAIN_TIMEOUT" envDefault:"30s"`
}

// Indexer — параметры внешнего шага индексации.
type Indexer struct {
	Command    string `env:"INGEST_CMD" envDefault:"chunk_and_ingest"`
	QdrantURL  string `env:"QDRANT_URL" envDefault:"http://localhost:6333"`
	Collection string `env:"QDRANT_COLLECTION" envDefault:"heva_docs"`
}

// API — параметры status API.
type API struct {
	Port int `env:"API_PORT" envDefault:"8200"`
}

// Registry — параметры реестра tasks.
type Registry struct {
	// MaxTasks — верхняя граница хранимых записей (0 = без ограничения).
	MaxTasks int `env:"REGISTRY_MAX_TASKS" envDefault:"1000"`
}

// Archive — опциональный архив терминальных tasks в Postgres.
// Пустой DatabaseURL отключает архивирование.
type Archive struct {
	DatabaseURL string `env:"ARCHIVE_DB_URL"`
}

// Schedule — опциональный cron-триггер синтетических запусков.
// Пустой Cron отключает планировщик. Корректность выражения
// проверяет scheduler при старте.
type Schedule struct {
	Cron string `env:"SCHEDULE_CRON"`
}

// Load читает конфигурацию из окружения и валидирует её.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность конфигурации.
// Все нарушения собираются в одну ошибку.
func (c *Config) Validate() error {
	var problems []string

	if c.Broker.Host == "" {
		problems = append(problems, "RABBITMQ_HOST is empty")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		problems = append(problems, fmt.Sprintf("RABBITMQ_PORT %d out of range", c.Broker.Port))
	}
	if c.Broker.InputQueue == "" {
		problems = append(problems, "RABBITMQ_QUEUE is empty")
	}
	if c.Broker.CompletionQueue == "" {
		problems = append(problems, "COMPLETION_QUEUE is empty")
	}
	if c.Broker.ReconnectDelay <= 0 {
		problems = append(problems, "RECONNECT_DELAY must be positive")
	}
	if c.Worker.Count < 1 {
		problems = append(problems, fmt.Sprintf("MAX_WORKERS %d must be at least 1", c.Worker.Count))
	}
	if c.Worker.DrainTimeout <= 0 {
		problems = append(problems, "DRAIN_TIMEOUT must be positive")
	}
	if c.Paths.SourceDir == "" {
		problems = append(problems, "OUT_DIR is empty")
	}
	if c.Paths.StagingDir == "" {
		problems = append(problems, "PENDING_DIR is empty")
	}
	if c.Indexer.Command == "" {
		problems = append(problems, "INGEST_CMD is empty")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("API_PORT %d out of range", c.API.Port))
	}
	if c.Registry.MaxTasks < 0 {
		problems = append(problems, "REGISTRY_MAX_TASKS must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
