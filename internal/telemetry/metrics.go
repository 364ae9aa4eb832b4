package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики конвейера. Регистрируются в default registry через promauto,
// отдаются на /metrics endpoint worker-процесса.
var (
	// TasksTotal — количество завершённых tasks по терминальному статусу.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingesta_tasks_total",
		Help: "Total tasks finished, partitioned by terminal status",
	}, []string{"status"})

	// TasksRunning — количество tasks, выполняющихся прямо сейчас.
	TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingesta_tasks_running",
		Help: "Tasks currently in running state",
	})

	// TaskDuration — длительность полного конвейера одной task.
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingesta_task_duration_seconds",
		Help:    "Wall-clock duration of the per-task pipeline",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// PublishFailures — неудачные публикации completion-событий.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingesta_publish_failures_total",
		Help: "Completion events that failed to publish",
	})

	// BrokerReconnects — количество переподключений к брокеру.
	BrokerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingesta_broker_reconnects_total",
		Help: "Successful broker reconnects after connection loss",
	})
)
