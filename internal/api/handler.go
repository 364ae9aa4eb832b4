package api

import (
	"log/slog"

	"github.com/shaiso/Ingesta/internal/mq"
	"github.com/shaiso/Ingesta/internal/registry"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	registry *registry.Registry
	conn     *mq.Connection
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Registry *registry.Registry
	Conn     *mq.Connection
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		registry: cfg.Registry,
		conn:     cfg.Conn,
		logger:   cfg.Logger,
	}
}
