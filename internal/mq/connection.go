package mq

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Ingesta/internal/telemetry"
)

// DefaultReconnectDelay — пауза между попытками переподключения.
const DefaultReconnectDelay = 5 * time.Second

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
// - Переподключение при разрыве с фиксированной задержкой, без лимита попыток
// - Все подтверждения сообщений выполняет одна владеющая горутина (ack funnel)
// - Фатальные ошибки брокера (доступ, несовместимое объявление очереди)
//   не ретраятся, а отдаются процессу через Fatal()
type Connection struct {
	url            string
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// Для уведомления о переподключении
	reconnectCh chan struct{}

	// Входящие запросы на ack/nack от воркеров
	ackCh chan ackRequest

	// Невосстановимые ошибки для composition root
	fatalCh chan error
}

// ackRequest — запрос на подтверждение сообщения.
// Воркеры не трогают канал напрямую: они ставят запрос в очередь,
// а исполняет его владеющая горутина.
type ackRequest struct {
	delivery amqp.Delivery
	ack      bool
	requeue  bool
}

// NewConnection устанавливает соединение с RabbitMQ.
// Ошибка первоначального подключения возвращается сразу — старт
// процесса с недоступным брокером это ошибка конфигурации.
func NewConnection(url string, reconnectDelay time.Duration, logger *slog.Logger) (*Connection, error) {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}

	c := &Connection{
		url:            url,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		closedCh:       make(chan struct{}),
		reconnectCh:    make(chan struct{}, 1),
		ackCh:          make(chan ackRequest, 64),
		fatalCh:        make(chan error, 1),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	// Горутина мониторинга соединения и горутина-владелец подтверждений
	go c.watchConnection()
	go c.ackLoop()

	return c, nil
}

// connect устанавливает соединение и открывает канал.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to RabbitMQ")

	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		// Ждём уведомления о закрытии соединения
		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}

			c.reconnect()
		}
	}
}

// reconnect переподключается с фиксированной задержкой, без лимита
// попыток. Неподтверждённые сообщения брокер вернёт в очередь сам,
// поэтому потерь при разрыве нет. Фатальные ошибки (отказ в доступе)
// прекращают попытки и отдаются процессу.
func (c *Connection) reconnect() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		c.mu.RUnlock()

		c.logger.Info("attempting to reconnect", "delay", c.reconnectDelay)
		time.Sleep(c.reconnectDelay)

		if err := c.connect(); err != nil {
			if isFatal(err) {
				c.logger.Error("unrecoverable broker error, giving up", "error", err)
				c.reportFatal(err)
				return
			}
			c.logger.Warn("reconnect failed", "error", err)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		telemetry.BrokerReconnects.Inc()

		// Уведомляем о переподключении
		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}

		return
	}
}

// ackLoop — единственная горутина, выполняющая ack/nack.
// Остальные компоненты лишь ставят запросы через postAck.
func (c *Connection) ackLoop() {
	for {
		select {
		case <-c.closedCh:
			// Дорабатываем уже поставленные запросы и выходим.
			for {
				select {
				case req := <-c.ackCh:
					c.resolve(req)
				default:
					return
				}
			}
		case req := <-c.ackCh:
			c.resolve(req)
		}
	}
}

// resolve выполняет один запрос подтверждения.
// Ошибка здесь означает, что канал доставки уже закрыт: брокер вернул
// сообщение в очередь сам, поэтому ошибку только логируем.
func (c *Connection) resolve(req ackRequest) {
	var err error
	if req.ack {
		err = req.delivery.Ack(false)
	} else {
		err = req.delivery.Nack(false, req.requeue)
	}
	if err != nil {
		c.logger.Warn("acknowledge failed",
			"delivery_tag", req.delivery.DeliveryTag,
			"ack", req.ack,
			"error", err,
		)
	}
}

// postAck ставит запрос подтверждения в очередь владеющей горутины.
func (c *Connection) postAck(req ackRequest) {
	select {
	case c.ackCh <- req:
	case <-c.closedCh:
		c.logger.Warn("connection closed, dropping acknowledge request",
			"delivery_tag", req.delivery.DeliveryTag,
		)
	}
}

// reportFatal отдаёт невосстановимую ошибку процессу.
func (c *Connection) reportFatal(err error) {
	select {
	case c.fatalCh <- err:
	default:
	}
}

// Fatal возвращает канал невосстановимых ошибок брокера.
// Composition root завершает процесс при получении ошибки.
func (c *Connection) Fatal() <-chan error {
	return c.fatalCh
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал для уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// isFatal определяет ошибки, которые ретраить бессмысленно:
// отказ в доступе и несовместимое объявление очереди.
func isFatal(err error) bool {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.AccessRefused, amqp.PreconditionFailed:
			return true
		}
	}
	return false
}
