package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Ingesta/internal/telemetry"
)

// Handler — функция приёма сообщения. Вызывается по одному разу
// на доставку и вправе блокироваться, пока пул обработчиков не
// освободится (backpressure на цикл приёма — намеренный).
// Ошибка означает, что сообщение принять невозможно (останов
// процесса) и его нужно вернуть в очередь.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение входной очереди.
// Ack и Nack не выполняют операцию на канале сами: запрос уходит
// владеющей горутине соединения.
type Delivery struct {
	conn *Connection
	raw  amqp.Delivery
}

// Body возвращает сырое тело сообщения.
func (d *Delivery) Body() []byte {
	return d.raw.Body
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	d.conn.postAck(ackRequest{delivery: d.raw, ack: true})
	return nil
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отбросить навсегда.
func (d *Delivery) Nack(requeue bool) error {
	d.conn.postAck(ackRequest{delivery: d.raw, requeue: requeue})
	return nil
}

// Consumer потребляет сообщения из входной очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя входной очереди. Объявляется durable при подписке.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — лимит неподтверждённых сообщений в полёте.
	// Ставится равным размеру пула обработчиков: брокер не выдаёт
	// больше работы, чем процесс способен выполнять одновременно.
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   telemetry.WithQueue(logger, cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start запускает потребление сообщений. Блокируется до отмены
// контекста или невосстановимой ошибки подписки.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			// Несовместимое объявление очереди или отказ в доступе
			// не лечатся переподключением.
			if isFatal(err) {
				c.logger.Error("unrecoverable consume setup failure", "error", err)
				c.conn.reportFatal(err)
				return err
			}

			c.logger.Error("failed to setup consume", "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer")
				continue
			}
		}

		c.logger.Info("consumer started", "prefetch", c.prefetch)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting")
			// Канал закрыт, ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume объявляет очередь, ставит prefetch и начинает
// потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if _, err := ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // args
	); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", c.queue, err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery передаёт одно сообщение обработчику.
// Тело не парсится здесь: decode — первый шаг конвейера, и его
// ошибки фиксируются на task, а не на уровне transport.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{conn: c.conn, raw: raw}

	c.logger.Debug("received message",
		"delivery_tag", raw.DeliveryTag,
		"size", len(raw.Body),
	)

	if err := c.handler(ctx, delivery); err != nil {
		// Пул не принял сообщение — вернём его в очередь,
		// после рестарта оно будет обработано заново.
		c.logger.Warn("message not accepted, requeueing",
			"delivery_tag", raw.DeliveryTag,
			"error", err,
		)
		delivery.Nack(true)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
