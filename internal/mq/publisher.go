package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует completion-события в выходную очередь.
//
// Каждая публикация открывает отдельное соединение и закрывает его
// после отправки. Completion-события редки относительно стоимости
// предшествующей индексации, поэтому простота важнее переиспользования;
// заодно публикация не зависит от состояния consumer-соединения.
type Publisher struct {
	url    string
	queue  string
	logger *slog.Logger
}

// NewPublisher создаёт Publisher для указанной очереди.
func NewPublisher(url, queue string, logger *slog.Logger) *Publisher {
	return &Publisher{
		url:    url,
		queue:  queue,
		logger: logger,
	}
}

// Envelope — конверт исходящего события.
type Envelope struct {
	// Timestamp — время публикации, ISO8601.
	Timestamp string `json:"timestamp"`

	// TaskID — идентификатор завершённой task.
	TaskID string `json:"task_id"`

	// Data — полезная нагрузка события.
	Data map[string]any `json:"data"`
}

// NewEnvelope собирает конверт события с текущим временем.
func NewEnvelope(taskID string, data map[string]any) Envelope {
	return Envelope{
		Timestamp: time.Now().Format(time.RFC3339),
		TaskID:    taskID,
		Data:      data,
	}
}

// Publish отправляет completion-событие по task, завернув data в Envelope.
//
// Ошибку публикации вызывающая сторона логирует и не более того —
// индексация уже произошла, статус task от доставки уведомления не зависит.
func (p *Publisher) Publish(ctx context.Context, taskID string, data map[string]any) error {
	env := NewEnvelope(taskID, data)

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := p.PublishRaw(ctx, body); err != nil {
		return err
	}

	p.logger.Debug("published completion event",
		"queue", p.queue,
		"task_id", taskID,
	)
	return nil
}

// PublishRaw отправляет готовое тело сообщения в очередь.
//
// Очередь объявляется durable, сообщение публикуется persistent:
// оно переживёт рестарт брокера.
func (p *Publisher) PublishRaw(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // args
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	err = ch.PublishWithContext(
		ctx,
		"",      // default exchange
		p.queue, // routing key = имя очереди
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}

	return nil
}
