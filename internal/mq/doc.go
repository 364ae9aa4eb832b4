// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с auto-reconnect (фиксированная
//     задержка, без лимита попыток) и единоличным владением
//     подтверждениями: все ack/nack выполняет одна горутина,
//     воркеры лишь ставят запросы в её очередь
//   - consumer.go   — потребление входной очереди с ручным ack
//     и prefetch, равным размеру пула обработчиков
//   - publisher.go  — публикация completion-событий, отдельное
//     соединение на каждую отправку
//
// Очереди (обе durable, default exchange):
//   - data.ingest.done   — события upstream-продьюсера (вход)
//   - history.graph.done — completion-события конвейера (выход)
package mq
