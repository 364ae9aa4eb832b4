// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go      — Handler с DI (реестр задач, соединение с брокером, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (response)
//   - task_handler.go — обработчики для /tasks и /health
//
// API read-only: состояние задач меняет только воркер, endpoints отдают
// снимки из реестра в памяти.
package api
