// Package config загружает конфигурацию worker-процесса из окружения.
//
// Конфигурация разбита на секции (Broker, Paths, Worker, Indexer, API,
// Registry, Archive, Schedule), парсится через struct-теги env
// и валидируется целиком при старте: процесс не поднимается
// с некорректными значениями.
package config
