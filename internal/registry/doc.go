// Package registry хранит записи tasks в памяти.
//
// Registry — единственное разделяемое состояние между воркерами
// и status API. Создаётся composition root'ом и передаётся
// компонентам явно; записи отдаются наружу копиями.
//
// Опциональное ограничение размера вытесняет самые старые
// терминальные записи (oldest-created-first).
package registry
