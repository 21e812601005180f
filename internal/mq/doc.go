// Package mq содержит инфраструктуру обмена сообщениями через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - job.assigned  — сервер назначил job агенту
//   - job.completed — агент завершил job (терминальный результат)
//
// Exchanges:
//   - fabrica.jobs   — назначение jobs агентам
//   - fabrica.events — события жизненного цикла jobs
//   - fabrica.dlq    — dead letter queue
package mq
