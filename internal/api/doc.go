// Package api содержит диагностический HTTP API агента.
//
// Структура:
//   - handler.go    — Handler с DI (журнал jobs, logger)
//   - routes.go     — регистрация маршрутов
//   - middleware.go — middleware (logging, recovery)
//   - response.go   — унифицированные JSON-ответы
//   - job_handler.go — обработчики для /jobs
//
// API read-only: история выполненных jobs из локального журнала.
package api
