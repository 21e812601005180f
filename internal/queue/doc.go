// Package queue содержит очередь обновлений job-сервера.
//
// Очередь живёт один job: Start запускается до первого шага,
// Shutdown гарантированно вызывается оркестратором на каждом пути
// выхода и сливает накопленные timeline-записи на сервер.
// Ошибки отправки логируются и никогда не влияют на результат job.
package queue
