// Package extension содержит реестр расширений job.
//
// Расширение привязано к host type ("build", "release") и может
// предоставить prepare-шаг и/или finally-шаг для pipeline.
// Оркестратор отбирает расширения, чей host type совпадает с видом
// выполняемого job, и включает их шаги в pipeline: все prepare-шаги
// перед задачами, все finally-шаги после.
package extension
