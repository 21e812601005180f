// Package runner содержит исполнитель pipeline шагов.
//
// Runner выполняет шаги строго в порядке сборки pipeline
// и изолирует их ошибки: неуспех задачи пропускает оставшиеся
// задачи, но finally-шаги расширений выполняются всегда.
package runner
