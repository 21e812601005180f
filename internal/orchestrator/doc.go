// Package orchestrator выполняет jobs агента.
//
// Orchestrator отвечает за:
//   - Валидацию запроса и нормализацию URL под локальную топологию
//   - Подключение к job-серверу и жизненный цикл очереди обновлений
//   - Сборку pipeline из шагов расширений и задач запроса
//   - Скачивание определений задач и запуск steps runner'а
//   - Финализацию корневого контекста и терминальный результат job
//
// Orchestrator — "мозг" агента: единственное место, где сходятся
// частичные сбои, отмена и гарантированная очистка ресурсов.
package orchestrator
