// Package cli реализует инструмент командной строки Fabrica.
//
// # Обзор
//
// CLI — клиентская утилита для просмотра журнала jobs агента.
// Работает через диагностический HTTP API, не импортирует
// внутренние пакеты агента.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API агента. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	jobs, err := client.ListJobs(cli.ListJobsOpts{Limit: 10})
//
// ## Output
//
// Форматирование записей журнала. Два режима:
//   - Таблица (text/tabwriter) с вычисленной длительностью
//     и статусом RUNNING для незавершённых jobs — по умолчанию
//   - JSON как есть — с флагом --json, удобно для pipe:
//     fabrica job list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - job: list, show
//
// Группа создаётся через фабричную функцию (NewJobCmd), принимающую
// clientFn и outputFn — замыкания для ленивого создания Client и
// Output после парсинга PersistentFlags.
package cli
