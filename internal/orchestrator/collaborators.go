package orchestrator

import (
	"context"

	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
	"github.com/shaiso/Fabrica/internal/server"
)

// Интерфейсы внешних участников выполнения job. Оркестратор
// потребляет их только через эти узкие контракты; конкретные
// реализации (internal/server, internal/queue, internal/taskstore,
// internal/runner) связываются в cmd.

// JobServerQueue — очередь обновлений job-сервера.
//
// Контракт: Start вызывается строго до выполнения первого шага,
// Shutdown — ровно один раз на каждый RunJob, на любом пути выхода.
// Ошибки Shutdown логируются и никогда не влияют на результат job.
// Queue также принимает timeline-записи финализированных контекстов
// (execution.Sink).
type JobServerQueue interface {
	execution.Sink

	Start(job *domain.JobRequest)
	Shutdown(ctx context.Context) error
}

// JobConnector устанавливает подключение к job-серверу
// и возвращает очередь обновлений для одного job.
type JobConnector interface {
	Connect(ctx context.Context, serverURL string, auth domain.Authorization) (JobServerQueue, error)
}

// TaskServer — сервер определений задач.
type TaskServer interface {
	// HasTaskDefinitionEndpoint проверяет, предоставляет ли сервер
	// каталог определений задач.
	HasTaskDefinitionEndpoint(ctx context.Context) (bool, error)

	// GetTaskDefinition возвращает определение задачи.
	GetTaskDefinition(ctx context.Context, name, version string) (*server.TaskDefinition, error)

	// DownloadTask скачивает архив задачи.
	DownloadTask(ctx context.Context, name, version string) ([]byte, error)
}

// TaskConnector устанавливает подключение к серверу определений задач.
type TaskConnector interface {
	Connect(ctx context.Context, serverURL string, auth domain.Authorization) (TaskServer, error)
}

// TaskSource — источник определений задач для одного job.
//
// Download может завершиться отменой (ctx) или общей ошибкой;
// в обоих случаях шаги job не выполняются.
type TaskSource interface {
	Download(ctx context.Context, ec *execution.Context, tasks []*domain.TaskInstance) error
	Definition(name, version string) (*server.TaskDefinition, error)
}

// TaskSourceFactory строит TaskSource поверх разрешённого
// сервера определений задач.
type TaskSourceFactory func(ts TaskServer) TaskSource

// StepsRunner выполняет собранный pipeline.
//
// Изоляция ошибок шагов — ответственность runner'а: ошибка
// возвращается только при отмене или инфраструктурном сбое,
// неуспех отдельного шага отражается в контекстах шагов.
type StepsRunner interface {
	Run(ctx context.Context, root *execution.Context, steps []Step) error
}
