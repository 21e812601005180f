package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Fabrica/internal/config"
	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
	"github.com/shaiso/Fabrica/internal/extension"
)

// Таймаут слива очереди job-сервера при завершении job.
const queueShutdownTimeout = 30 * time.Second

// Orchestrator выполняет jobs.
//
// Orchestrator — центральный компонент агента, который для каждого
// job:
//   - Валидирует запрос и нормализует URL под локальную топологию
//   - Подключается к job-серверу и запускает очередь обновлений
//   - Строит дерево контекстов выполнения и pipeline шагов
//   - Скачивает определения задач и запускает steps runner
//   - Финализирует корневой контекст и гарантированно сливает очередь
//
// Один вызов RunJob — один job; процесс агента может выполнять
// несколько RunJob конкурентно, деревья контекстов и очереди
// независимы между jobs.
type Orchestrator struct {
	settings   *config.Settings
	extensions *extension.Registry

	jobServer     JobConnector
	taskServer    TaskConnector
	taskSourceFor TaskSourceFactory
	runner        StepsRunner
	taskHandler   TaskHandler

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Settings — локальные настройки агента.
	Settings *config.Settings

	// Extensions — реестр расширений
	// (опционально; если nil — extension.DefaultRegistry()).
	Extensions *extension.Registry

	// JobServer — подключение к job-серверу.
	JobServer JobConnector

	// TaskServer — подключение к серверу определений задач.
	TaskServer TaskConnector

	// TaskSourceFor — фабрика источника определений задач.
	TaskSourceFor TaskSourceFactory

	// Runner — исполнитель pipeline.
	Runner StepsRunner

	// TaskHandler — исполнитель TaskStep
	// (опционально; по умолчанию проверка кэша определения).
	TaskHandler TaskHandler

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	extensions := cfg.Extensions
	if extensions == nil {
		extensions = extension.DefaultRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		settings:      cfg.Settings,
		extensions:    extensions,
		jobServer:     cfg.JobServer,
		taskServer:    cfg.TaskServer,
		taskSourceFor: cfg.TaskSourceFor,
		runner:        cfg.Runner,
		logger:        logger,
	}

	o.taskHandler = cfg.TaskHandler
	if o.taskHandler == nil {
		o.taskHandler = o.runTask
	}
	return o
}

// RunJob выполняет один job и возвращает терминальный результат.
//
// Ошибка возвращается только когда терминальный результат
// установить не удалось: запрос не прошёл валидацию предусловий
// или подключение к job-серверу не состоялось. Все остальные сбои
// (отмена, ошибка скачивания задач, ошибка выполнения шагов)
// фиксируются на корневом контексте и отражаются в результате.
//
// Очередь job-сервера, запущенная после подключения, сливается
// ровно один раз на любом пути выхода.
func (o *Orchestrator) RunJob(ctx context.Context, job *domain.JobRequest) (domain.JobResult, error) {
	// 1. Предусловия: до любых side effects
	if err := validateRequest(job); err != nil {
		return domain.ResultFailed, err
	}

	// 2. Access token в переменные, если запрошено feature flag'ом
	if job.Variables.GetBool(domain.VarEnableAccessToken) {
		if token := job.System.Authorization.AccessToken(); token != "" {
			job.Variables.Set(domain.VarAccessToken, token)
		}
	}

	// 3. Нормализация URL под локальную топологию
	o.normalizeURLs(job)

	logger := o.logger.With("job_id", job.JobID, "job_name", job.JobName)
	logger.Info("starting job", "host_type", job.HostType, "tasks", len(job.Tasks))

	// 4. Подключение к job-серверу и старт очереди обновлений
	jobQueue, err := o.jobServer.Connect(ctx, job.System.URL, job.System.Authorization)
	if err != nil {
		return domain.ResultFailed, fmt.Errorf("%w: %v", ErrJobServerConnect, err)
	}

	jobQueue.Start(job)

	// С этого момента очередь обязана быть слита на каждом пути
	// выхода. Слив выполняется с собственным таймаутом и не зависит
	// от отмены job; ошибки слива логируются, не эскалируются.
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queueShutdownTimeout)
		defer cancel()
		if err := jobQueue.Shutdown(sdCtx); err != nil {
			logger.Error("job server queue shutdown failed", "error", err)
		}
	}()

	// 5. Корневой контекст job
	root := execution.NewRoot(job.JobID, job.JobName, job.Variables, job.Endpoints)
	root.AttachSink(jobQueue)
	o.seedAgentVariables(root, job)

	// 6. Разрешение сервера определений задач
	source, err := o.resolveTaskSource(ctx, root, job)
	if err != nil {
		if isCancellation(err) {
			logger.Info("job canceled while resolving task server")
			return o.abort(root, domain.ResultCanceled, err), nil
		}
		logger.Error("failed to resolve task definition server", "error", err)
		return o.abort(root, domain.ResultFailed, err), nil
	}

	// 7. Разворачивание плейсхолдеров в данных подключений
	expandEndpointData(job)

	// 8. Сборка pipeline из расширений и задач
	matched := o.extensions.Match(job.HostType)
	pipeline := buildPipeline(root, job, matched, source, o.taskHandler)
	logger.Info("pipeline built",
		"steps", len(pipeline),
		"extensions", len(matched),
	)

	// 9. Скачивание определений задач
	if err := source.Download(ctx, root, job.Tasks); err != nil {
		if isCancellation(err) {
			logger.Info("job canceled while downloading tasks")
			return o.abort(root, domain.ResultCanceled, err), nil
		}
		logger.Error("failed to download task definitions", "error", err)
		return o.abort(root, domain.ResultFailed, err), nil
	}

	// 10. Выполнение pipeline
	if err := o.runner.Run(ctx, root, pipeline); err != nil {
		if isCancellation(err) {
			logger.Info("job canceled during step execution")
			return o.abort(root, domain.ResultCanceled, err), nil
		}
		logger.Error("step execution failed", "error", err)
		return o.abort(root, domain.ResultFailed, err), nil
	}

	// 11. Финализация корня агрегацией результатов шагов
	result := root.Complete()
	logger.Info("job finished", "result", result)
	return result, nil
}

// validateRequest проверяет предусловия запроса.
func validateRequest(job *domain.JobRequest) error {
	switch {
	case job == nil:
		return fmt.Errorf("%w: request is nil", ErrInvalidJobRequest)
	case job.System == nil:
		return fmt.Errorf("%w: system connection is nil", ErrInvalidJobRequest)
	case job.Variables == nil:
		return fmt.Errorf("%w: variables map is nil", ErrInvalidJobRequest)
	case job.Tasks == nil:
		return fmt.Errorf("%w: task list is nil", ErrInvalidJobRequest)
	}
	return nil
}

// seedAgentVariables заполняет стандартные переменные агента
// в корневом контексте.
func (o *Orchestrator) seedAgentVariables(root *execution.Context, job *domain.JobRequest) {
	root.SetVariable(domain.VarAgentID, o.settings.AgentID)
	root.SetVariable(domain.VarAgentName, o.settings.AgentName)
	root.SetVariable(domain.VarAgentMachineName, o.settings.MachineName)
	root.SetVariable(domain.VarAgentHomeDir, o.settings.HomeDir)
	root.SetVariable(domain.VarAgentWorkFolder, o.settings.WorkFolder)
	root.SetVariable(domain.VarAgentJobName, job.JobName)
}

// resolveTaskSource разрешает сервер определений задач по порядку
// предпочтения: явная переменная определений задач → URL коллекции →
// локально настроенный адрес сервера, если ни один из кандидатов
// не предоставляет каталог задач.
func (o *Orchestrator) resolveTaskSource(ctx context.Context, root *execution.Context, job *domain.JobRequest) (TaskSource, error) {
	auth := job.System.Authorization

	var candidates []string
	if v, ok := root.Variable(domain.VarTaskDefinitionsURI); ok && v != "" {
		candidates = append(candidates, v)
	}
	if v, ok := root.Variable(domain.VarCollectionURI); ok && v != "" {
		candidates = append(candidates, v)
	}

	for _, serverURL := range candidates {
		ts, err := o.taskServer.Connect(ctx, serverURL, auth)
		if err != nil {
			if isCancellation(err) {
				return nil, err
			}
			o.logger.Warn("task server candidate unreachable", "url", serverURL, "error", err)
			continue
		}

		ok, err := ts.HasTaskDefinitionEndpoint(ctx)
		if err != nil {
			if isCancellation(err) {
				return nil, err
			}
			o.logger.Warn("task definition endpoint probe failed", "url", serverURL, "error", err)
			continue
		}
		if ok {
			return o.taskSourceFor(ts), nil
		}
		o.logger.Debug("server has no task definition endpoint", "url", serverURL)
	}

	// Fallback: локально настроенный сервер
	ts, err := o.taskServer.Connect(ctx, o.settings.ServerURL, auth)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTaskServerResolve, err)
	}
	return o.taskSourceFor(ts), nil
}

// expandEndpointData разворачивает плейсхолдеры переменных
// и ссылки на переменные окружения в данных подключений (in place).
func expandEndpointData(job *domain.JobRequest) {
	for _, ep := range job.Endpoints {
		for key, val := range ep.Data {
			ep.Data[key] = job.Variables.Expand(val)
		}
	}
}

// runTask — TaskHandler по умолчанию: проверяет наличие определения
// задачи в кэше. Фактическое исполнение шага задачи подключается
// через Config.TaskHandler.
func (o *Orchestrator) runTask(ctx context.Context, ec *execution.Context, source TaskSource, task *domain.TaskInstance) error {
	def, err := source.Definition(task.Name, task.Version)
	if err != nil {
		return err
	}

	o.logger.Info("task step executed",
		"task", task.Name,
		"version", def.Version,
		"instance_id", task.InstanceID,
	)
	return nil
}

// abort финализирует корневой контекст терминальным результатом
// и возвращает его. Ошибка фиксируется в контексте для отчёта
// на сервер.
func (o *Orchestrator) abort(root *execution.Context, result domain.JobResult, err error) domain.JobResult {
	if err != nil {
		root.AddError(err.Error())
	}
	if ferr := root.Finalize(result); ferr != nil {
		// Корень уже финализирован — возвращаем существующий результат
		existing, _ := root.Result()
		return existing
	}
	return result
}

// isCancellation проверяет, вызвана ли ошибка отменой.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
