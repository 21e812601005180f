// Fabrica Agent — выполняет назначенные сервером jobs.
//
// Agent:
//   - Получает назначенные jobs из RabbitMQ (jobs.assigned)
//   - Выполняет каждый job через orchestrator
//   - Ведёт локальный журнал jobs в Postgres
//   - Публикует события о завершении (jobs.events)
//   - Отдаёт /healthz, /metrics и диагностический API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Fabrica/internal/api"
	"github.com/shaiso/Fabrica/internal/config"
	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/mq"
	"github.com/shaiso/Fabrica/internal/orchestrator"
	"github.com/shaiso/Fabrica/internal/queue"
	"github.com/shaiso/Fabrica/internal/repo"
	"github.com/shaiso/Fabrica/internal/runner"
	"github.com/shaiso/Fabrica/internal/server"
	"github.com/shaiso/Fabrica/internal/taskstore"
	"github.com/shaiso/Fabrica/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting fabrica-agent")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	settings := config.Load()
	logger.Info("agent configured",
		"agent_id", settings.AgentID,
		"agent_name", settings.AgentName,
		"server_url", settings.ServerURL,
	)

	// Журнал jobs в Postgres. Необязателен: без базы агент
	// выполняет jobs, но не хранит историю и не отдаёт API.
	var jobRepo *repo.JobRepo
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Warn("database not available, job journal disabled", "error", err)
	} else {
		defer pool.Close()
		jobRepo = repo.NewJobRepo(pool)
		logger.Info("database connected")
	}

	// RabbitMQ — единственный источник jobs, без него агенту
	// нечего делать.
	mqConn, err := mq.Dial(mq.URL(), logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(mqConn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	publisher := mq.NewPublisher(mqConn, logger)

	// Собираем orchestrator из конкретных реализаций
	jobs := &jobConnector{logger: logger}
	orch := orchestrator.New(orchestrator.Config{
		Settings:   settings,
		JobServer:  jobs,
		TaskServer: &taskConnector{},
		TaskSourceFor: func(ts orchestrator.TaskServer) orchestrator.TaskSource {
			return taskstore.NewStore(ts, settings.TasksDir, logger)
		},
		Runner: runner.New(logger),
		Logger: logger,
	})

	agent := &agent{
		orch:      orch,
		jobs:      jobs,
		jobRepo:   jobRepo,
		publisher: publisher,
		logger:    logger,
	}

	consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
		Queue:   mq.QueueJobsAssigned,
		Handler: agent.handleJobAssigned,
	})

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("consumer stopped", "error", err)
			cancel()
		}
	}()

	// HTTP mux: /healthz + /metrics + диагностический API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	if jobRepo != nil {
		handler := api.NewHandler(api.Config{
			JobRepo: jobRepo,
			Logger:  logger,
		})
		handler.RegisterRoutes(mux)
	}

	addr := ":8080"
	if v := os.Getenv("AGENT_PORT"); v != "" {
		addr = ":" + v
	}

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("fabrica-agent stopped")
}

// agent связывает orchestrator с очередью jobs, журналом и событиями.
type agent struct {
	orch      *orchestrator.Orchestrator
	jobs      *jobConnector
	jobRepo   *repo.JobRepo
	publisher *mq.Publisher
	logger    *slog.Logger
}

// handleJobAssigned обрабатывает одно сообщение jobs.assigned.
//
// Результат job (включая FAILED) — успешная обработка сообщения:
// он фиксируется в журнале и публикуется событием. Nack в DLQ
// получают только сообщения, из которых не удалось извлечь job.
func (a *agent) handleJobAssigned(ctx context.Context, msg *mq.Delivery) error {
	if msg.Message.Type != mq.MessageTypeJobAssigned {
		a.logger.Warn("unexpected message type, skipping", "type", msg.Message.Type)
		return nil
	}

	var payload mq.JobAssignedPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal jobassigned payload: %w", err)
	}
	if payload.Job == nil {
		return fmt.Errorf("job.assigned message %s has no job", msg.Message.ID)
	}

	job := payload.Job
	logger := telemetry.WithRequestID(
		telemetry.WithJobID(a.logger, job.JobID.String()),
		job.RequestID.String(),
	)

	a.journalStart(ctx, job, logger)

	started := time.Now()
	result, err := a.orch.RunJob(ctx, job)
	duration := time.Since(started)

	errText := ""
	if err != nil {
		errText = err.Error()
		logger.Error("job failed", "result", result, "error", err)
	} else {
		logger.Info("job finished", "result", result, "duration", duration)
	}

	a.journalFinish(ctx, job, result, errText, logger)
	a.jobs.reportCompletion(ctx, job, result, errText)
	telemetry.ObserveJob(string(result), duration)

	completed := mq.JobCompletedPayload{
		RequestID:  job.RequestID,
		JobID:      job.JobID,
		JobName:    job.JobName,
		Result:     result,
		Error:      errText,
		DurationMS: duration.Milliseconds(),
	}
	if err := a.publisher.PublishJobCompleted(ctx, completed); err != nil {
		logger.Error("failed to publish job completed", "error", err)
	}

	return nil
}

// journalStart создаёт запись журнала о начатом job.
func (a *agent) journalStart(ctx context.Context, job *domain.JobRequest, logger *slog.Logger) {
	if a.jobRepo == nil {
		return
	}

	err := a.jobRepo.Insert(ctx, &repo.JobRecord{
		RequestID: job.RequestID,
		JobID:     job.JobID,
		JobName:   job.JobName,
		HostType:  job.HostType,
		StartedAt: time.Now(),
	})
	if err != nil {
		// Повторная доставка того же запроса — не повод падать
		logger.Warn("failed to journal job start", "error", err)
	}
}

// journalFinish закрывает запись журнала терминальным результатом.
func (a *agent) journalFinish(ctx context.Context, job *domain.JobRequest, result domain.JobResult, errText string, logger *slog.Logger) {
	if a.jobRepo == nil {
		return
	}

	if err := a.jobRepo.Finish(ctx, job.RequestID, result, errText); err != nil {
		logger.Warn("failed to journal job finish", "error", err)
	}
}

// jobConnector подключает orchestrator к job-серверу: ConnectJob
// плюс очередь обновлений поверх полученного handle. Handle
// сохраняется до конца job, чтобы агент мог сообщить серверу
// терминальный результат. Jobs выполняются последовательно
// (prefetch=1), поэтому одного handle достаточно.
type jobConnector struct {
	logger *slog.Logger

	mu   sync.Mutex
	last *server.JobServer
}

func (c *jobConnector) Connect(ctx context.Context, serverURL string, auth domain.Authorization) (orchestrator.JobServerQueue, error) {
	js, err := server.ConnectJob(ctx, serverURL, auth)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.last = js
	c.mu.Unlock()

	return queue.New(queue.Config{
		Sender: js,
		Logger: c.logger,
	}), nil
}

// reportCompletion отправляет job-серверу итоговую строку лога
// и терминальный результат job. Если подключения не было (job
// упал до ConnectJob), сообщать некуда и нечего.
func (c *jobConnector) reportCompletion(ctx context.Context, job *domain.JobRequest, result domain.JobResult, errText string) {
	c.mu.Lock()
	js := c.last
	c.last = nil
	c.mu.Unlock()
	if js == nil {
		return
	}

	lines := []string{fmt.Sprintf("job %s finished: %s", job.JobName, result)}
	if errText != "" {
		lines = append(lines, errText)
	}
	if err := js.AppendLog(ctx, job.JobID, lines); err != nil {
		c.logger.Warn("failed to append job log", "job_id", job.JobID, "error", err)
	}

	if err := js.CompleteJob(ctx, job.JobID, result, errText); err != nil {
		c.logger.Warn("failed to report job completion", "job_id", job.JobID, "error", err)
	}
}

// taskConnector подключает orchestrator к серверу определений задач.
type taskConnector struct{}

func (c *taskConnector) Connect(ctx context.Context, serverURL string, auth domain.Authorization) (orchestrator.TaskServer, error) {
	return server.ConnectTask(ctx, serverURL, auth)
}
