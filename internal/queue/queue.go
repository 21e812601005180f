package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/telemetry"
)

// Default configuration values.
const (
	defaultFlushInterval = time.Second
	defaultBufferSize    = 256
	flushTimeout         = 10 * time.Second
)

// TimelineSender отправляет пачки timeline-записей на сервер.
// Реализуется server.JobServer.
type TimelineSender interface {
	UpdateTimeline(ctx context.Context, jobID uuid.UUID, records []domain.TimelineRecord) error
}

// Queue — очередь обновлений job-сервера.
//
// Контракт с оркестратором:
//   - Start вызывается один раз до выполнения первого шага
//   - Shutdown вызывается один раз после последнего шага
//     (или точки раннего завершения) на любом пути выхода
//   - Shutdown сливает накопленные записи и никогда не паникует;
//     повторный вызов возвращает сохранённый исход без работы
//
// Записи принимаются неблокирующе: при переполнении буфера запись
// отбрасывается с предупреждением в лог — прогресс-обновления
// не должны тормозить выполнение шагов.
type Queue struct {
	sender TimelineSender
	logger *slog.Logger

	flushInterval time.Duration

	jobID uuid.UUID
	ch    chan domain.TimelineRecord
	done  chan struct{}
	wg    sync.WaitGroup

	startOnce    sync.Once
	started      bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Config — конфигурация очереди.
type Config struct {
	// Sender — получатель timeline-записей.
	Sender TimelineSender

	// FlushInterval — интервал фоновой отправки (default: 1s).
	FlushInterval time.Duration

	// BufferSize — ёмкость буфера записей (default: 256).
	BufferSize int

	// Logger
	Logger *slog.Logger
}

// New создаёт очередь для одного job.
func New(cfg Config) *Queue {
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		sender:        cfg.Sender,
		logger:        logger,
		flushInterval: flushInterval,
		ch:            make(chan domain.TimelineRecord, bufferSize),
		done:          make(chan struct{}),
	}
}

// Start запускает фоновую отправку обновлений для job.
// Повторные вызовы игнорируются.
func (q *Queue) Start(job *domain.JobRequest) {
	q.startOnce.Do(func() {
		q.jobID = job.JobID
		q.started = true

		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.flushLoop()
		}()

		q.logger.Debug("job server queue started", "job_id", q.jobID)
	})
}

// Record ставит timeline-запись в очередь отправки.
// Реализует execution.Sink. Никогда не блокирует.
func (q *Queue) Record(rec domain.TimelineRecord) {
	select {
	case q.ch <- rec:
	case <-q.done:
		q.logger.Warn("record after queue shutdown, dropped", "record_id", rec.ID)
		telemetry.QueueRecordsDropped.Inc()
	default:
		q.logger.Warn("queue buffer full, record dropped", "record_id", rec.ID)
		telemetry.QueueRecordsDropped.Inc()
	}
}

// Shutdown останавливает фоновую отправку, предварительно слив
// накопленные записи. Первый вызов выполняет работу и сохраняет
// исход; последующие возвращают его без повторного слива.
//
// ctx ограничивает время ожидания слива; по истечении оставшиеся
// записи теряются, что фиксируется в логе.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.shutdownOnce.Do(func() {
		if !q.started {
			return
		}

		close(q.done)

		finished := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			// Record может выиграть отправку в канал одновременно
			// с закрытием done — уже после финального слива цикла.
			// Добираем такие записи, иначе они теряются молча.
			q.drainResidual()
			q.logger.Debug("job server queue drained", "job_id", q.jobID)
		case <-ctx.Done():
			q.shutdownErr = ctx.Err()
			q.logger.Warn("queue drain timed out, records lost",
				"job_id", q.jobID,
				"error", ctx.Err(),
			)
		}
	})
	return q.shutdownErr
}

// drainResidual забирает записи, попавшие в канал после выхода
// flushLoop, и отправляет их. Вызывается только после q.wg.Wait().
func (q *Queue) drainResidual() {
	var batch []domain.TimelineRecord
	for {
		select {
		case rec := <-q.ch:
			batch = append(batch, rec)
			continue
		default:
		}
		break
	}
	q.flush(batch)
}

// flushLoop — фоновый цикл отправки пачек записей.
func (q *Queue) flushLoop() {
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	var batch []domain.TimelineRecord

	for {
		select {
		case rec := <-q.ch:
			batch = append(batch, rec)

		case <-ticker.C:
			batch = q.flush(batch)

		case <-q.done:
			// Финальный слив: забираем остатки буфера и отправляем
			for {
				select {
				case rec := <-q.ch:
					batch = append(batch, rec)
					continue
				default:
				}
				break
			}
			q.flush(batch)
			return
		}
	}
}

// flush отправляет пачку записей. Ошибка отправки логируется,
// пачка при этом сохраняется для повторной попытки на следующем
// интервале. Возвращает оставшуюся (пустую или неотправленную) пачку.
func (q *Queue) flush(batch []domain.TimelineRecord) []domain.TimelineRecord {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := q.sender.UpdateTimeline(ctx, q.jobID, batch); err != nil {
		q.logger.Warn("failed to flush timeline records",
			"job_id", q.jobID,
			"count", len(batch),
			"error", err,
		)
		return batch
	}

	q.logger.Debug("flushed timeline records", "job_id", q.jobID, "count", len(batch))
	return batch[:0]
}
