package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fabrica/internal/domain"
)

// JobRecord — запись журнала о выполненном (или выполняемом) job.
//
// Журнал ведётся агентом локально: запись создаётся при получении
// job и закрывается терминальным результатом после RunJob.
type JobRecord struct {
	// RequestID — идентификатор запроса (первичный ключ).
	RequestID uuid.UUID `json:"request_id"`

	// JobID — идентификатор job на сервере.
	JobID uuid.UUID `json:"job_id"`

	// JobName — отображаемое имя job.
	JobName string `json:"job_name"`

	// HostType — вид job.
	HostType string `json:"host_type"`

	// Result — терминальный результат; пусто, пока job выполняется.
	Result domain.JobResult `json:"result,omitempty"`

	// Error — текст ошибки при неуспехе.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока job выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobRepo — репозиторий журнала jobs.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Insert создаёт запись о начатом job.
func (r *JobRepo) Insert(ctx context.Context, rec *JobRecord) error {
	query := `
		INSERT INTO jobs (request_id, job_id, job_name, host_type, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.RequestID,
		rec.JobID,
		rec.JobName,
		rec.HostType,
		rec.StartedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: job request %s", ErrAlreadyExists, rec.RequestID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Finish закрывает запись job терминальным результатом.
func (r *JobRepo) Finish(ctx context.Context, requestID uuid.UUID, result domain.JobResult, errorText string) error {
	query := `
		UPDATE jobs
		SET result = $2, error = $3, finished_at = $4
		WHERE request_id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		requestID,
		string(result),
		nullString(errorText),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByRequestID возвращает запись job по идентификатору запроса.
func (r *JobRepo) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*JobRecord, error) {
	query := `
		SELECT request_id, job_id, job_name, host_type, result, error, started_at, finished_at
		FROM jobs
		WHERE request_id = $1
	`
	return scanJob(r.pool.QueryRow(ctx, query, requestID))
}

// List возвращает последние записи журнала, новые первыми.
func (r *JobRepo) List(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT request_id, job_id, job_name, host_type, result, error, started_at, finished_at
		FROM jobs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanJob читает JobRecord из строки результата.
func scanJob(row pgx.Row) (*JobRecord, error) {
	var rec JobRecord
	var result, errorText *string

	err := row.Scan(
		&rec.RequestID,
		&rec.JobID,
		&rec.JobName,
		&rec.HostType,
		&result,
		&errorText,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if result != nil {
		rec.Result = domain.JobResult(*result)
	}
	if errorText != nil {
		rec.Error = *errorText
	}
	return &rec, nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
