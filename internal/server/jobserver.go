package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Fabrica/internal/domain"
)

// JobServer — клиент job-сервера.
//
// Через него агент отправляет timeline-обновления, строки логов
// и финальный результат job. Handle создаётся ConnectJob и живёт
// не дольше одного job.
type JobServer struct {
	c *client
}

// ConnectJob подключается к job-серверу и проверяет доступность.
func ConnectJob(ctx context.Context, serverURL string, auth domain.Authorization) (*JobServer, error) {
	c, err := newClient(serverURL, auth)
	if err != nil {
		return nil, err
	}

	// Лёгкий запрос для валидации адреса и учётных данных
	if err := c.do(ctx, http.MethodGet, "api/v1/connection", nil, nil); err != nil {
		return nil, fmt.Errorf("connect job server: %w", err)
	}

	return &JobServer{c: c}, nil
}

// UpdateTimeline отправляет пачку timeline-записей job.
func (s *JobServer) UpdateTimeline(ctx context.Context, jobID uuid.UUID, records []domain.TimelineRecord) error {
	path := fmt.Sprintf("api/v1/jobs/%s/timeline", jobID)
	body := struct {
		Records []domain.TimelineRecord `json:"records"`
	}{Records: records}

	if err := s.c.do(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("update timeline: %w", err)
	}
	return nil
}

// AppendLog добавляет строки в лог job.
func (s *JobServer) AppendLog(ctx context.Context, jobID uuid.UUID, lines []string) error {
	path := fmt.Sprintf("api/v1/jobs/%s/logs", jobID)
	body := struct {
		Lines []string `json:"lines"`
	}{Lines: lines}

	if err := s.c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// CompleteJob сообщает серверу терминальный результат job.
func (s *JobServer) CompleteJob(ctx context.Context, jobID uuid.UUID, result domain.JobResult, errorText string) error {
	path := fmt.Sprintf("api/v1/jobs/%s/complete", jobID)
	body := struct {
		Result domain.JobResult `json:"result"`
		Error  string           `json:"error,omitempty"`
	}{Result: result, Error: errorText}

	if err := s.c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}
