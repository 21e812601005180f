package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shaiso/Fabrica/internal/domain"
)

// TaskDefinition — определение задачи из каталога сервера.
type TaskDefinition struct {
	// Name — имя задачи в каталоге.
	Name string `json:"name"`

	// Version — версия задачи.
	Version string `json:"version"`

	// FriendlyName — отображаемое имя.
	FriendlyName string `json:"friendly_name,omitempty"`

	// Execution — описание исполнения по платформам
	// (содержимое непрозрачно для оркестратора).
	Execution map[string]any `json:"execution,omitempty"`
}

// TaskServer — клиент сервера определений задач.
type TaskServer struct {
	c *client
}

// ConnectTask подключается к серверу определений задач.
// Сам факт подключения не гарантирует наличие каталога задач —
// см. HasTaskDefinitionEndpoint.
func ConnectTask(ctx context.Context, serverURL string, auth domain.Authorization) (*TaskServer, error) {
	c, err := newClient(serverURL, auth)
	if err != nil {
		return nil, err
	}
	return &TaskServer{c: c}, nil
}

// HasTaskDefinitionEndpoint проверяет, предоставляет ли сервер
// каталог определений задач. 404 означает отсутствие каталога,
// не ошибку.
func (s *TaskServer) HasTaskDefinitionEndpoint(ctx context.Context) (bool, error) {
	err := s.c.do(ctx, http.MethodGet, "api/v1/tasks", nil, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// GetTaskDefinition возвращает определение задачи по имени и версии.
func (s *TaskServer) GetTaskDefinition(ctx context.Context, name, version string) (*TaskDefinition, error) {
	path := fmt.Sprintf("api/v1/tasks/%s/%s", name, version)

	raw, err := s.c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get task definition %s@%s: %w", name, version, err)
	}

	var def TaskDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode task definition %s@%s: %w", name, version, err)
	}
	return &def, nil
}

// DownloadTask скачивает архив задачи (zip).
func (s *TaskServer) DownloadTask(ctx context.Context, name, version string) ([]byte, error) {
	path := fmt.Sprintf("api/v1/tasks/%s/%s/content", name, version)

	raw, err := s.c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("download task %s@%s: %w", name, version, err)
	}
	return raw, nil
}
