package api

import (
	"log/slog"

	"github.com/shaiso/Fabrica/internal/repo"
)

// Handler — главный обработчик диагностического API.
type Handler struct {
	jobRepo *repo.JobRepo
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	JobRepo *repo.JobRepo
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		jobRepo: cfg.JobRepo,
		logger:  cfg.Logger,
	}
}
