package domain

import (
	"time"

	"github.com/google/uuid"
)

// TimelineRecord — запись о состоянии одного узла выполнения
// (job или шаг), отправляемая на сервер через очередь job-сервера.
type TimelineRecord struct {
	// ID — идентификатор узла (совпадает с ID контекста выполнения).
	ID uuid.UUID `json:"id"`

	// ParentID — идентификатор родительского узла.
	// uuid.Nil для корня.
	ParentID uuid.UUID `json:"parent_id,omitempty"`

	// Name — отображаемое имя узла.
	Name string `json:"name"`

	// Result — терминальный результат узла.
	Result JobResult `json:"result"`

	// Error — текст ошибки, если узел завершился неуспешно.
	Error string `json:"error,omitempty"`

	// FinishedAt — время финализации узла.
	FinishedAt time.Time `json:"finished_at"`
}
