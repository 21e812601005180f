package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// ListJobs возвращает последние записи журнала jobs.
// GET /api/v1/jobs?limit=N
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	records, err := h.jobRepo.List(r.Context(), limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, records, len(records))
}

// GetJob возвращает запись журнала по идентификатору запроса.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job request id")
		return
	}

	rec, err := h.jobRepo.GetByRequestID(r.Context(), requestID)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, rec)
}
