package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты диагностического API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
}
