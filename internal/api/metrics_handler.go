package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/api/shared"
	"github.com/skritek/overseer/internal/scheduler"
)

// MetricsHandler serves read-only scheduler queue metrics.
type MetricsHandler struct {
	selector *scheduler.Selector
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(selector *scheduler.Selector) *MetricsHandler {
	if selector == nil {
		panic("selector cannot be nil")
	}
	return &MetricsHandler{selector: selector}
}

// GetMetrics handles GET /api/scheduler/metrics?tenant_id=... requests.
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid or missing tenant_id")
		return
	}

	m, err := h.selector.Metrics(r.Context(), tenantID, time.Now().UTC())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to collect scheduler metrics", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, m)
}
