package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/api/shared"
	"github.com/skritek/overseer/internal/outcome"
)

// maxOutcomeBodyBytes bounds the webhook request body.
const maxOutcomeBodyBytes = 1 << 20

// OutcomeResponse represents the response for an accepted outcome report.
type OutcomeResponse struct {
	TaskID     string    `json:"task_id"`
	RunID      string    `json:"run_id"`
	RunNumber  int       `json:"run_number"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Idempotent bool      `json:"idempotent"`
	ReportedAt time.Time `json:"reported_at"`
}

// OutcomeHandler handles worker outcome webhook requests.
type OutcomeHandler struct {
	service *outcome.Service
}

// NewOutcomeHandler creates a new OutcomeHandler.
func NewOutcomeHandler(service *outcome.Service) *OutcomeHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	return &OutcomeHandler{service: service}
}

// ReportOutcome handles POST /api/tasks/{id}/outcome requests.
func (h *OutcomeHandler) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOutcomeBodyBytes))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := h.service.ReportOutcome(r.Context(), taskID, json.RawMessage(body))
	if err != nil {
		status := MapErrorToStatusCode(err)
		shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err)
		return
	}

	if workerID, ok := r.Context().Value(shared.WorkerIDContextKey).(string); ok {
		slog.Debug("outcome accepted",
			slog.String("task_id", taskID.String()),
			slog.String("worker_id", workerID),
			slog.Bool("idempotent", result.Idempotent))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, OutcomeResponse{
		TaskID:     result.Run.TaskID.String(),
		RunID:      result.Run.RunID.String(),
		RunNumber:  result.Run.RunNumber,
		OldStatus:  string(result.OldStatus),
		NewStatus:  string(result.NewStatus),
		Idempotent: result.Idempotent,
		ReportedAt: result.Run.CreatedAt,
	})
}
