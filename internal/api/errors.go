package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/services"
	"github.com/soochol/chatflow/internal/storage"
	"github.com/soochol/chatflow/internal/validator"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Issues []validator.Issue `json:"issues,omitempty"`
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if pe, ok := services.AsPublishError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: pe.Error(), Issues: pe.Issues})
		return
	}
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, chatflow.ErrNotFound),
		errors.Is(err, chatflow.ErrNoConversation),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatflow.ErrTenantViolation):
		return http.StatusForbidden
	case errors.Is(err, chatflow.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, chatflow.ErrSlotOccupied):
		return http.StatusConflict
	case chatflow.IsStructural(err),
		errors.Is(err, chatflow.ErrUnknownNodeType),
		errors.Is(err, chatflow.ErrInvalidPayload),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnsupportedContent):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}
