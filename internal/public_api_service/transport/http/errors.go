package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	prefdomain "github.com/lynqchat/golang_services/internal/preference_service/domain"
)

func jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.Warn("API Error Response", "status_code", statusCode, "message", message)
	writeJSON(w, statusCode, GenericErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// mapDomainErrorToHTTPStatus answers with one human-readable reason per failure kind.
func mapDomainErrorToHTTPStatus(w http.ResponseWriter, logger *slog.Logger, err error, operation string) {
	logEntry := logger.With("operation", operation, "error", err)

	var (
		validationErr *domain.ValidationError
		blobErr       *domain.BlobError
		storeErr      *domain.StoreError
	)
	switch {
	case errors.As(err, &validationErr):
		jsonError(w, logEntry, validationErr.Error(), http.StatusBadRequest)
	case errors.Is(err, prefdomain.ErrInvalidPreference):
		jsonError(w, logEntry, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		jsonError(w, logEntry, "Message not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrSelfRead):
		jsonError(w, logEntry, "Senders cannot mark their own messages read", http.StatusForbidden)
	case errors.As(err, &blobErr):
		logEntry.Error("Blob store failure")
		jsonError(w, logEntry, "Media storage unavailable", http.StatusBadGateway)
	case errors.As(err, &storeErr):
		logEntry.Error("Message store failure")
		jsonError(w, logEntry, "Message store unavailable", http.StatusInternalServerError)
	default:
		logEntry.Error("Unhandled error")
		jsonError(w, logEntry, "Internal server error", http.StatusInternalServerError)
	}
}
