package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hannahlabs/leadflow/internal/models"
)

// Pre-marshaled fallback response so a marshal failure never produces an empty body.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusFromError maps internal error values onto HTTP status codes. Requests
// the caller got wrong are 400s, unknown tenants and senders are 404s,
// everything else stays a 500 with the detail kept in the logs.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, models.ErrMissingFields),
		errors.Is(err, models.ErrMissingField),
		errors.Is(err, models.ErrShortPhoneNumber),
		errors.Is(err, models.ErrSamePhoneNumber),
		errors.Is(err, models.ErrBlockedSender),
		errors.Is(err, models.ErrDuplicateMessage):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCompanyNotFound),
		errors.Is(err, models.ErrOwnerNotFound),
		errors.Is(err, models.ErrLeadNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs the full error and sends the safe summary to the caller.
func writeError(w http.ResponseWriter, handler string, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Server."+handler+": request failed", "error", err)
	} else {
		slog.Warn("Server."+handler+": request rejected", "error", err)
	}
	writeJSONResponse(w, status, models.Error(err.Error()))
}
