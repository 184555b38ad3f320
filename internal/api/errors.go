package api

import (
	"errors"
	"net/http"

	"github.com/skyking-delivery/skytrack/internal/store"
)

// ToAPIError maps a pipeline error onto an HTTP status and envelope code.
// Internal detail is never echoed to the client; the correlation id plus
// the service log carry the diagnosis.
func ToAPIError(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusOK, "", ""
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE", "Telemetry store is temporarily unavailable"
	case errors.Is(err, store.ErrWriteFailed):
		return http.StatusInternalServerError, "INTERNAL", "Internal server error"
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal server error"
	}
}

// WriteAPIError writes the mapped envelope for err.
func WriteAPIError(w http.ResponseWriter, err error) {
	status, code, message := ToAPIError(err)
	WriteError(w, status, code, message, nil)
}
