package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teranos/valstream/errors"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// statusFor maps a run error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, errors.ErrNotAlive):
		return http.StatusServiceUnavailable
	case errors.IsAny(err, errors.ErrSourceFailure, errors.ErrValidatorFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage flattens err and its hints for clients.
func errorMessage(err error) string {
	if hint := errors.FlattenHints(err); hint != "" {
		return err.Error() + " (" + hint + ")"
	}
	return err.Error()
}
