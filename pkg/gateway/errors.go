package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/afkd/pkg/session"
	"github.com/rs/zerolog/log"
)

// Response is the envelope returned by the mutating endpoints
type Response struct {
	Success bool        `json:"success"`
	Status  *StatusView `json:"status,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// statusFor maps session errors to HTTP status codes. Terminal failures are
// checked before the timeout so a start that gave up reports 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrNotOnline):
		return http.StatusConflict
	case errors.Is(err, session.ErrNonRetryableDisconnect), errors.Is(err, session.ErrRetryExhausted):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrConnectTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), Response{Success: false, Error: err.Error()})
}
