package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/twofivefivedev/nz-transit-app/internal/departures"
	"github.com/twofivefivedev/nz-transit-app/internal/hotstate"
	"github.com/twofivefivedev/nz-transit-app/internal/schedule"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP codes.
func statusFor(err error) int {
	var invalid *departures.InvalidInputError
	var query *schedule.QueryError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case hotstate.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &query):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"path", r.URL.Path,
			"status", status,
			"request_id", RequestID(r.Context()),
			"error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
