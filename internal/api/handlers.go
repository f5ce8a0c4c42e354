package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/twofivefivedev/nz-transit-app/internal/departures"
	"github.com/twofivefivedev/nz-transit-app/internal/stream"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	maxSearchQuery     = 100

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

type cronTotals struct {
	TripUpdates      int `json:"tripUpdates"`
	VehiclePositions int `json:"vehiclePositions"`
	ServiceAlerts    int `json:"serviceAlerts"`
}

type cronResponse struct {
	Success   bool       `json:"success"`
	Syncs     int        `json:"syncs"`
	Totals    cronTotals `json:"totals"`
	Duration  int64      `json:"duration"`
	Errors    []string   `json:"errors,omitempty"`
	Timestamp string     `json:"timestamp"`
}

type lastSync struct {
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
	At         string   `json:"at"`
	AgeSeconds int64    `json:"ageSeconds"`
}

type healthResponse struct {
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	LastSync *lastSync `json:"lastSync,omitempty"`
}

// handleHealth fails only when a dependency is unreachable. The last sync is
// informational; an old or failed sync does not make the process unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.SyncStatus != nil {
		if res, at, ok := s.deps.SyncStatus.LastResult(); ok {
			resp.LastSync = &lastSync{
				Success:    res.Success,
				Errors:     res.Errors,
				At:         at.UTC().Format(isoMillis),
				AgeSeconds: int64(s.now().Sub(at).Seconds()),
			}
		}
	}

	if s.deps.HealthCheck != nil {
		if err := s.deps.HealthCheck(r.Context()); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDepartures(w http.ResponseWriter, r *http.Request) {
	stopID := mux.Vars(r)["stopId"]

	limit, err := intParam(r, "limit", departures.DefaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	window, err := intParam(r, "window", departures.DefaultWindowSeconds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	deps, err := s.deps.Departures.GetDepartures(r.Context(), stopID, limit, window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stream.NewResult(stopID, deps, s.now().UnixMilli()))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	stopID := mux.Vars(r)["stopId"]
	if err := departures.ValidateStopID(stopID); err != nil {
		s.writeError(w, r, err)
		return
	}

	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Stream.Run(r.Context(), stopID, sse); err != nil && !stream.IsDisconnect(err) {
		s.logger.Warn("Stream ended with error",
			"stop_id", stopID,
			"request_id", RequestID(r.Context()),
			"error", err)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	stopID := mux.Vars(r)["stopId"]
	if err := departures.ValidateStopID(stopID); err != nil {
		s.writeError(w, r, err)
		return
	}

	stop, ok, err := s.deps.Stops.Stop(r.Context(), stopID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("stop %s not found", stopID)})
		return
	}
	writeJSON(w, http.StatusOK, stop)
}

func (s *Server) handleSearchStops(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" || len(q) > maxSearchQuery {
		s.writeError(w, r, &departures.InvalidInputError{
			Field:  "q",
			Reason: fmt.Sprintf("must be between 1 and %d characters", maxSearchQuery),
		})
		return
	}

	limit, err := intParam(r, "limit", defaultSearchLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit < 1 || limit > maxSearchLimit {
		s.writeError(w, r, &departures.InvalidInputError{
			Field:  "limit",
			Reason: fmt.Sprintf("must be between 1 and %d", maxSearchLimit),
		})
		return
	}

	stops, err := s.deps.Stops.SearchStops(r.Context(), q, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.HotState.ActiveAlerts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []models.ServiceAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["vehicleId"]

	v, ok, err := s.deps.HotState.VehiclePosition(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("vehicle %s not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Syncer.SyncAll(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// handleCronSync runs two syncs per invocation, CronSecondPassDelay apart, so a
// once-a-minute scheduler refreshes the cache roughly every half minute.
func (s *Server) handleCronSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results := make([]models.SyncResult, 0, 2)
	results = append(results, s.deps.Syncer.SyncAll(ctx))

	if s.cfg.CronSecondPassDelay > 0 {
		if err := s.wait(ctx, s.cfg.CronSecondPassDelay); err != nil {
			s.logger.Warn("Cron sync aborted between passes", "request_id", RequestID(ctx), "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success":   false,
				"error":     err.Error(),
				"timestamp": s.now().UTC().Format(isoMillis),
			})
			return
		}
		results = append(results, s.deps.Syncer.SyncAll(ctx))
	}

	resp := cronResponse{Syncs: len(results)}
	for _, res := range results {
		resp.Totals.TripUpdates += res.DelayCount
		resp.Totals.VehiclePositions += res.VehicleCount
		resp.Totals.ServiceAlerts += res.AlertCount
		resp.Duration += res.TotalDurationMillis
		resp.Errors = append(resp.Errors, res.Errors...)
	}
	resp.Success = len(resp.Errors) == 0
	resp.Timestamp = s.now().UTC().Format(isoMillis)

	s.logger.Info("Cron sync completed",
		"success", resp.Success,
		"trip_updates", resp.Totals.TripUpdates,
		"vehicle_positions", resp.Totals.VehiclePositions,
		"service_alerts", resp.Totals.ServiceAlerts,
		"duration_ms", resp.Duration,
		"errors", len(resp.Errors))

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &departures.InvalidInputError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}
