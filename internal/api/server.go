package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/twofivefivedev/nz-transit-app/internal/common/config"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/internal/stream"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

type DeparturesService interface {
	GetDepartures(ctx context.Context, stopID string, limit, windowSeconds int) ([]models.Departure, error)
}

type StreamRunner interface {
	Run(ctx context.Context, stopID string, emit stream.Emitter) error
}

type StopDirectory interface {
	Stop(ctx context.Context, stopID string) (models.Stop, bool, error)
	SearchStops(ctx context.Context, query string, limit int) ([]models.Stop, error)
}

type HotState interface {
	ActiveAlerts(ctx context.Context) ([]models.ServiceAlert, error)
	VehiclePosition(ctx context.Context, vehicleID string) (models.VehiclePosition, bool, error)
}

type Syncer interface {
	SyncAll(ctx context.Context) models.SyncResult
}

// SyncStatus reports the outcome of the most recent composite sync.
type SyncStatus interface {
	LastResult() (models.SyncResult, time.Time, bool)
}

type HTTPMetrics interface {
	ObserveHTTP(route string, code int, d time.Duration)
}

// Deps are the collaborators behind the routes. SyncStatus, Metrics,
// MetricsHandler and HealthCheck are optional.
type Deps struct {
	Departures     DeparturesService
	Stream         StreamRunner
	Stops          StopDirectory
	HotState       HotState
	Syncer         Syncer
	SyncStatus     SyncStatus
	Metrics        HTTPMetrics
	MetricsHandler http.Handler
	HealthCheck    func(ctx context.Context) error
}

type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	logger logger.Logger
	router *mux.Router

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

func NewServer(cfg config.ServerConfig, deps Deps, log logger.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log,
		now:    time.Now,
		wait:   sleepContext,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.recoverer, s.requestID, s.logRequests, cors, s.instrument)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.deps.MetricsHandler != nil {
		r.Handle("/metrics", s.deps.MetricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stops", s.handleSearchStops).Methods(http.MethodGet)
	api.HandleFunc("/stops/{stopId}", s.handleStop).Methods(http.MethodGet)
	api.HandleFunc("/stops/{stopId}/departures", s.handleDepartures).Methods(http.MethodGet)
	api.HandleFunc("/sse/stop/{stopId}", s.handleStream).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{vehicleId}", s.handleVehicle).Methods(http.MethodGet)
	api.HandleFunc("/sync", s.requireSecret(s.handleSync)).Methods(http.MethodPost)
	api.HandleFunc("/cron/sync", s.requireSecret(s.handleCronSync)).Methods(http.MethodGet)

	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router = r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
