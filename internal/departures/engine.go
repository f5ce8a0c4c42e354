package departures

import (
	"context"
	"fmt"
	"time"

	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/internal/hotstate"
	"github.com/twofivefivedev/nz-transit-app/internal/schedule"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

const (
	DefaultLimit         = 20
	MaxLimit             = 50
	DefaultWindowSeconds = 7200
	MaxWindowSeconds     = 86400
	maxStopIDLength      = 255

	// delays within this many seconds either side of schedule count as on time
	onTimeToleranceSeconds = 60
)

// InvalidInputError is returned before any I/O when a request is out of bounds.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type ServiceDayResolver interface {
	Resolve(ctx context.Context) (schedule.ServiceDay, error)
}

type StopTimesReader interface {
	StopTimes(ctx context.Context, q schedule.StopTimesQuery) ([]models.ScheduledStopTime, error)
}

type DelayReader interface {
	TripDelays(ctx context.Context, tripIDs []string) (map[string]models.TripDelay, error)
}

type Metrics interface {
	ObserveReconcile(d time.Duration, errKind string)
}

type Engine struct {
	resolver ServiceDayResolver
	schedule StopTimesReader
	delays   DelayReader
	logger   logger.Logger
	metrics  Metrics
}

func NewEngine(resolver ServiceDayResolver, stopTimes StopTimesReader, delays DelayReader, log logger.Logger, m Metrics) *Engine {
	return &Engine{
		resolver: resolver,
		schedule: stopTimes,
		delays:   delays,
		logger:   log,
		metrics:  m,
	}
}

// StatusFor maps a signed delay to a status. Cancellation is never derived here.
func StatusFor(delaySeconds int32) models.DepartureStatus {
	switch {
	case delaySeconds > onTimeToleranceSeconds:
		return models.StatusDelayed
	case delaySeconds < -onTimeToleranceSeconds:
		return models.StatusEarly
	default:
		return models.StatusOnTime
	}
}

func ValidateStopID(stopID string) error {
	if stopID == "" {
		return &InvalidInputError{Field: "stopId", Reason: "must not be empty"}
	}
	if len(stopID) > maxStopIDLength {
		return &InvalidInputError{Field: "stopId", Reason: fmt.Sprintf("must be at most %d characters", maxStopIDLength)}
	}
	return nil
}

func Validate(stopID string, limit, windowSeconds int) error {
	if err := ValidateStopID(stopID); err != nil {
		return err
	}
	if limit < 1 || limit > MaxLimit {
		return &InvalidInputError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	if windowSeconds < 0 || windowSeconds > MaxWindowSeconds {
		return &InvalidInputError{Field: "window", Reason: fmt.Sprintf("must be between 0 and %d", MaxWindowSeconds)}
	}
	return nil
}

// GetDepartures merges the timetable for stopID with the latest cached delays.
// Both the schedule query and the delay lookup must succeed; a cache outage is
// never reported as on-time departures.
func (e *Engine) GetDepartures(ctx context.Context, stopID string, limit, windowSeconds int) ([]models.Departure, error) {
	if err := Validate(stopID, limit, windowSeconds); err != nil {
		return nil, err
	}

	start := time.Now()
	deps, err := e.reconcile(ctx, stopID, limit, windowSeconds)
	if e.metrics != nil {
		e.metrics.ObserveReconcile(time.Since(start), errorKind(err))
	}
	if err != nil {
		e.logger.Warn("Departure reconciliation failed", "stop_id", stopID, "error", err)
		return nil, err
	}
	return deps, nil
}

func (e *Engine) reconcile(ctx context.Context, stopID string, limit, windowSeconds int) ([]models.Departure, error) {
	day, err := e.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving service day: %w", err)
	}

	ids := day.ServiceIDs()
	if len(ids) == 0 {
		return []models.Departure{}, nil
	}

	rows, err := e.schedule.StopTimes(ctx, schedule.StopTimesQuery{
		StopID:      stopID,
		FromSeconds: day.NowSeconds,
		ToSeconds:   day.NowSeconds + windowSeconds,
		ServiceIDs:  ids,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.Departure{}, nil
	}

	tripIDs := make([]string, len(rows))
	for i, row := range rows {
		tripIDs[i] = row.TripID
	}
	delays, err := e.delays.TripDelays(ctx, tripIDs)
	if err != nil {
		return nil, fmt.Errorf("reading trip delays: %w", err)
	}

	out := make([]models.Departure, 0, len(rows))
	for _, row := range rows {
		out = append(out, buildDeparture(row, delays[row.TripID].DelaySeconds))
	}
	return out, nil
}

func buildDeparture(row models.ScheduledStopTime, delaySeconds int32) models.Departure {
	d := models.Departure{
		TripID:             row.TripID,
		RouteID:            row.RouteID,
		RouteShortName:     row.RouteShortName,
		TripHeadsign:       row.Headsign(),
		ScheduledDeparture: schedule.FormatClock(row.ScheduledDepartureSeconds),
		DelaySeconds:       delaySeconds,
		Status:             StatusFor(delaySeconds),
		StopSequence:       row.StopSequence,
	}
	if delaySeconds != 0 {
		rt := schedule.FormatClock(row.ScheduledDepartureSeconds + int(delaySeconds))
		d.RealtimeDeparture = &rt
	}
	return d
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case hotstate.IsUnavailable(err):
		return "cache"
	default:
		return "schedule"
	}
}
