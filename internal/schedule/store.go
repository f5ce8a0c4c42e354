// Package schedule is the read side of the static GTFS timetable: stop-time
// lookups, stop search, and resolution of which services run on a given day.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

// StopTimesQuery selects departures at one stop within [FromSeconds, ToSeconds]
// for the given services, ordered by departure time.
type StopTimesQuery struct {
	StopID      string
	FromSeconds int
	ToSeconds   int
	ServiceIDs  []string
	Limit       int
}

// CalendarStore exposes the two service-calendar tables.
type CalendarStore interface {
	WeeklyServiceIDs(ctx context.Context, date time.Time) ([]string, error)
	AddedServiceIDs(ctx context.Context, date time.Time) ([]string, error)
}

type Store interface {
	CalendarStore
	StopTimes(ctx context.Context, q StopTimesQuery) ([]models.ScheduledStopTime, error)
	Stop(ctx context.Context, stopID string) (models.Stop, bool, error)
	SearchStops(ctx context.Context, query string, limit int) ([]models.Stop, error)
}

// QueryError wraps any failure talking to the timetable database.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("schedule query %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
