package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/twofivefivedev/nz-transit-app/internal/common/db"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

const dateLayout = "2006-01-02"

// dayColumns is indexed by time.Weekday.
var dayColumns = [...]string{
	"sunday",
	"monday",
	"tuesday",
	"wednesday",
	"thursday",
	"friday",
	"saturday",
}

const stopTimesQuery = `
SELECT st.trip_id, st.stop_id, st.stop_sequence, st.arrival_time, st.departure_time,
       COALESCE(st.stop_headsign, ''), t.route_id, COALESCE(t.trip_headsign, ''),
       COALESCE(r.route_short_name, ''), COALESCE(r.route_long_name, ''), t.service_id
FROM stop_times st
JOIN trips t ON t.trip_id = st.trip_id
JOIN routes r ON r.route_id = t.route_id
WHERE st.stop_id = $1
  AND st.departure_time BETWEEN $2 AND $3
  AND t.service_id = ANY($4)
ORDER BY st.departure_time, st.trip_id
LIMIT $5`

const stopColumns = `stop_id, COALESCE(stop_code, ''), stop_name, stop_lat, stop_lon,
       COALESCE(parent_station, ''), COALESCE(platform_code, '')`

type PostgresStore struct {
	db     *db.DB
	logger logger.Logger
}

func NewPostgresStore(database *db.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: database, logger: log}
}

func (s *PostgresStore) WeeklyServiceIDs(ctx context.Context, date time.Time) ([]string, error) {
	query := fmt.Sprintf(`SELECT service_id FROM calendar
WHERE %s = true AND start_date <= $1::date AND end_date >= $1::date
ORDER BY service_id`, dayColumns[date.Weekday()])
	ids, err := s.queryIDs(ctx, query, date.Format(dateLayout))
	if err != nil {
		return nil, &QueryError{Op: "weekly calendar", Err: err}
	}
	return ids, nil
}

func (s *PostgresStore) AddedServiceIDs(ctx context.Context, date time.Time) ([]string, error) {
	query := `SELECT service_id FROM calendar_dates
WHERE date = $1::date AND exception_type = $2
ORDER BY service_id`
	ids, err := s.queryIDs(ctx, query, date.Format(dateLayout), models.ExceptionAdded)
	if err != nil {
		return nil, &QueryError{Op: "calendar exceptions", Err: err}
	}
	return ids, nil
}

func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning service id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) StopTimes(ctx context.Context, q StopTimesQuery) ([]models.ScheduledStopTime, error) {
	rows, err := s.db.DB().QueryContext(ctx, stopTimesQuery,
		q.StopID, q.FromSeconds, q.ToSeconds, pq.Array(q.ServiceIDs), q.Limit)
	if err != nil {
		return nil, &QueryError{Op: "stop times", Err: err}
	}
	defer rows.Close()

	results := make([]models.ScheduledStopTime, 0, q.Limit)
	for rows.Next() {
		var st models.ScheduledStopTime
		err := rows.Scan(
			&st.TripID,
			&st.StopID,
			&st.StopSequence,
			&st.ScheduledArrivalSeconds,
			&st.ScheduledDepartureSeconds,
			&st.StopHeadsign,
			&st.RouteID,
			&st.TripHeadsign,
			&st.RouteShortName,
			&st.RouteLongName,
			&st.ServiceID,
		)
		if err != nil {
			return nil, &QueryError{Op: "stop times", Err: fmt.Errorf("scanning row: %w", err)}
		}
		results = append(results, st)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "stop times", Err: err}
	}
	return results, nil
}

func (s *PostgresStore) Stop(ctx context.Context, stopID string) (models.Stop, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+stopColumns+` FROM stops WHERE stop_id = $1`, stopID)
	stop, err := scanStop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Stop{}, false, nil
	}
	if err != nil {
		return models.Stop{}, false, &QueryError{Op: "stop", Err: err}
	}
	return stop, true, nil
}

// SearchStops matches stop names case-insensitively anywhere in the name.
func (s *PostgresStore) SearchStops(ctx context.Context, query string, limit int) ([]models.Stop, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+stopColumns+` FROM stops WHERE stop_name ILIKE $1 ORDER BY stop_name, stop_id LIMIT $2`,
		pattern, limit)
	if err != nil {
		return nil, &QueryError{Op: "search stops", Err: err}
	}
	defer rows.Close()

	stops := []models.Stop{}
	for rows.Next() {
		stop, err := scanStop(rows)
		if err != nil {
			return nil, &QueryError{Op: "search stops", Err: err}
		}
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "search stops", Err: err}
	}
	return stops, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStop(row scanner) (models.Stop, error) {
	var stop models.Stop
	err := row.Scan(
		&stop.StopID,
		&stop.StopCode,
		&stop.StopName,
		&stop.StopLat,
		&stop.StopLon,
		&stop.ParentStation,
		&stop.PlatformCode,
	)
	return stop, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
