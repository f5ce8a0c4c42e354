package departures

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/internal/hotstate"
	"github.com/twofivefivedev/nz-transit-app/internal/schedule"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

type fixedResolver struct {
	day schedule.ServiceDay
	err error
}

func (r fixedResolver) Resolve(context.Context) (schedule.ServiceDay, error) {
	return r.day, r.err
}

type fakeStopTimes struct {
	rows  []models.ScheduledStopTime
	err   error
	calls int
	last  schedule.StopTimesQuery
}

func (f *fakeStopTimes) StopTimes(_ context.Context, q schedule.StopTimesQuery) ([]models.ScheduledStopTime, error) {
	f.calls++
	f.last = q
	return f.rows, f.err
}

func wellRows() []models.ScheduledStopTime {
	return []models.ScheduledStopTime{
		{TripID: "T1", StopID: "WELL", StopSequence: 1, ScheduledDepartureSeconds: 3600, RouteID: "KPL", RouteShortName: "KPL", TripHeadsign: "Waikanae", ServiceID: "WKDY"},
		{TripID: "T2", StopID: "WELL", StopSequence: 1, ScheduledDepartureSeconds: 7200, RouteID: "HVL", RouteShortName: "HVL", TripHeadsign: "Upper Hutt", StopHeadsign: "Upper Hutt via Petone", ServiceID: "WKDY"},
	}
}

func newEngine(t *testing.T, rows *fakeStopTimes, store hotstate.Store) (*Engine, *hotstate.Repository) {
	t.Helper()
	repo := hotstate.NewRepository(store)
	resolver := fixedResolver{day: schedule.NewServiceDay(time.Time{}, 0, []string{"WKDY"})}
	return NewEngine(resolver, rows, repo, logger.Nop(), nil), repo
}

func TestStatusBoundaries(t *testing.T) {
	cases := []struct {
		delay int32
		want  models.DepartureStatus
	}{
		{61, models.StatusDelayed},
		{60, models.StatusOnTime},
		{0, models.StatusOnTime},
		{-60, models.StatusOnTime},
		{-61, models.StatusEarly},
		{3600, models.StatusDelayed},
		{-3600, models.StatusEarly},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.delay), "delay %d", tc.delay)
	}
}

func TestGetDeparturesMergesCachedDelays(t *testing.T) {
	ctx := context.Background()
	rows := &fakeStopTimes{rows: wellRows()}
	engine, repo := newEngine(t, rows, hotstate.NewMemoryStore(64))
	require.NoError(t, repo.PutTripDelay(ctx, models.TripDelay{TripID: "T1", DelaySeconds: 120}))

	deps, err := engine.GetDepartures(ctx, "WELL", DefaultLimit, DefaultWindowSeconds)
	require.NoError(t, err)
	require.Len(t, deps, 2)

	first := deps[0]
	assert.Equal(t, "01:00:00", first.ScheduledDeparture)
	require.NotNil(t, first.RealtimeDeparture)
	assert.Equal(t, "01:02:00", *first.RealtimeDeparture)
	assert.Equal(t, int32(120), first.DelaySeconds)
	assert.Equal(t, models.StatusDelayed, first.Status)
	assert.Equal(t, "Waikanae", first.TripHeadsign)

	second := deps[1]
	assert.Equal(t, "02:00:00", second.ScheduledDeparture)
	assert.Nil(t, second.RealtimeDeparture)
	assert.Equal(t, int32(0), second.DelaySeconds)
	assert.Equal(t, models.StatusOnTime, second.Status)
	assert.Equal(t, "Upper Hutt via Petone", second.TripHeadsign)

	assert.Equal(t, schedule.StopTimesQuery{
		StopID:      "WELL",
		FromSeconds: 0,
		ToSeconds:   DefaultWindowSeconds,
		ServiceIDs:  []string{"WKDY"},
		Limit:       DefaultLimit,
	}, rows.last)
}

func TestGetDeparturesAbsentDelayIsOnTime(t *testing.T) {
	engine, _ := newEngine(t, &fakeStopTimes{rows: wellRows()}, hotstate.NewMemoryStore(64))

	deps, err := engine.GetDepartures(context.Background(), "WELL", 5, 600)
	require.NoError(t, err)
	for _, d := range deps {
		assert.Zero(t, d.DelaySeconds)
		assert.Equal(t, models.StatusOnTime, d.Status)
		assert.Nil(t, d.RealtimeDeparture)
	}
}

func TestGetDeparturesCacheOutageIsFatal(t *testing.T) {
	store := hotstate.NewMemoryStore(64)
	require.NoError(t, store.Close())
	engine, _ := newEngine(t, &fakeStopTimes{rows: wellRows()}, store)

	deps, err := engine.GetDepartures(context.Background(), "WELL", 5, 600)
	assert.Nil(t, deps)
	assert.True(t, hotstate.IsUnavailable(err))
}

func TestGetDeparturesScheduleFailureIsFatal(t *testing.T) {
	rows := &fakeStopTimes{err: &schedule.QueryError{Op: "stop times", Err: errors.New("too many connections")}}
	engine, _ := newEngine(t, rows, hotstate.NewMemoryStore(64))

	_, err := engine.GetDepartures(context.Background(), "WELL", 5, 600)
	var qe *schedule.QueryError
	assert.True(t, errors.As(err, &qe))
}

func TestGetDeparturesNoActiveServices(t *testing.T) {
	rows := &fakeStopTimes{rows: wellRows()}
	resolver := fixedResolver{day: schedule.NewServiceDay(time.Time{}, 0, nil)}
	engine := NewEngine(resolver, rows, hotstate.NewRepository(hotstate.NewMemoryStore(8)), logger.Nop(), nil)

	deps, err := engine.GetDepartures(context.Background(), "WELL", 5, 600)
	require.NoError(t, err)
	assert.Empty(t, deps)
	assert.NotNil(t, deps)
	assert.Zero(t, rows.calls)
}

func TestGetDeparturesEarlyBeforeMidnight(t *testing.T) {
	ctx := context.Background()
	rows := &fakeStopTimes{rows: []models.ScheduledStopTime{
		{TripID: "N1", ScheduledDepartureSeconds: 86400 + 300, RouteShortName: "N1"},
	}}
	engine, repo := newEngine(t, rows, hotstate.NewMemoryStore(8))
	require.NoError(t, repo.PutTripDelay(ctx, models.TripDelay{TripID: "N1", DelaySeconds: -90}))

	deps, err := engine.GetDepartures(ctx, "WELL", 1, 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "24:05:00", deps[0].ScheduledDeparture)
	assert.Equal(t, "24:03:30", *deps[0].RealtimeDeparture)
	assert.Equal(t, models.StatusEarly, deps[0].Status)
}

func TestValidateRejectsBeforeIO(t *testing.T) {
	cases := []struct {
		name   string
		stopID string
		limit  int
		window int
		field  string
	}{
		{"empty stop", "", 20, 7200, "stopId"},
		{"long stop", strings.Repeat("x", 256), 20, 7200, "stopId"},
		{"zero limit", "WELL", 0, 7200, "limit"},
		{"limit over max", "WELL", 51, 7200, "limit"},
		{"negative window", "WELL", 20, -1, "window"},
		{"window over a day", "WELL", 20, 86401, "window"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows := &fakeStopTimes{}
			engine, _ := newEngine(t, rows, hotstate.NewMemoryStore(8))

			_, err := engine.GetDepartures(context.Background(), tc.stopID, tc.limit, tc.window)
			var ie *InvalidInputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tc.field, ie.Field)
			assert.Zero(t, rows.calls)
		})
	}

	assert.NoError(t, Validate("WELL", 50, 86400))
	assert.NoError(t, Validate("WELL", 1, 0))
}
