package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
)

type fakeCalendar struct {
	weekly     map[string][]string
	added      map[string][]string
	err        error
	weeklyHits int
	addedHits  int
}

func (f *fakeCalendar) WeeklyServiceIDs(_ context.Context, date time.Time) ([]string, error) {
	f.weeklyHits++
	if f.err != nil {
		return nil, f.err
	}
	return f.weekly[date.Format(dateLayout)], nil
}

func (f *fakeCalendar) AddedServiceIDs(_ context.Context, date time.Time) ([]string, error) {
	f.addedHits++
	if f.err != nil {
		return nil, f.err
	}
	return f.added[date.Format(dateLayout)], nil
}

func auckland(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)
	return loc
}

func TestResolveUsesLocalWallClock(t *testing.T) {
	loc := auckland(t)
	cal := &fakeCalendar{weekly: map[string][]string{"2025-03-04": {"WKDY"}}}
	r := NewResolver(WeeklyCalendar{Store: cal}, loc, logger.Nop())
	// 2025-03-03T20:30:15Z is 09:30:15 on the 4th in Auckland (NZDT, +13).
	r.now = func() time.Time { return time.Date(2025, 3, 3, 20, 30, 15, 0, time.UTC) }

	day, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9*3600+30*60+15, day.NowSeconds)
	assert.Equal(t, "2025-03-04", day.Date.Format(dateLayout))
	assert.True(t, day.IsServiceActive("WKDY"))
	assert.False(t, day.IsServiceActive("SAT"))
	assert.Equal(t, []string{"WKDY"}, day.ServiceIDs())
}

func TestResolveMemoisesPerDate(t *testing.T) {
	loc := auckland(t)
	cal := &fakeCalendar{}
	r := NewResolver(WeeklyCalendar{Store: cal}, loc, logger.Nop())

	now := time.Date(2025, 6, 10, 8, 0, 0, 0, loc)
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	now = now.Add(time.Hour)
	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cal.weeklyHits)

	now = now.Add(24 * time.Hour)
	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cal.weeklyHits)
}

func TestResolveDoesNotMemoiseFailures(t *testing.T) {
	cal := &fakeCalendar{err: &QueryError{Op: "weekly calendar", Err: errors.New("timeout")}}
	r := NewResolver(WeeklyCalendar{Store: cal}, time.UTC, logger.Nop())

	_, err := r.Resolve(context.Background())
	var qe *QueryError
	require.True(t, errors.As(err, &qe))

	cal.err = nil
	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cal.weeklyHits)
}

func TestExceptionStrategyOnlyReadsCalendarDates(t *testing.T) {
	cal := &fakeCalendar{added: map[string][]string{"2025-12-25": {"XMAS"}}}
	r := NewResolver(CalendarExceptions{Store: cal}, time.UTC, logger.Nop())
	r.now = func() time.Time { return time.Date(2025, 12, 25, 12, 0, 0, 0, time.UTC) }

	day, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, day.IsServiceActive("XMAS"))
	assert.Equal(t, 0, cal.weeklyHits)
	assert.Equal(t, 1, cal.addedHits)
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("weekly", &fakeCalendar{})
	require.NoError(t, err)
	assert.Equal(t, StrategyWeekly, s.Name())

	s, err = NewStrategy("exceptions", &fakeCalendar{})
	require.NoError(t, err)
	assert.Equal(t, StrategyExceptions, s.Name())

	_, err = NewStrategy("both", &fakeCalendar{})
	assert.Error(t, err)
}
