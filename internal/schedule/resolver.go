package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
)

const (
	StrategyWeekly     = "weekly"
	StrategyExceptions = "exceptions"
)

// CalendarStrategy decides which services run on a date. A deployment uses exactly one.
type CalendarStrategy interface {
	Name() string
	ActiveServiceIDs(ctx context.Context, date time.Time) ([]string, error)
}

// WeeklyCalendar reads the calendar table: the weekday flag must be set and the
// date must fall inside the validity range.
type WeeklyCalendar struct {
	Store CalendarStore
}

func (WeeklyCalendar) Name() string { return StrategyWeekly }

func (w WeeklyCalendar) ActiveServiceIDs(ctx context.Context, date time.Time) ([]string, error) {
	return w.Store.WeeklyServiceIDs(ctx, date)
}

// CalendarExceptions reads calendar_dates and counts only rows marking the service as added.
type CalendarExceptions struct {
	Store CalendarStore
}

func (CalendarExceptions) Name() string { return StrategyExceptions }

func (c CalendarExceptions) ActiveServiceIDs(ctx context.Context, date time.Time) ([]string, error) {
	return c.Store.AddedServiceIDs(ctx, date)
}

func NewStrategy(name string, store CalendarStore) (CalendarStrategy, error) {
	switch name {
	case StrategyWeekly, "":
		return WeeklyCalendar{Store: store}, nil
	case StrategyExceptions:
		return CalendarExceptions{Store: store}, nil
	default:
		return nil, fmt.Errorf("unknown calendar strategy %q", name)
	}
}

// ServiceDay is the resolver's answer for one instant.
type ServiceDay struct {
	Date       time.Time
	NowSeconds int
	serviceIDs []string
	active     map[string]struct{}
}

func NewServiceDay(date time.Time, nowSeconds int, serviceIDs []string) ServiceDay {
	active := make(map[string]struct{}, len(serviceIDs))
	for _, id := range serviceIDs {
		active[id] = struct{}{}
	}
	return ServiceDay{Date: date, NowSeconds: nowSeconds, serviceIDs: serviceIDs, active: active}
}

func (d ServiceDay) IsServiceActive(serviceID string) bool {
	_, ok := d.active[serviceID]
	return ok
}

func (d ServiceDay) ServiceIDs() []string {
	return d.serviceIDs
}

// Resolver maps the wall clock onto a service day. Active service ids are
// cached for the whole local date: a timetable loaded into the store mid-day
// is only seen by the resolver once the date rolls over, or after a restart.
// A failed lookup is not cached.
type Resolver struct {
	strategy CalendarStrategy
	loc      *time.Location
	logger   logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	memoDate string
	memoIDs  []string
}

func NewResolver(strategy CalendarStrategy, loc *time.Location, log logger.Logger) *Resolver {
	return &Resolver{
		strategy: strategy,
		loc:      loc,
		logger:   log,
		now:      time.Now,
	}
}

// Resolve reports the local date, the seconds elapsed since local midnight, and
// the services active on that date. Active ids are loaded once per date.
func (r *Resolver) Resolve(ctx context.Context) (ServiceDay, error) {
	local := r.now().In(r.loc)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	nowSeconds := local.Hour()*3600 + local.Minute()*60 + local.Second()

	ids, err := r.activeIDs(ctx, date)
	if err != nil {
		return ServiceDay{}, err
	}
	return NewServiceDay(date, nowSeconds, ids), nil
}

func (r *Resolver) activeIDs(ctx context.Context, date time.Time) ([]string, error) {
	key := date.Format(dateLayout)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memoDate == key {
		return r.memoIDs, nil
	}

	ids, err := r.strategy.ActiveServiceIDs(ctx, date)
	if err != nil {
		return nil, err
	}
	r.memoDate, r.memoIDs = key, ids
	r.logger.Info("Resolved active services",
		"date", key,
		"strategy", r.strategy.Name(),
		"services", len(ids))
	return ids, nil
}
