package gtfs_realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/internal/gtfs-realtime/consumer"
	"github.com/twofivefivedev/nz-transit-app/internal/gtfs-realtime/processor"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

// Writer is the slice of the hot-state repository the syncer writes through.
type Writer interface {
	PutTripDelay(ctx context.Context, d models.TripDelay) error
	PutVehiclePosition(ctx context.Context, v models.VehiclePosition) error
	PutServiceAlert(ctx context.Context, a models.ServiceAlert) error
	PutActiveAlertIDs(ctx context.Context, ids []string) error
}

// Publisher fans out freshly synced entities to subscribers.
type Publisher interface {
	PublishVehicles(ctx context.Context, positions []models.VehiclePosition) error
	PublishAlerts(ctx context.Context, alerts []models.ServiceAlert) error
}

type Notifier interface {
	NotifySyncFailure(ctx context.Context, result models.SyncResult) error
}

type Metrics interface {
	ObserveFeedSync(feed string, written int, err error)
	ObserveSyncAll(d time.Duration)
}

type Syncer struct {
	fetcher   consumer.Fetcher
	cache     Writer
	logger    logger.Logger
	timeout   time.Duration
	now       func() time.Time
	publisher Publisher
	notifier  Notifier
	metrics   Metrics

	mu      sync.RWMutex
	last    models.SyncResult
	lastAt  time.Time
	hasLast bool
}

type Option func(*Syncer)

func WithPublisher(p Publisher) Option { return func(s *Syncer) { s.publisher = p } }
func WithNotifier(n Notifier) Option   { return func(s *Syncer) { s.notifier = n } }
func WithMetrics(m Metrics) Option     { return func(s *Syncer) { s.metrics = m } }
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// NewSyncer builds a syncer whose per-feed operations are each bounded by timeout.
func NewSyncer(fetcher consumer.Fetcher, cache Writer, timeout time.Duration, log logger.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		fetcher: fetcher,
		cache:   cache,
		logger:  log,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncDelays writes one delay entry per trip in the trip updates feed.
func (s *Syncer) SyncDelays(ctx context.Context) (int, error) {
	return s.syncFeed(ctx, consumer.FeedTripUpdates, func(ctx context.Context, s *Syncer, msg *gtfs.FeedMessage) (int, error) {
		delays, stats := processor.TripDelays(msg, s.now())
		s.logSkipped(consumer.FeedTripUpdates, stats)
		for i, d := range delays {
			if err := s.cache.PutTripDelay(ctx, d); err != nil {
				return i, fmt.Errorf("writing delay for trip %s: %w", d.TripID, err)
			}
		}
		return len(delays), nil
	})
}

// SyncVehiclePositions writes one entry per vehicle in the vehicle positions feed.
func (s *Syncer) SyncVehiclePositions(ctx context.Context) (int, error) {
	return s.syncFeed(ctx, consumer.FeedVehiclePositions, func(ctx context.Context, s *Syncer, msg *gtfs.FeedMessage) (int, error) {
		positions, stats := processor.VehiclePositions(msg, s.now())
		s.logSkipped(consumer.FeedVehiclePositions, stats)
		for i, v := range positions {
			if err := s.cache.PutVehiclePosition(ctx, v); err != nil {
				return i, fmt.Errorf("writing position for vehicle %s: %w", v.VehicleID, err)
			}
		}
		if s.publisher != nil && len(positions) > 0 {
			if err := s.publisher.PublishVehicles(ctx, positions); err != nil {
				s.logger.Warn("Failed to publish vehicle positions", "error", err)
			}
		}
		return len(positions), nil
	})
}

// SyncAlerts writes every alert and then replaces the active alert index with the ids seen.
func (s *Syncer) SyncAlerts(ctx context.Context) (int, error) {
	return s.syncFeed(ctx, consumer.FeedServiceAlerts, func(ctx context.Context, s *Syncer, msg *gtfs.FeedMessage) (int, error) {
		alerts, stats := processor.ServiceAlerts(msg)
		s.logSkipped(consumer.FeedServiceAlerts, stats)
		ids := make([]string, 0, len(alerts))
		for i, a := range alerts {
			if err := s.cache.PutServiceAlert(ctx, a); err != nil {
				return i, fmt.Errorf("writing alert %s: %w", a.AlertID, err)
			}
			ids = append(ids, a.AlertID)
		}
		if err := s.cache.PutActiveAlertIDs(ctx, ids); err != nil {
			return len(alerts), fmt.Errorf("writing active alert index: %w", err)
		}
		if s.publisher != nil {
			if err := s.publisher.PublishAlerts(ctx, alerts); err != nil {
				s.logger.Warn("Failed to publish service alerts", "error", err)
			}
		}
		return len(alerts), nil
	})
}

// SyncAll runs the three feed syncs concurrently. A failing feed is recorded in the
// result and never prevents the others from completing.
func (s *Syncer) SyncAll(ctx context.Context) models.SyncResult {
	start := s.now()

	type outcome struct {
		feed  consumer.Feed
		count int
		err   error
	}
	ops := []struct {
		feed consumer.Feed
		run  func(context.Context) (int, error)
	}{
		{consumer.FeedTripUpdates, s.SyncDelays},
		{consumer.FeedVehiclePositions, s.SyncVehiclePositions},
		{consumer.FeedServiceAlerts, s.SyncAlerts},
	}

	outcomes := make([]outcome, len(ops))
	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func(i int, feed consumer.Feed, run func(context.Context) (int, error)) {
			defer wg.Done()
			count, err := run(ctx)
			outcomes[i] = outcome{feed: feed, count: count, err: err}
		}(i, op.feed, op.run)
	}
	wg.Wait()

	result := models.SyncResult{Errors: []string{}}
	for _, o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", o.feed.Label(), o.err))
			continue
		}
		switch o.feed {
		case consumer.FeedTripUpdates:
			result.DelayCount = o.count
		case consumer.FeedVehiclePositions:
			result.VehicleCount = o.count
		case consumer.FeedServiceAlerts:
			result.AlertCount = o.count
		}
	}
	result.Success = len(result.Errors) == 0
	elapsed := s.now().Sub(start)
	result.TotalDurationMillis = elapsed.Milliseconds()

	if s.metrics != nil {
		s.metrics.ObserveSyncAll(elapsed)
	}

	s.mu.Lock()
	s.last, s.lastAt, s.hasLast = result, s.now(), true
	s.mu.Unlock()

	if result.Success {
		s.logger.Info("GTFS-RT sync completed",
			"trip_updates", result.DelayCount,
			"vehicle_positions", result.VehicleCount,
			"service_alerts", result.AlertCount,
			"duration_ms", result.TotalDurationMillis)
		return result
	}

	s.logger.Warn("GTFS-RT sync completed with errors",
		"trip_updates", result.DelayCount,
		"vehicle_positions", result.VehicleCount,
		"service_alerts", result.AlertCount,
		"errors", result.Errors,
		"duration_ms", result.TotalDurationMillis)
	if s.notifier != nil {
		if err := s.notifier.NotifySyncFailure(ctx, result); err != nil {
			s.logger.Error("Failed to send sync failure notification", "error", err)
		}
	}
	return result
}

// LastResult returns the most recent SyncAll outcome and when it finished.
func (s *Syncer) LastResult() (models.SyncResult, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastAt, s.hasLast
}

func (s *Syncer) syncFeed(ctx context.Context, feed consumer.Feed, apply func(context.Context, *Syncer, *gtfs.FeedMessage) (int, error)) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	msg, err := s.fetcher.Fetch(ctx, feed)
	if err != nil {
		s.observe(feed, 0, err)
		s.logger.Error("Feed fetch failed", "feed", feed, "error", err)
		return 0, err
	}

	count, err := apply(ctx, s, msg)
	s.observe(feed, count, err)
	if err != nil {
		s.logger.Error("Feed sync failed", "feed", feed, "written", count, "error", err)
		return count, err
	}

	s.logger.Debug("Feed synced",
		"feed", feed,
		"written", count,
		"duration_ms", s.now().Sub(start).Milliseconds())
	return count, nil
}

func (s *Syncer) observe(feed consumer.Feed, count int, err error) {
	if s.metrics != nil {
		s.metrics.ObserveFeedSync(string(feed), count, err)
	}
}

func (s *Syncer) logSkipped(feed consumer.Feed, stats processor.Stats) {
	if stats.Skipped > 0 {
		s.logger.Debug("Skipped feed entities missing identifiers",
			"feed", feed,
			"entities", stats.Entities,
			"skipped", stats.Skipped)
	}
}
