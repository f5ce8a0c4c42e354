package gtfs_realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/internal/gtfs-realtime/consumer"
	"github.com/twofivefivedev/nz-transit-app/internal/hotstate"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
	"google.golang.org/protobuf/proto"
)

type stubFetcher struct {
	feeds map[consumer.Feed]*gtfs.FeedMessage
	errs  map[consumer.Feed]error
	// hang makes Fetch block for that feed until the context ends
	hang map[consumer.Feed]bool
}

func (f *stubFetcher) Fetch(ctx context.Context, feed consumer.Feed) (*gtfs.FeedMessage, error) {
	if f.hang[feed] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.errs[feed]; err != nil {
		return nil, err
	}
	if msg, ok := f.feeds[feed]; ok {
		return msg, nil
	}
	return &gtfs.FeedMessage{}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []models.SyncResult
}

func (n *recordingNotifier) NotifySyncFailure(_ context.Context, r models.SyncResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	vehicles int
	alerts   int
}

func (p *recordingPublisher) PublishVehicles(_ context.Context, v []models.VehiclePosition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vehicles += len(v)
	return nil
}

func (p *recordingPublisher) PublishAlerts(_ context.Context, a []models.ServiceAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts += len(a)
	return errors.New("broker down")
}

func sampleFeeds() map[consumer.Feed]*gtfs.FeedMessage {
	return map[consumer.Feed]*gtfs.FeedMessage{
		consumer.FeedTripUpdates: {Entity: []*gtfs.FeedEntity{
			{Id: proto.String("1"), TripUpdate: &gtfs.TripUpdate{Trip: &gtfs.TripDescriptor{TripId: proto.String("T1")}, Delay: proto.Int32(120)}},
			{Id: proto.String("2"), TripUpdate: &gtfs.TripUpdate{Trip: &gtfs.TripDescriptor{TripId: proto.String("T2")}, Delay: proto.Int32(-30)}},
		}},
		consumer.FeedVehiclePositions: {Entity: []*gtfs.FeedEntity{
			{Id: proto.String("v"), Vehicle: &gtfs.VehiclePosition{
				Vehicle:  &gtfs.VehicleDescriptor{Id: proto.String("3301")},
				Position: &gtfs.Position{Latitude: proto.Float32(-41.28), Longitude: proto.Float32(174.77)},
			}},
		}},
		consumer.FeedServiceAlerts: {Entity: []*gtfs.FeedEntity{
			{Id: proto.String("A1"), Alert: &gtfs.Alert{}},
			{Id: proto.String("A2"), Alert: &gtfs.Alert{}},
			{Id: proto.String("A3"), Alert: &gtfs.Alert{}},
		}},
	}
}

func newTestSyncer(f consumer.Fetcher, opts ...Option) (*Syncer, *hotstate.Repository) {
	repo := hotstate.NewRepository(hotstate.NewMemoryStore(1024))
	return NewSyncer(f, repo, 5*time.Second, logger.Nop(), opts...), repo
}

func TestSyncAllWritesEveryFeed(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestSyncer(&stubFetcher{feeds: sampleFeeds()})

	result := s.SyncAll(ctx)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.DelayCount)
	assert.Equal(t, 1, result.VehicleCount)
	assert.Equal(t, 3, result.AlertCount)
	assert.Empty(t, result.Errors)

	delays, err := repo.TripDelays(ctx, []string{"T1", "T2"})
	require.NoError(t, err)
	assert.Equal(t, int32(120), delays["T1"].DelaySeconds)
	assert.Equal(t, int32(-30), delays["T2"].DelaySeconds)

	_, ok, err := repo.VehiclePosition(ctx, "3301")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := repo.ActiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "A3"}, ids)

	last, _, ok := s.LastResult()
	assert.True(t, ok)
	assert.Equal(t, result, last)
}

func TestSyncAllIsolatesFeedFailures(t *testing.T) {
	notifier := &recordingNotifier{}
	fetcher := &stubFetcher{
		feeds: sampleFeeds(),
		errs: map[consumer.Feed]error{
			consumer.FeedVehiclePositions: &consumer.FetchError{Feed: consumer.FeedVehiclePositions, StatusCode: http.StatusServiceUnavailable},
		},
	}
	s, _ := newTestSyncer(fetcher, WithNotifier(notifier))

	result := s.SyncAll(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.DelayCount)
	assert.Equal(t, 0, result.VehicleCount)
	assert.Equal(t, 3, result.AlertCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Vehicle positions: GTFS-RT fetch failed: 503 Service Unavailable", result.Errors[0])

	require.Len(t, notifier.results, 1)
	assert.Equal(t, result, notifier.results[0])
}

func TestSyncAllErrorOrderIsStable(t *testing.T) {
	fail := errors.New("boom")
	fetcher := &stubFetcher{errs: map[consumer.Feed]error{
		consumer.FeedServiceAlerts:    fail,
		consumer.FeedTripUpdates:      fail,
		consumer.FeedVehiclePositions: fail,
	}}
	s, _ := newTestSyncer(fetcher)

	result := s.SyncAll(context.Background())

	assert.Equal(t, []string{
		"Trip updates: boom",
		"Vehicle positions: boom",
		"Service alerts: boom",
	}, result.Errors)
}

func TestSyncAlertsReplacesActiveIndex(t *testing.T) {
	ctx := context.Background()
	feeds := sampleFeeds()
	fetcher := &stubFetcher{feeds: feeds}
	s, repo := newTestSyncer(fetcher)

	_, err := s.SyncAlerts(ctx)
	require.NoError(t, err)

	feeds[consumer.FeedServiceAlerts] = &gtfs.FeedMessage{}
	n, err := s.SyncAlerts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	ids, err := repo.ActiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSyncCacheOutageFailsFeed(t *testing.T) {
	store := hotstate.NewMemoryStore(16)
	require.NoError(t, store.Close())
	s := NewSyncer(&stubFetcher{feeds: sampleFeeds()}, hotstate.NewRepository(store), time.Second, logger.Nop())

	n, err := s.SyncDelays(context.Background())
	assert.Zero(t, n)
	assert.True(t, hotstate.IsUnavailable(err))
}

func TestPublisherFailureDoesNotFailSync(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newTestSyncer(&stubFetcher{feeds: sampleFeeds()}, WithPublisher(pub))

	result := s.SyncAll(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 1, pub.vehicles)
	assert.Equal(t, 3, pub.alerts)
}

func TestBackToBackSyncs(t *testing.T) {
	s, _ := newTestSyncer(&stubFetcher{feeds: sampleFeeds()})
	first := s.SyncAll(context.Background())
	second := s.SyncAll(context.Background())
	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.Equal(t, first.DelayCount, second.DelayCount)
}

func TestSyncAllBoundsStuckFeed(t *testing.T) {
	f := &stubFetcher{
		feeds: sampleFeeds(),
		hang:  map[consumer.Feed]bool{consumer.FeedVehiclePositions: true},
	}
	repo := hotstate.NewRepository(hotstate.NewMemoryStore(1024))
	s := NewSyncer(f, repo, 200*time.Millisecond, logger.Nop())

	start := time.Now()
	result := s.SyncAll(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.DelayCount)
	assert.Zero(t, result.VehicleCount)
	assert.Equal(t, 3, result.AlertCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Vehicle positions: context deadline exceeded", result.Errors[0])
}
