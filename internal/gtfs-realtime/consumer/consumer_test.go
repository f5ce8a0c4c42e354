package consumer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twofivefivedev/nz-transit-app/internal/common/config"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"google.golang.org/protobuf/proto"
)

const tripUpdatesJSON = `{
  "header": {"gtfsRealtimeVersion": "2.0", "incrementality": 0, "timestamp": 1700000000},
  "entity": [
    {"id": "e1", "tripUpdate": {"trip": {"tripId": "T1", "routeId": "2"}, "delay": 120, "vendorField": true}}
  ]
}`

func testConsumer(t *testing.T, h http.Handler) *Consumer {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default().Realtime
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.HTTPTimeout = 5 * time.Second

	c := NewConsumer(cfg, logger.Nop())
	c.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return c
}

func TestFetchDecodesJSON(t *testing.T) {
	c := testConsumer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tripupdates", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tripUpdatesJSON))
	}))

	msg, err := c.Fetch(context.Background(), FeedTripUpdates)
	require.NoError(t, err)
	require.Len(t, msg.GetEntity(), 1)
	tu := msg.GetEntity()[0].GetTripUpdate()
	assert.Equal(t, "T1", tu.GetTrip().GetTripId())
	assert.Equal(t, int32(120), tu.GetDelay())
	assert.Equal(t, uint64(1700000000), msg.GetHeader().GetTimestamp())
}

func TestFetchDecodesProtobuf(t *testing.T) {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfs.FeedEntity{{
			Id: proto.String("v1"),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle:  &gtfs.VehicleDescriptor{Id: proto.String("BUS1")},
				Position: &gtfs.Position{Latitude: proto.Float32(-41.28), Longitude: proto.Float32(174.77)},
			},
		}},
	}
	body, err := proto.Marshal(feed)
	require.NoError(t, err)

	c := testConsumer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vehiclepositions", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(body)
	}))

	msg, err := c.Fetch(context.Background(), FeedVehiclePositions)
	require.NoError(t, err)
	assert.Equal(t, "BUS1", msg.GetEntity()[0].GetVehicle().GetVehicle().GetId())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := testConsumer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tripUpdatesJSON))
	}))

	_, err := c.Fetch(context.Background(), FeedTripUpdates)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetchClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := testConsumer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.Fetch(context.Background(), FeedServiceAlerts)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	assert.Equal(t, FeedServiceAlerts, fe.Feed)
	assert.Equal(t, "GTFS-RT fetch failed: 403 Forbidden", fe.Error())
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := testConsumer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Fetch(context.Background(), FeedTripUpdates)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchReusesCachedFeedOnNotModified(t *testing.T) {
	var calls atomic.Int32
	c := testConsumer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tripUpdatesJSON))
	}))

	first, err := c.Fetch(context.Background(), FeedTripUpdates)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), FeedTripUpdates)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestFetchRejectsMalformedBody(t *testing.T) {
	c := testConsumer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entity": "nope"`))
	}))

	_, err := c.Fetch(context.Background(), FeedTripUpdates)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestFeedLabel(t *testing.T) {
	assert.Equal(t, "Trip updates", FeedTripUpdates.Label())
	assert.Equal(t, "Vehicle positions", FeedVehiclePositions.Label())
	assert.Equal(t, "Service alerts", FeedServiceAlerts.Label())
}
