package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"github.com/twofivefivedev/nz-transit-app/internal/common/config"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	UserAgent = "nz-transit-app/1.0"

	maxFeedBytes = 32 << 20
)

type Feed string

const (
	FeedTripUpdates      Feed = "trip_updates"
	FeedVehiclePositions Feed = "vehicle_positions"
	FeedServiceAlerts    Feed = "service_alerts"
)

// Label is the human-readable name used in sync error messages.
func (f Feed) Label() string {
	switch f {
	case FeedTripUpdates:
		return "Trip updates"
	case FeedVehiclePositions:
		return "Vehicle positions"
	case FeedServiceAlerts:
		return "Service alerts"
	default:
		return string(f)
	}
}

// FetchError reports an unreachable endpoint, a non-success response, or an undecodable body.
type FetchError struct {
	Feed       Feed
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GTFS-RT fetch failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GTFS-RT fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves one decoded feed document.
type Fetcher interface {
	Fetch(ctx context.Context, feed Feed) (*gtfs.FeedMessage, error)
}

type Consumer struct {
	config     config.RealtimeConfig
	httpClient *http.Client
	logger     logger.Logger
	cache      *feedCache
	endpoints  map[Feed]string
	newBackOff func() backoff.BackOff
}

type feedCache struct {
	data map[Feed]*cacheEntry
	mu   sync.RWMutex
}

type cacheEntry struct {
	feedMessage *gtfs.FeedMessage
	etag        string
}

func NewConsumer(cfg config.RealtimeConfig, log logger.Logger) *Consumer {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	c := &Consumer{
		config:     cfg,
		httpClient: client,
		logger:     log,
		cache:      newFeedCache(),
		endpoints: map[Feed]string{
			FeedTripUpdates:      cfg.FeedURL(cfg.TripUpdatesPath),
			FeedVehiclePositions: cfg.FeedURL(cfg.VehiclePositionPath),
			FeedServiceAlerts:    cfg.FeedURL(cfg.ServiceAlertsPath),
		},
	}
	c.newBackOff = c.defaultBackOff
	return c
}

func newFeedCache() *feedCache {
	return &feedCache{
		data: make(map[Feed]*cacheEntry),
	}
}

func (c *Consumer) defaultBackOff() backoff.BackOff {
	if c.config.RetryMaxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 4 * time.Second
	b.MaxElapsedTime = c.config.RetryMaxElapsed
	return b
}

// Fetch downloads and decodes one feed. Transport failures, 429 and 5xx responses are retried
// until the retry budget or ctx runs out; anything else fails immediately.
func (c *Consumer) Fetch(ctx context.Context, feed Feed) (*gtfs.FeedMessage, error) {
	url, ok := c.endpoints[feed]
	if !ok {
		return nil, &FetchError{Feed: feed, Err: fmt.Errorf("unknown feed %q", feed)}
	}

	start := time.Now()
	b := backoff.WithContext(c.newBackOff(), ctx)
	msg, err := backoff.RetryNotifyWithData(func() (*gtfs.FeedMessage, error) {
		return c.fetchOnce(ctx, feed, url)
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("Retrying feed fetch", "feed", feed, "wait", wait.String(), "error", err)
	})
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Feed: feed, Err: err}
		}
		return nil, err
	}

	c.logger.Debug("Fetched feed",
		"feed", feed,
		"entities", len(msg.GetEntity()),
		"duration_ms", time.Since(start).Milliseconds())
	return msg, nil
}

func (c *Consumer) fetchOnce(ctx context.Context, feed Feed, url string) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(&FetchError{Feed: feed, Err: fmt.Errorf("failed to create request: %w", err)})
	}

	if c.config.APIKey != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}
	req.Header.Set("User-Agent", UserAgent)
	if c.config.Format == "protobuf" {
		req.Header.Set("Accept", "application/x-protobuf")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	cached := c.cache.get(feed)
	if cached != nil && cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fe := &FetchError{Feed: feed, Err: err}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fe)
		}
		return nil, fe
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		c.logger.Debug("Feed not modified, using cached version", "feed", feed)
		return cached.feedMessage, nil
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		fe := &FetchError{Feed: feed, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fe
		}
		return nil, backoff.Permanent(fe)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FetchError{Feed: feed, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	msg, err := c.decode(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, backoff.Permanent(&FetchError{Feed: feed, Err: err})
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		c.cache.set(feed, &cacheEntry{
			feedMessage: msg,
			etag:        etag,
		})
	}
	return msg, nil
}

// decode accepts Metlink's protobuf-JSON rendering as well as binary protobuf.
func (c *Consumer) decode(body []byte, contentType string) (*gtfs.FeedMessage, error) {
	msg := &gtfs.FeedMessage{}
	isJSON := strings.Contains(contentType, "json") ||
		(contentType == "" && c.config.Format != "protobuf")

	if isJSON {
		opts := protojson.UnmarshalOptions{DiscardUnknown: true, AllowPartial: true}
		if err := opts.Unmarshal(body, msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal json feed: %w", err)
		}
		return msg, nil
	}

	opts := proto.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}
	if err := opts.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return msg, nil
}

func (fc *feedCache) get(feed Feed) *cacheEntry {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.data[feed]
}

func (fc *feedCache) set(feed Feed, entry *cacheEntry) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.data[feed] = entry
}
