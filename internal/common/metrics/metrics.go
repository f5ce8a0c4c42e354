package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	FeedSyncs      *prometheus.CounterVec // feed, outcome=ok|error
	FeedEntities   *prometheus.CounterVec // feed
	SyncDuration   prometheus.Histogram
	LastSyncUnix   prometheus.Gauge
	ReconcileTime  prometheus.Histogram
	ReconcileErrs  *prometheus.CounterVec // kind
	ActiveStreams  prometheus.Gauge
	StreamEvents   *prometheus.CounterVec // event
	HTTPRequests   *prometheus.CounterVec // route, code
	HTTPDuration   *prometheus.HistogramVec
	NATSPublished  prometheus.Counter
	NATSPublishErr prometheus.Counter
	NATSConnected  prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_feed_syncs_total",
			Help: "Feed synchronisations by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FeedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_feed_entities_written_total",
			Help: "Normalised entities written to the hot-state cache.",
		}, []string{"feed"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_sync_all_duration_seconds",
			Help:    "Duration of a composite sync of all feeds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LastSyncUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_last_sync_timestamp_seconds",
			Help: "Unix time of the last completed composite sync.",
		}),
		ReconcileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_reconcile_duration_seconds",
			Help:    "Duration of a departure reconciliation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		ReconcileErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_reconcile_errors_total",
			Help: "Failed reconciliations by error kind.",
		}, []string{"kind"}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_active_streams",
			Help: "Open departure streams.",
		}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_stream_events_total",
			Help: "Events pushed to stream clients by type.",
		}, []string{"event"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.FeedSyncs, c.FeedEntities, c.SyncDuration, c.LastSyncUnix,
		c.ReconcileTime, c.ReconcileErrs,
		c.ActiveStreams, c.StreamEvents,
		c.HTTPRequests, c.HTTPDuration,
		c.NATSPublished, c.NATSPublishErr, c.NATSConnected,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the private registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) ObserveFeedSync(feed string, written int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.FeedSyncs.WithLabelValues(feed, outcome).Inc()
	if written > 0 {
		c.FeedEntities.WithLabelValues(feed).Add(float64(written))
	}
}

func (c *Collector) ObserveSyncAll(d time.Duration) {
	c.SyncDuration.Observe(d.Seconds())
	c.LastSyncUnix.SetToCurrentTime()
}

func (c *Collector) ObserveReconcile(d time.Duration, errKind string) {
	c.ReconcileTime.Observe(d.Seconds())
	if errKind != "" {
		c.ReconcileErrs.WithLabelValues(errKind).Inc()
	}
}

func (c *Collector) StreamOpened() { c.ActiveStreams.Inc() }
func (c *Collector) StreamClosed() { c.ActiveStreams.Dec() }

func (c *Collector) StreamEvent(event string) { c.StreamEvents.WithLabelValues(event).Inc() }

func (c *Collector) ObserveHTTP(route string, code int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErr.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
