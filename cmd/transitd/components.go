package main

import (
	"context"
	"fmt"

	"github.com/twofivefivedev/nz-transit-app/internal/common/config"
	"github.com/twofivefivedev/nz-transit-app/internal/common/db"
	"github.com/twofivefivedev/nz-transit-app/internal/common/discord"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/internal/common/metrics"
	"github.com/twofivefivedev/nz-transit-app/internal/departures"
	gtfs_realtime "github.com/twofivefivedev/nz-transit-app/internal/gtfs-realtime"
	"github.com/twofivefivedev/nz-transit-app/internal/gtfs-realtime/consumer"
	"github.com/twofivefivedev/nz-transit-app/internal/hotstate"
	"github.com/twofivefivedev/nz-transit-app/internal/messaging"
	"github.com/twofivefivedev/nz-transit-app/internal/schedule"
)

// components holds everything a command may need. Fields stay nil when the
// command did not ask for them; closers run in reverse order on close.
type components struct {
	cfg     *config.Config
	log     logger.Logger
	metrics *metrics.Collector

	database *db.DB
	store    *schedule.PostgresStore
	cache    *hotstate.Repository
	nats     *messaging.NATSPublisher
	syncer   *gtfs_realtime.Syncer
	engine   *departures.Engine

	closers []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func newComponents(cfg *config.Config, log logger.Logger) *components {
	c := &components{cfg: cfg, log: log}
	if cfg.Metrics.Enabled {
		c.metrics = metrics.NewCollector()
	}
	return c
}

func (c *components) openCache(ctx context.Context) error {
	var store hotstate.Store
	switch c.cfg.Cache.Backend {
	case "redis":
		rs, err := hotstate.NewRedisStore(c.cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return err
		}
		store = rs
	default:
		store = hotstate.NewMemoryStore(c.cfg.Cache.MemoryCapacity)
	}

	c.cache = hotstate.NewRepository(store)
	c.closers = append(c.closers, func() { store.Close() })
	c.log.Info("Hot-state cache ready", "backend", c.cfg.Cache.Backend)
	return nil
}

func (c *components) openDatabase(ctx context.Context) error {
	database, err := db.New(ctx, c.cfg.Database, c.log)
	if err != nil {
		return err
	}
	c.database = database
	c.store = schedule.NewPostgresStore(database, c.log)
	c.closers = append(c.closers, func() { database.Close() })
	return nil
}

// connectNATS is a no-op when no URL is configured. A failed connection is
// logged and the service carries on without fan-out.
func (c *components) connectNATS() {
	if c.cfg.Messaging.NATSURL == "" {
		return
	}

	var m messaging.PublisherMetrics
	if c.metrics != nil {
		m = c.metrics
	}
	nc, err := messaging.Connect(c.cfg.Messaging.NATSURL, c.cfg.Messaging.SubjectPrefix, c.log, m)
	if err != nil {
		c.log.Warn("NATS unavailable, continuing without fan-out", "error", err)
		return
	}
	c.nats = nc
	c.closers = append(c.closers, nc.Close)
}

// buildSyncer requires openCache to have run.
func (c *components) buildSyncer() {
	opts := []gtfs_realtime.Option{
		gtfs_realtime.WithNotifier(discord.NewClient(c.cfg.Notify.DiscordWebhookURL)),
	}
	if c.metrics != nil {
		opts = append(opts, gtfs_realtime.WithMetrics(c.metrics))
	}
	if c.nats != nil {
		opts = append(opts, gtfs_realtime.WithPublisher(c.nats))
	}

	fetcher := consumer.NewConsumer(c.cfg.Realtime, c.log.With("component", "consumer"))
	c.syncer = gtfs_realtime.NewSyncer(fetcher, c.cache, c.cfg.Realtime.SyncTimeout, c.log.With("component", "syncer"), opts...)
}

// buildEngine requires openCache and openDatabase to have run.
func (c *components) buildEngine() error {
	loc, err := c.cfg.Schedule.Location()
	if err != nil {
		return err
	}
	strategy, err := schedule.NewStrategy(c.cfg.Schedule.CalendarStrategy, c.store)
	if err != nil {
		return err
	}
	resolver := schedule.NewResolver(strategy, loc, c.log.With("component", "resolver"))

	var m departures.Metrics
	if c.metrics != nil {
		m = c.metrics
	}
	c.engine = departures.NewEngine(resolver, c.store, c.cache, c.log.With("component", "departures"), m)
	return nil
}

func (c *components) healthCheck(ctx context.Context) error {
	if c.database != nil {
		if err := c.database.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.cache != nil {
		if err := c.cache.Store().Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}
