package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/twofivefivedev/nz-transit-app/internal/api"
	gtfs_realtime "github.com/twofivefivedev/nz-transit-app/internal/gtfs-realtime"
	"github.com/twofivefivedev/nz-transit-app/internal/messaging"
	"github.com/twofivefivedev/nz-transit-app/internal/stream"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and SSE server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := newComponents(cfg, log)
			defer c.close()

			if err := c.openDatabase(ctx); err != nil {
				return err
			}
			if err := c.openCache(ctx); err != nil {
				return err
			}
			c.connectNATS()
			c.buildSyncer()
			if err := c.buildEngine(); err != nil {
				return err
			}

			var streamOpts []stream.Option
			if c.metrics != nil {
				streamOpts = append(streamOpts, stream.WithMetrics(c.metrics))
			}
			if c.nats != nil {
				streamOpts = append(streamOpts, stream.WithChangePublisher(c.nats))

				trigger := messaging.NewSyncTrigger(c.syncer, log.With("component", "sync-trigger"))
				if err := trigger.Subscribe(ctx, c.nats.Conn(), c.nats.Subjects().Sync()); err != nil {
					log.Warn("Sync trigger not subscribed", "error", err)
				} else {
					defer trigger.Unsubscribe()
				}
			}
			streams := stream.NewService(c.engine, stream.Config{
				PollInterval:   cfg.Stream.PollInterval,
				MaxDuration:    cfg.Stream.MaxDuration,
				ReconnectDelay: cfg.Stream.ReconnectDelay,
				Limit:          cfg.Stream.DepartureLimit,
				WindowSeconds:  cfg.Stream.WindowSeconds,
			}, log.With("component", "stream"), streamOpts...)

			if cfg.Realtime.SyncInterval > 0 {
				manager := gtfs_realtime.NewManager(c.syncer, cfg.Realtime.SyncInterval, log.With("component", "manager"))
				if err := manager.Start(ctx); err != nil {
					return err
				}
				defer manager.Stop()
			} else {
				log.Info("In-process sync disabled, waiting for external triggers")
			}

			deps := api.Deps{
				Departures:  c.engine,
				Stream:      streams,
				Stops:       c.store,
				HotState:    c.cache,
				Syncer:      c.syncer,
				SyncStatus:  c.syncer,
				HealthCheck: c.healthCheck,
			}
			if c.metrics != nil {
				deps.Metrics = c.metrics
				deps.MetricsHandler = c.metrics.Handler()
			}
			server := api.NewServer(cfg.Server, deps, log.With("component", "api"))

			httpServer := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      server.Handler(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
				BaseContext:  func(_ net.Listener) context.Context { return ctx },
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("HTTP server listening", "addr", cfg.Server.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				log.Info("Shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown failed", "error", err)
				return err
			}

			log.Info("transitd stopped")
			return nil
		},
	}
}
