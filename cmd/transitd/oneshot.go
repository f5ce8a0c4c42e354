package main

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/twofivefivedev/nz-transit-app/internal/departures"
	"github.com/twofivefivedev/nz-transit-app/internal/stream"
)

var errPartialSync = errors.New("sync completed with errors")

func newSyncCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch all three realtime feeds once and write them to the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Cache.Backend == "memory" {
				log.Warn("Memory cache is discarded when the command exits, use the redis backend to share results")
			}

			c := newComponents(cfg, log)
			defer c.close()

			if err := c.openCache(cmd.Context()); err != nil {
				return err
			}
			c.connectNATS()
			c.buildSyncer()

			result := c.syncer.SyncAll(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return errPartialSync
			}
			return nil
		},
	}
}

func newDeparturesCmd(root *rootOptions) *cobra.Command {
	var limit, window int

	cmd := &cobra.Command{
		Use:   "departures <stopId>",
		Short: "Print the live departure board for a stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stopID := args[0]
			if err := departures.Validate(stopID, limit, window); err != nil {
				return err
			}

			cfg, log, err := root.load()
			if err != nil {
				return err
			}

			c := newComponents(cfg, log)
			defer c.close()

			if err := c.openDatabase(cmd.Context()); err != nil {
				return err
			}
			if err := c.openCache(cmd.Context()); err != nil {
				return err
			}
			if err := c.buildEngine(); err != nil {
				return err
			}

			deps, err := c.engine.GetDepartures(cmd.Context(), stopID, limit, window)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stream.NewResult(stopID, deps, time.Now().UnixMilli()))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", departures.DefaultLimit, "maximum number of departures")
	cmd.Flags().IntVar(&window, "window", departures.DefaultWindowSeconds, "look-ahead window in seconds")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
