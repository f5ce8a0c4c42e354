package main

import (
	"github.com/spf13/cobra"
	"github.com/twofivefivedev/nz-transit-app/internal/common/config"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "transitd",
		Short: "Real-time departures for Metlink stops",
		Long: `transitd keeps a short-lived cache of Metlink GTFS-realtime data and
merges it with the static timetable to serve live departure boards over
HTTP and server-sent events.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (defaults to $TRANSIT_CONFIG)")

	cmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newDeparturesCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewFromConfig(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	})
	return cfg, log, nil
}
