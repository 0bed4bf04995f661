package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecrec"
)

type rootFlags struct {
	config   string
	dir      string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "vecrec",
		Short: "vecrec - nearest-neighbour recommendations from feature vectors",
		Long: `vecrec keeps feature vectors in an append-only store and answers
"more like this" queries from an exact k-d tree and an approximate HNSW graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&flags.dir, "dir", "", "artifact directory (overrides the config)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides the config)")

	cmd.AddCommand(
		newIngestCmd(&flags),
		newRecommendCmd(&flags),
		newStatsCmd(&flags),
		newRebuildCmd(&flags),
	)

	return cmd
}

// openDB loads the config, applies flag overrides and opens the DB.
func openDB(ctx context.Context, flags *rootFlags) (*vecrec.DB, Config, error) {
	cfg, err := LoadConfig(flags.config)
	if err != nil {
		return nil, cfg, err
	}
	if flags.dir != "" {
		cfg.Dir = flags.dir
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}

	opts, err := cfg.Options(ctx)
	if err != nil {
		return nil, cfg, err
	}

	db, err := vecrec.Open(ctx, opts...)
	return db, cfg, err
}
