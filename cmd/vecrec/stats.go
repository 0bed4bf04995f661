package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store and index statistics as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openDB(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer db.Close()

			s := db.Stats()
			layers := make([]map[string]any, len(s.Approximate.Layers))
			for i, l := range s.Approximate.Layers {
				layers[i] = map[string]any{
					"level":      l.Level,
					"nodes":      l.Nodes,
					"mean_deg":   fmt.Sprintf("%.2f", l.MeanDeg),
					"stddev_deg": fmt.Sprintf("%.2f", l.StdDevDeg),
					"max_deg":    l.MaxDeg,
				}
			}

			out, err := yaml.Marshal(map[string]any{
				"count":     s.Count,
				"dimension": s.Dimension,
				"exact": map[string]any{
					"state":     s.Exact.State.String(),
					"depth":     s.Exact.Depth,
					"leaves":    s.Exact.Leaves,
					"leaf_size": s.Exact.LeafSize,
				},
				"approximate": map[string]any{
					"state":     s.Approximate.State.String(),
					"count":     s.Approximate.Count,
					"capacity":  s.Approximate.Capacity,
					"max_level": s.Approximate.MaxLevel,
					"layers":    layers,
				},
				"resources": map[string]any{
					"queries_in_flight": s.Resources.QueriesInFlight,
					"io_bytes":          s.Resources.IOBytes,
				},
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
