package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecrec"
)

func newRecommendCmd(flags *rootFlags) *cobra.Command {
	var (
		k     int
		byKey bool
		ef    int
	)

	cmd := &cobra.Command{
		Use:   "recommend <id|key>",
		Short: "Print exact and approximate recommendations for a stored item",
		Example: `  vecrec recommend 42
  vecrec recommend --key track-0042 -k 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, cfg, err := openDB(ctx, flags)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := resolveID(db, args[0], byKey)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("k") {
				k = cfg.K
			}

			recs, err := db.Recommend(ctx, id, k, vecrec.RecommendEF(ef))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printList(out, "exact (euclidean)", recs.Exact, recs.ExactErr)
			fmt.Fprintln(out)
			printList(out, "approximate (cosine)", recs.Approximate, recs.ApproximateErr)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of recommendations")
	cmd.Flags().BoolVar(&byKey, "key", false, "treat the argument as an item key")
	cmd.Flags().IntVar(&ef, "ef", 0, "approximate beam width (0 = configured default)")
	return cmd
}

func resolveID(db *vecrec.DB, arg string, byKey bool) (uint32, error) {
	if byKey {
		id, ok := db.Features().Lookup(arg)
		if !ok {
			return 0, fmt.Errorf("unknown key %q", arg)
		}
		return id, nil
	}
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", arg, err)
	}
	return uint32(id), nil
}

func printList(w io.Writer, title string, entries []vecrec.Entry, err error) {
	fmt.Fprintf(w, "%s:\n", title)
	if err != nil {
		fmt.Fprintf(w, "  error: %v\n", err)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tKEY\tDISTANCE\tSCORE\tTITLE")
	for _, e := range entries {
		fmt.Fprintf(tw, "  %d\t%s\t%.4f\t%s\t%s\n", e.ID, e.Key, e.Distance, e.ScoreString(), e.Metadata["title"])
	}
	_ = tw.Flush()
}
