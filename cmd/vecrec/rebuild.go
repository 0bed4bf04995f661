package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRebuildCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild both indices from the feature store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openDB(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Rebuild(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d items\n", db.Stats().Count)
			return nil
		},
	}
}
