package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecrec/featurestore"
	"github.com/hupe1980/vecrec/resource"
)

// record is one line of an ingest file.
type record struct {
	Key      string                `json:"key"`
	Vector   []float32             `json:"vector"`
	Metadata featurestore.Metadata `json:"metadata,omitempty"`
}

func newIngestCmd(flags *rootFlags) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl|->",
		Short: "Append items from a JSON lines file",
		Long: `Append items from a JSON lines file, one {"key", "vector", "metadata"}
object per line. Items whose key is already stored or whose vector is
missing are skipped.

Examples:
  vecrec ingest features.jsonl
  extract-features ./music | vecrec ingest -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, cfg, err := openDB(ctx, flags)
			if err != nil {
				return err
			}
			defer db.Close()

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rc := resource.NewController(resource.Config{IOLimitBytesPerSec: cfg.Resources.IOLimitBytesPerSec})
			in = resource.NewRateLimitedReader(ctx, in, rc)

			var added, skipped int
			flush := func(items []featurestore.Item) error {
				res, err := db.Ingest(ctx, items)
				added += res.Added
				skipped += res.Skipped
				return err
			}

			batch := make([]featurestore.Item, 0, batchSize)
			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
			line := 0
			for scanner.Scan() {
				line++
				if len(scanner.Bytes()) == 0 {
					continue
				}
				var rec record
				if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				batch = append(batch, featurestore.Item(rec))
				if len(batch) == batchSize {
					if err := flush(batch); err != nil {
						return err
					}
					batch = batch[:0]
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			if len(batch) > 0 {
				if err := flush(batch); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "added %d, skipped %d, total %d\n", added, skipped, db.Stats().Count)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch", 1000, "items per ingest batch")
	return cmd
}
