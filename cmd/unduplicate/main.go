// Command unduplicate folds candidates whose texts normalize to the same
// string into the earliest one, re-pointing votes and pending pairs, and
// reports near-duplicates that need a human decision.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/pkg/logger"

	"github.com/spf13/cobra"
)

const defaultSimilarity = 0.85

var (
	snapshotPath string
	dryRun       bool
	similarity   float64
)

func init() {
	rootCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Store snapshot to rewrite (defaults to snapshot_path from config)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report merges without writing them")
	rootCmd.Flags().Float64Var(&similarity, "similarity", defaultSimilarity, "Report distinct options at or above this similarity; 0 disables")
}

var rootCmd = &cobra.Command{
	Use:   "unduplicate",
	Short: "Merge options that normalize to the same text",
	Long: `Merge options whose normalized text is identical.

The earliest option of each group is kept; selection counts are summed and
votes and pending pairs are re-pointed. Tournaments are left as recorded.

Stop the server first: a running server rewrites the snapshot on its next
flush and would discard the merge.

Examples:
  # See what would change
  unduplicate --snapshot=/var/lib/duel/store.yaml --dry-run

  # Merge and list look-alikes above 0.9
  unduplicate --similarity=0.9`,
	SilenceUsage: true,
	RunE:         runUnduplicate,
}

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUnduplicate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := snapshotPath
	if path == "" {
		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}
		path = cfg.SnapshotPath
	}
	if path == "" {
		return fmt.Errorf("no snapshot: pass --snapshot or set DUEL_SNAPSHOT_PATH")
	}
	if similarity < 0 || similarity > 1 {
		return fmt.Errorf("--similarity must be within [0,1], got %v", similarity)
	}

	store, err := repository.NewMemoryStore(ctx, repository.WithSnapshotPath(path))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	runErr := unduplicate(ctx, store, cmd.OutOrStdout(), dryRun, similarity)
	// Close writes the final snapshot; a dry run leaves the data untouched.
	if err := store.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("write %s: %w", path, err)
	}
	return runErr
}

// unduplicate merges exact duplicates in store, then lists near-duplicates
// whose similarity is at least threshold.
func unduplicate(ctx context.Context, store repository.Store, out io.Writer, dry bool, threshold float64) error {
	groups, err := store.MergeDuplicates(ctx, dry)
	if err != nil {
		return err
	}

	verb := "Merging"
	if dry {
		verb = "Would merge"
	}
	for _, g := range groups {
		for _, id := range g.DropIDs {
			fmt.Fprintf(out, "%s option %d into %d (%q)\n", verb, id, g.KeepID, g.Normalized)
		}
		if g.Renamed {
			if dry {
				fmt.Fprintf(out, "Would rename option %d to %q\n", g.KeepID, g.Normalized)
			} else {
				fmt.Fprintf(out, "Renaming option %d to %q\n", g.KeepID, g.Normalized)
			}
		}
	}
	if len(groups) == 0 {
		fmt.Fprintln(out, "No duplicates found")
	}

	if threshold <= 0 {
		return nil
	}
	pool, err := store.ListPool(ctx)
	if err != nil {
		return err
	}
	candidate.SortByCreation(pool)
	for i := range pool {
		for j := i + 1; j < len(pool); j++ {
			if candidate.Same(pool[i].Text, pool[j].Text) {
				continue
			}
			if score := candidate.Similarity(pool[i].Text, pool[j].Text); score >= threshold {
				fmt.Fprintf(out, "Similar: %d %q ~ %d %q (%.2f)\n", pool[i].ID, pool[i].Text, pool[j].ID, pool[j].Text, score)
			}
		}
	}
	return nil
}
