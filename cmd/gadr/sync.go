package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/sync"
)

var (
	syncRemote    string
	syncDirection string
	syncStrategy  string
	syncDryRun    bool
	syncForce     bool
	syncWorkers   int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize records with a remote",
	Long: `Fetch the remote's record namespace, reconcile divergence, and push.
Diverged records are merged with the configured strategy (union by
default). --dry-run reports the plan without changing either side.
--force overwrites the target side outright and requires an explicit
--direction.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}

		direction, err := sync.ParseDirection(syncDirection)
		if err != nil {
			fatal(err)
		}
		strategyName := syncStrategy
		if strategyName == "" {
			strategyName = a.cfg.MergeStrategy
		}
		strategy, err := sync.ParseStrategy(strategyName)
		if err != nil {
			fatal(err)
		}

		res, err := a.engine().Run(ctx, a.transport(syncRemote), sync.Options{
			Remote:    syncRemote,
			Direction: direction,
			Strategy:  strategy,
			DryRun:    syncDryRun,
			Force:     syncForce,
			Workers:   syncWorkers,
		})

		var failures *apperr.SyncFailures
		if err != nil && !errors.As(err, &failures) {
			fatal(err)
		}

		if syncDryRun {
			fmt.Println(renderTitle("plan (dry run):"))
			for _, c := range res.Plan {
				fmt.Printf("  %-6s %s\n", renderActionLabel(c.Action), c.ID)
			}
		}
		fmt.Printf("%s pushed %d, pulled %d, merged %d, skipped %d\n",
			renderPass("✓"), res.Pushed, res.Pulled, res.Merged, res.Skipped)

		if failures != nil {
			fmt.Printf("%s %d record(s) failed to reconcile:\n", renderFail("!"), len(failures.Errors))
			for _, re := range failures.Errors {
				fmt.Printf("  %s: %v\n", re.ID, re.Err)
			}
		}
	},
}

func renderActionLabel(a sync.Action) string {
	switch a {
	case sync.ActionPush:
		return renderAccent(string(a))
	case sync.ActionPull:
		return renderPass(string(a))
	case sync.ActionMerge:
		return renderTitle(string(a))
	case sync.ActionDelete:
		return renderFail(string(a))
	}
	return renderDim(string(a))
}

func init() {
	syncCmd.Flags().StringVar(&syncRemote, "remote", "origin", "remote to sync against")
	syncCmd.Flags().StringVar(&syncDirection, "direction", "both", "push, pull, or both")
	syncCmd.Flags().StringVar(&syncStrategy, "strategy", "", "merge strategy: union, ours, theirs (default from config)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report the plan without changing anything")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "overwrite the target side (destructive)")
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 4, "concurrent blob transfers")
}
