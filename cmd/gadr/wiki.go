package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/record"
	"github.com/arlowhite/gitadr/internal/sync"
	"github.com/arlowhite/gitadr/internal/wiki"
)

var wikiCmd = &cobra.Command{
	Use:   "wiki",
	Short: "Mirror records to a project wiki",
}

var wikiRemote string

var wikiInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Detect and configure the wiki for this repository",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		url := a.repo.RemoteURL(ctx, wikiRemote)
		if url == "" {
			fatal(fmt.Errorf("remote %q has no URL", wikiRemote))
		}
		platform := wiki.DetectPlatform(url)
		if platform == wiki.PlatformUnknown {
			fatal(fmt.Errorf("cannot detect a wiki platform for %s", url))
		}
		wikiURL, err := wiki.WikiURL(url)
		if err != nil {
			fatal(err)
		}
		if err := a.repo.ConfigSet(ctx, "adr.wiki.platform", string(platform)); err != nil {
			fatal(err)
		}
		if err := a.repo.ConfigSet(ctx, "adr.wiki.url", wikiURL); err != nil {
			fatal(err)
		}
		fmt.Printf("%s %s wiki at %s\n", renderPass("✓"), platform, renderAccent(wikiURL))
	},
}

var (
	wikiDirection string
	wikiStrategy  string
)

var wikiSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize records with the wiki",
	Long: `Render records as wiki pages and push them; pull brings wiki-side
edits back into the record namespace, merging conflicts with the same
strategies as remote sync. Hand-written wiki pages are left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}

		url, ok := a.repo.ConfigGet(ctx, "adr.wiki.url")
		if !ok {
			fatal(fmt.Errorf("wiki not configured; run 'gadr wiki init' first"))
		}
		direction, err := sync.ParseDirection(wikiDirection)
		if err != nil {
			fatal(err)
		}
		strategyName := wikiStrategy
		if strategyName == "" {
			strategyName = a.cfg.MergeStrategy
		}
		strategy, err := sync.ParseStrategy(strategyName)
		if err != nil {
			fatal(err)
		}

		records, err := a.store.Records(ctx)
		if err != nil {
			fatal(err)
		}
		bridge := wiki.NewBridge(wiki.NewGitClient(url), strategy, a.logger)
		res, err := bridge.Sync(ctx, records, direction)

		var failures *apperr.SyncFailures
		if err != nil && !errors.As(err, &failures) {
			fatal(err)
		}

		// The bridge never writes records itself; persist what the pull
		// half changed.
		if len(res.Updated) > 0 {
			batch := make(map[string][]byte, len(res.Updated))
			for _, r := range res.Updated {
				data, err := record.Serialize(r)
				if err != nil {
					fatal(err)
				}
				batch[r.ID] = data
			}
			if err := a.records.PutBatch(ctx, batch); err != nil {
				fatal(err)
			}
		}

		fmt.Printf("%s pushed %d, pulled %d, merged %d\n",
			renderPass("✓"), res.Pushed, res.Pulled, res.Merged)
		if failures != nil {
			fmt.Printf("%s %d page(s) failed:\n", renderFail("!"), len(failures.Errors))
			for _, re := range failures.Errors {
				fmt.Printf("  %s: %v\n", re.ID, re.Err)
			}
		}
	},
}

func init() {
	wikiInitCmd.Flags().StringVar(&wikiRemote, "remote", "origin", "remote to derive the wiki from")
	wikiSyncCmd.Flags().StringVar(&wikiDirection, "direction", "both", "push, pull, or both")
	wikiSyncCmd.Flags().StringVar(&wikiStrategy, "strategy", "", "merge strategy for wiki conflicts (default from config)")
	wikiCmd.AddCommand(wikiInitCmd, wikiSyncCmd)
}
