// gadr manages architecture decision records stored in git notes.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arlowhite/gitadr/internal/blob"
	"github.com/arlowhite/gitadr/internal/config"
	"github.com/arlowhite/gitadr/internal/gitx"
	"github.com/arlowhite/gitadr/internal/notes"
	"github.com/arlowhite/gitadr/internal/store"
	"github.com/arlowhite/gitadr/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "gadr",
	Short: "Architecture decision records in git notes",
	Long: `gadr keeps architecture decision records (ADRs) inside the
repository itself, in a git notes namespace separate from the tracked
file tree. Records travel with clones, sync against remotes with
conflict reconciliation, and can carry content-addressed attachments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// app bundles everything a command needs against one repository.
type app struct {
	repo    *gitx.Repo
	cfg     config.Config
	records *notes.Git
	blobNS  *notes.Git
	blobs   *blob.Store
	store   *store.Store
	logger  *log.Logger
}

// openApp discovers the repository, resolves config, and wires the
// store stack. Each command calls this once.
func openApp(ctx context.Context) (*app, error) {
	repo, err := gitx.Open(".")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(ctx, repo, repo.Root())
	if err != nil {
		return nil, err
	}
	logger := newLogger(repo.Root())

	recordsNS := notes.NewGit(repo, cfg.Namespace)
	blobNS := notes.NewGit(repo, cfg.ArtifactsNamespace)
	blobs := blob.New(blobNS, cfg.ArtifactMaxSize, cfg.ArtifactWarnSize, logger)
	st := store.New(recordsNS, blobs, store.WithLogger(logger))

	return &app{
		repo:    repo,
		cfg:     cfg,
		records: recordsNS,
		blobNS:  blobNS,
		blobs:   blobs,
		store:   st,
		logger:  logger,
	}, nil
}

// engine builds a sync engine over the app's namespaces.
func (a *app) engine() *sync.Engine {
	return sync.NewEngine(a.records, a.blobNS, a.logger)
}

// autoPush pushes to origin after a local mutation when
// adr.sync.auto_push is enabled. Failures are logged, never fatal: the
// local change is already committed.
func (a *app) autoPush(ctx context.Context) {
	if !a.cfg.AutoPush {
		return
	}
	strategy, err := sync.ParseStrategy(a.cfg.MergeStrategy)
	if err != nil {
		a.logger.Printf("WARNING: auto-push skipped: %v", err)
		return
	}
	_, err = a.engine().Run(ctx, a.transport("origin"), sync.Options{
		Remote:    "origin",
		Direction: sync.DirectionPush,
		Strategy:  strategy,
	})
	if err != nil {
		a.logger.Printf("WARNING: auto-push failed: %v", err)
	}
}

// autoPull refreshes from origin before read commands when
// adr.sync.auto_pull is enabled.
func (a *app) autoPull(ctx context.Context) {
	if !a.cfg.AutoPull {
		return
	}
	strategy, err := sync.ParseStrategy(a.cfg.MergeStrategy)
	if err != nil {
		a.logger.Printf("WARNING: auto-pull skipped: %v", err)
		return
	}
	_, err = a.engine().Run(ctx, a.transport("origin"), sync.Options{
		Remote:    "origin",
		Direction: sync.DirectionPull,
		Strategy:  strategy,
	})
	if err != nil {
		a.logger.Printf("WARNING: auto-pull failed: %v", err)
	}
}

// transport builds the git transport for a named remote.
func (a *app) transport(remote string) *notes.Remote {
	return notes.NewRemote(a.repo, remote, a.records, a.blobNS)
}

// newLogger writes to stderr and a rotating file under .git/gadr/.
func newLogger(root string) *log.Logger {
	sink := io.Writer(os.Stderr)
	logPath := filepath.Join(root, ".git", "gadr", "gadr.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err == nil {
		sink = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    5, // megabytes
			MaxBackups: 2,
		})
	}
	return log.New(sink, "gadr: ", log.LstdFlags)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	rootCmd.AddCommand(
		initCmd,
		newCmd,
		editCmd,
		linkCmd,
		rmCmd,
		supersedeCmd,
		attachCmd,
		artifactsCmd,
		artifactGetCmd,
		artifactRmCmd,
		listCmd,
		showCmd,
		searchCmd,
		statsCmd,
		syncCmd,
		wikiCmd,
		configCmd,
		gcCmd,
		aiCmd,
	)
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}
