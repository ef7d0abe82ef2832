package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arlowhite/gitadr/internal/config"
)

var initNamespace string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare the repository for decision records",
	Long: `Configure the repository to carry decision records: sets the note
namespace, adds fetch refspecs so clones receive records from every
remote, and registers the namespace for note rewriting so records
survive commit amends and rebases.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}

		ns := a.cfg.Namespace
		if initNamespace != "" {
			ns = initNamespace
			if err := a.repo.ConfigSet(ctx, config.KeyNamespace, ns); err != nil {
				fatal(err)
			}
		}
		artifacts := a.cfg.ArtifactsNamespace

		if err := a.repo.ConfigAdd(ctx, "notes.rewriteRef", ns); err != nil {
			fatal(err)
		}
		if err := a.repo.ConfigSet(ctx, "adr.initialized", "true"); err != nil {
			fatal(err)
		}

		remotes, err := a.repo.Remotes(ctx)
		if err != nil {
			fatal(err)
		}
		for _, remote := range remotes {
			for _, ref := range []string{ns, artifacts} {
				spec := "+" + ref + ":" + ref
				if err := a.repo.ConfigAdd(ctx, "remote."+remote+".fetch", spec); err != nil {
					fatal(err)
				}
			}
		}

		fmt.Printf("%s initialized %s in %s\n", renderPass("✓"), renderAccent(ns), a.repo.Root())
		if len(remotes) > 0 {
			fmt.Printf("  fetch refspecs added for: %v\n", remotes)
		}
	},
}

func init() {
	initCmd.Flags().StringVar(&initNamespace, "namespace", "", "note namespace for records (default refs/notes/adr)")
}
