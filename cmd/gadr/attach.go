package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	attachName string
	attachAlt  string
)

var attachCmd = &cobra.Command{
	Use:   "attach <id> <file>",
	Short: "Attach a file to a record",
	Long: `Store a file in the content-addressed artifact store and reference
it from the record. Identical content is stored once no matter how
many records attach it.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		id, path := args[0], args[1]

		data, err := os.ReadFile(path)
		if err != nil {
			fatal(err)
		}
		name := attachName
		if name == "" {
			name = filepath.Base(path)
		}
		cur, err := a.store.Get(ctx, id)
		if err != nil {
			fatal(err)
		}
		next, err := a.store.Attach(ctx, id, cur.Revision, name, data, attachAlt)
		if err != nil {
			fatal(err)
		}
		att := next.Attachments[len(next.Attachments)-1]
		fmt.Printf("%s attached %s (%s, %d bytes)\n", renderPass("✓"), renderAccent(name), att.MimeType, att.Size)
		a.autoPush(ctx)
	},
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <id>",
	Short: "List a record's attachments",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		r, err := a.store.Get(ctx, args[0])
		if err != nil {
			fatal(err)
		}
		if len(r.Attachments) == 0 {
			fmt.Println(renderDim("no attachments"))
			return
		}
		for _, att := range r.Attachments {
			fmt.Printf("%s  %s  %d bytes  %s\n",
				renderDim(att.ContentHash[:12]), renderAccent(att.Name), att.Size, att.MimeType)
			if att.AltText != "" {
				fmt.Printf("  %s\n", renderDim(att.AltText))
			}
		}
	},
}

var artifactOut string

var artifactGetCmd = &cobra.Command{
	Use:   "artifact-get <id> <name>",
	Short: "Retrieve an attachment",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		data, att, err := a.store.Artifact(ctx, args[0], args[1])
		if err != nil {
			fatal(err)
		}
		out := artifactOut
		if out == "" {
			out = att.Name
		}
		if out == "-" {
			if _, err := os.Stdout.Write(data); err != nil {
				fatal(err)
			}
			return
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			fatal(err)
		}
		fmt.Printf("%s wrote %s (%d bytes)\n", renderPass("✓"), out, len(data))
	},
}

var artifactRmCmd = &cobra.Command{
	Use:   "artifact-rm <id> <name>",
	Short: "Remove an attachment reference",
	Long: `Drop the named attachment from the record. The stored bytes remain
until gc finds them unreferenced.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		cur, err := a.store.Get(ctx, args[0])
		if err != nil {
			fatal(err)
		}
		if _, err := a.store.RemoveAttachment(ctx, args[0], cur.Revision, args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("%s removed %s\n", renderPass("✓"), args[1])
		a.autoPush(ctx)
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim unreferenced artifact blobs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		removed, err := a.store.GC(ctx)
		if err != nil {
			fatal(err)
		}
		if len(removed) == 0 {
			fmt.Println(renderDim("nothing to reclaim"))
			return
		}
		for _, hash := range removed {
			fmt.Printf("%s %s\n", renderDim("removed"), hash)
		}
		fmt.Printf("%s reclaimed %d blob(s)\n", renderPass("✓"), len(removed))
	},
}

func init() {
	attachCmd.Flags().StringVar(&attachName, "name", "", "attachment name (default file basename)")
	attachCmd.Flags().StringVar(&attachAlt, "alt", "", "alt text describing the attachment")
	artifactGetCmd.Flags().StringVarP(&artifactOut, "output", "o", "", "output path ('-' for stdout, default attachment name)")
}
