package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arlowhite/gitadr/internal/ai"
	"github.com/arlowhite/gitadr/internal/index"
	"github.com/arlowhite/gitadr/internal/record"
)

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Model-assisted helpers",
}

var aiApply bool

var aiSuggestTagsCmd = &cobra.Command{
	Use:   "suggest-tags <id>",
	Short: "Suggest tags for a record",
	Long: `Ask the configured model for tags fitting the record, offering the
repository's existing tag vocabulary for reuse. With --apply the
suggestions are added to the record.`,
	Args: cobra.ExactArgs(1),
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
		records, err := a.store.Records(ctx)
		if err != nil {
			fatal(err)
		}
		vocab := index.Build(records).Tags()
		existing := make([]string, 0, len(vocab))
		for tag := range vocab {
			existing = append(existing, tag)
		}

		svc := ai.NewService(aiProvider(a))
		tags, err := svc.SuggestTags(ctx, r, existing)
		if err != nil {
			fatal(err)
		}
		if len(tags) == 0 {
			fmt.Println(renderDim("no suggestions"))
			return
		}
		fmt.Printf("%s %s\n", renderTitle("suggested:"), strings.Join(tags, ", "))

		if aiApply {
			next, err := a.store.Mutate(ctx, r.ID, record.Patch{AddTags: tags}, r.Revision)
			if err != nil {
				fatal(err)
			}
			fmt.Printf("%s applied, %s now at revision %d\n", renderPass("✓"), r.ID, next.Revision)
		}
	},
}

var aiSummarizeCmd = &cobra.Command{
	Use:   "summarize <id>",
	Short: "Summarize a record in a short paragraph",
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
		svc := ai.NewService(aiProvider(a))
		summary, err := svc.Summarize(ctx, r)
		if err != nil {
			fatal(err)
		}
		fmt.Println(summary)
	},
}

func aiProvider(a *app) ai.Provider {
	// Only the Anthropic provider exists; adr.ai.provider is validated
	// here so a typo fails loudly instead of silently defaulting.
	if a.cfg.AIProvider != "anthropic" {
		fatal(fmt.Errorf("unknown ai provider %q", a.cfg.AIProvider))
	}
	return ai.NewAnthropic("", a.cfg.AIModel)
}

func init() {
	aiSuggestTagsCmd.Flags().BoolVar(&aiApply, "apply", false, "add the suggested tags to the record")
	aiCmd.AddCommand(aiSuggestTagsCmd, aiSummarizeCmd)
}
