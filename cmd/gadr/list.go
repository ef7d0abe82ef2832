package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/arlowhite/gitadr/internal/index"
	"github.com/arlowhite/gitadr/internal/record"
	"github.com/arlowhite/gitadr/internal/search"
)

var (
	listStatus  string
	listTag     string
	listCommit  string
	listSince   string
	listUntil   string
	listReverse bool
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List decision records",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		a.autoPull(ctx)
		records, err := a.store.Records(ctx)
		if err != nil {
			fatal(err)
		}
		ix := index.Build(records)

		f := index.Filter{
			Tag:     listTag,
			Reverse: listReverse,
			Limit:   listLimit,
		}
		if listStatus != "" {
			status, ok := record.ParseStatus(listStatus)
			if !ok {
				fatal(fmt.Errorf("unknown status %q (one of %v)", listStatus, record.Statuses))
			}
			f.Status = status
		}
		if listCommit != "" {
			full, ok := a.repo.ResolveRef(ctx, listCommit)
			if !ok {
				fatal(fmt.Errorf("unknown commit %q", listCommit))
			}
			f.Commit = full
		}
		if f.Since, err = parseWhen(listSince); err != nil {
			fatal(err)
		}
		if f.Until, err = parseWhen(listUntil); err != nil {
			fatal(err)
		}

		matches := ix.List(f)
		if len(matches) == 0 {
			fmt.Println(renderDim("no records"))
			return
		}
		for _, r := range matches {
			line := fmt.Sprintf("%s  %-10s  %s", renderAccent(r.ID), renderStatus(r.Status), r.Title)
			if len(r.Tags) > 0 {
				line += "  " + renderDim("["+strings.Join(r.Tags, ", ")+"]")
			}
			fmt.Println(line)
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one record in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		a.autoPull(ctx)
		r, err := a.store.Get(ctx, args[0])
		if err != nil {
			fatal(err)
		}
		records, err := a.store.Records(ctx)
		if err != nil {
			fatal(err)
		}
		ix := index.Build(records)

		fmt.Printf("%s %s\n", renderTitle(r.Title), renderDim("("+r.ID+")"))
		fmt.Printf("status:   %s\n", renderStatus(r.Status))
		fmt.Printf("date:     %s\n", r.Date.Format("2006-01-02"))
		fmt.Printf("revision: %d (updated %s)\n", r.Revision, r.UpdatedAt.Format(time.RFC3339))
		if len(r.Tags) > 0 {
			fmt.Printf("tags:     %s\n", strings.Join(r.Tags, ", "))
		}
		if len(r.Links) > 0 {
			fmt.Printf("commits:  %s\n", strings.Join(r.Links, ", "))
		}
		if chain := ix.Chain(r.ID); len(chain) > 1 {
			fmt.Printf("chain:    %s\n", strings.Join(chain, " -> "))
		}
		for _, att := range r.Attachments {
			fmt.Printf("artifact: %s (%s, %d bytes)\n", att.Name, att.MimeType, att.Size)
		}
		if r.Body != "" {
			fmt.Printf("\n%s", r.Body)
		}
	},
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across records",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		a.autoPull(ctx)
		records, err := a.store.Records(ctx)
		if err != nil {
			fatal(err)
		}
		ix, err := search.New()
		if err != nil {
			fatal(err)
		}
		defer ix.Close()
		if err := ix.Rebuild(ctx, records); err != nil {
			fatal(err)
		}
		hits, err := ix.Search(ctx, args[0], searchLimit)
		if err != nil {
			fatal(err)
		}
		if len(hits) == 0 {
			fmt.Println(renderDim("no matches"))
			return
		}
		for _, h := range hits {
			fmt.Printf("%s  %s\n", renderAccent(h.ID), h.Title)
			if h.Snippet != "" {
				fmt.Printf("  %s\n", renderDim(h.Snippet))
			}
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the record set",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		a.autoPull(ctx)
		records, err := a.store.Records(ctx)
		if err != nil {
			fatal(err)
		}
		ix := index.Build(records)
		s := ix.Stats()

		fmt.Printf("%s %d record(s)\n", renderTitle("total:"), s.Total)
		for _, status := range record.Statuses {
			if n := s.ByStatus[status]; n > 0 {
				fmt.Printf("  %-11s %d\n", renderStatus(status), n)
			}
		}
		fmt.Printf("linked to commits: %d\n", s.WithLinks)
		fmt.Printf("superseded:        %d\n", s.Superseded)
		fmt.Printf("attachments:       %d\n", s.Attachments)

		tags := ix.Tags()
		if len(tags) > 0 {
			names := make([]string, 0, len(tags))
			for t := range tags {
				names = append(names, t)
			}
			sort.Slice(names, func(i, j int) bool {
				if tags[names[i]] != tags[names[j]] {
					return tags[names[i]] > tags[names[j]]
				}
				return names[i] < names[j]
			})
			fmt.Println(renderTitle("tags:"))
			for _, t := range names {
				fmt.Printf("  %-20s %d\n", t, tags[t])
			}
		}
	},
}

// parseWhen accepts a plain date or natural language ("two weeks ago").
func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	res, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, err
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("cannot parse date %q", s)
	}
	return res.Time, nil
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listTag, "tag", "", "filter by tag")
	listCmd.Flags().StringVar(&listCommit, "commit", "", "filter by linked commit")
	listCmd.Flags().StringVar(&listSince, "since", "", "records dated on or after (date or natural language)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "records dated on or before (date or natural language)")
	listCmd.Flags().BoolVar(&listReverse, "reverse", false, "newest first")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum records to print")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum hits to print")
}
