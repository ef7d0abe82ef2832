package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arlowhite/gitadr/internal/record"
	"github.com/arlowhite/gitadr/internal/store"
)

var (
	newStatus string
	newTags   []string
	newLinks  []string
	newBody   string
)

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a decision record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}

		status, err := parseStatusFlag(newStatus)
		if err != nil {
			fatal(err)
		}
		body := newBody
		if body == "" {
			body = bodyTemplate(a.cfg.Template, args[0])
		}
		r, err := a.store.Create(ctx, args[0], store.CreateOptions{
			Status: status,
			Tags:   newTags,
			Links:  newLinks,
			Body:   body,
		})
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s created %s\n", renderPass("✓"), renderAccent(r.ID))
		a.autoPush(ctx)
	},
}

var (
	editStatus      string
	editTitle       string
	editAddTags     []string
	editRemoveTags  []string
	editBodyFlag    string
	editOpenEditor  bool
	editExpectedRev int
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Modify a decision record",
	Long: `Apply changes to a record. Field flags patch metadata; --editor
opens the body in $EDITOR. The record's revision guards against
concurrent edits: pass --revision with the value you last read, or
omit it to edit whatever is current.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		id := args[0]

		cur, err := a.store.Get(ctx, id)
		if err != nil {
			fatal(err)
		}
		expected := editExpectedRev
		if expected == 0 {
			expected = cur.Revision
		}

		var p record.Patch
		if editTitle != "" {
			p.Title = &editTitle
		}
		if editStatus != "" {
			status, err := parseStatusFlag(editStatus)
			if err != nil {
				fatal(err)
			}
			p.Status = &status
		}
		p.AddTags = editAddTags
		p.RemoveTags = editRemoveTags
		if editBodyFlag != "" {
			p.Body = &editBodyFlag
		}
		if editOpenEditor {
			body, err := editInEditor(cur.Body)
			if err != nil {
				fatal(err)
			}
			p.Body = &body
		}

		next, err := a.store.Mutate(ctx, id, p, expected)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s %s now at revision %d\n", renderPass("✓"), renderAccent(id), next.Revision)
		a.autoPush(ctx)
	},
}

var (
	linkRemove bool
)

var linkCmd = &cobra.Command{
	Use:   "link <id> <commit>...",
	Short: "Link a record to commits it affects",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		id := args[0]

		// Resolve abbreviated hashes to full ids so links compare
		// equal across clones.
		commits := make([]string, 0, len(args)-1)
		for _, c := range args[1:] {
			full, ok := a.repo.ResolveRef(ctx, c)
			if !ok {
				fatal(fmt.Errorf("unknown commit %q", c))
			}
			commits = append(commits, full)
		}

		cur, err := a.store.Get(ctx, id)
		if err != nil {
			fatal(err)
		}
		var p record.Patch
		if linkRemove {
			p.RemoveLinks = commits
		} else {
			p.AddLinks = commits
		}
		if _, err := a.store.Mutate(ctx, id, p, cur.Revision); err != nil {
			fatal(err)
		}
		verb := "linked"
		if linkRemove {
			verb = "unlinked"
		}
		fmt.Printf("%s %s %d commit(s)\n", renderPass("✓"), verb, len(commits))
		a.autoPush(ctx)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a decision record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		if err := a.store.Remove(ctx, args[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("%s removed %s\n", renderPass("✓"), args[0])
		a.autoPush(ctx)
	},
}

var (
	supersedeStatus string
	supersedeTags   []string
	supersedeBody   string
)

var supersedeCmd = &cobra.Command{
	Use:   "supersede <old-id> <new-title>",
	Short: "Replace a record with a new decision",
	Long: `Create a replacement record and mark the old one superseded. The
two records point at each other and both changes land atomically.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		status, err := parseStatusFlag(supersedeStatus)
		if err != nil {
			fatal(err)
		}
		old, repl, err := a.store.Supersede(ctx, args[0], args[1], store.CreateOptions{
			Status: status,
			Tags:   supersedeTags,
			Body:   supersedeBody,
		})
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s %s superseded by %s\n", renderPass("✓"), old.ID, renderAccent(repl.ID))
		a.autoPush(ctx)
	},
}

func parseStatusFlag(s string) (record.Status, error) {
	if s == "" {
		return "", nil
	}
	status, ok := record.ParseStatus(s)
	if !ok {
		return "", fmt.Errorf("unknown status %q (one of %v)", s, record.Statuses)
	}
	return status, nil
}

// bodyTemplate returns the skeleton body for new records. Only the
// built-in templates exist; the config value is its name.
func bodyTemplate(name, title string) string {
	switch name {
	case "nygard":
		return fmt.Sprintf("# %s\n\n## Status\n\n## Context\n\n## Decision\n\n## Consequences\n", title)
	default:
		return fmt.Sprintf("# %s\n\n## Context\n\n## Decision\n\n## Consequences\n", title)
	}
}

// editInEditor opens the body in $EDITOR and returns the saved text.
func editInEditor(body string) (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	tmp, err := os.CreateTemp("", "gadr-*.md")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return "", err
	}
	tmp.Close()

	parts := strings.Fields(editor)
	parts = append(parts, path)
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %s: %w", filepath.Base(parts[0]), err)
	}
	edited, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(edited), nil
}

func init() {
	newCmd.Flags().StringVar(&newStatus, "status", "", "initial status (default proposed)")
	newCmd.Flags().StringSliceVar(&newTags, "tag", nil, "tag to apply (repeatable)")
	newCmd.Flags().StringSliceVar(&newLinks, "link", nil, "commit to link (repeatable)")
	newCmd.Flags().StringVar(&newBody, "body", "", "record body (default from template)")

	editCmd.Flags().StringVar(&editTitle, "title", "", "replace the title")
	editCmd.Flags().StringVar(&editStatus, "status", "", "set the status")
	editCmd.Flags().StringSliceVar(&editAddTags, "tag", nil, "tag to add (repeatable)")
	editCmd.Flags().StringSliceVar(&editRemoveTags, "untag", nil, "tag to remove (repeatable)")
	editCmd.Flags().StringVar(&editBodyFlag, "body", "", "replace the body")
	editCmd.Flags().BoolVar(&editOpenEditor, "editor", false, "edit the body in $EDITOR")
	editCmd.Flags().IntVar(&editExpectedRev, "revision", 0, "expected revision (concurrency guard)")

	linkCmd.Flags().BoolVar(&linkRemove, "remove", false, "remove the links instead")

	supersedeCmd.Flags().StringVar(&supersedeStatus, "status", "", "status of the replacement (default proposed)")
	supersedeCmd.Flags().StringSliceVar(&supersedeTags, "tag", nil, "tag for the replacement (repeatable)")
	supersedeCmd.Flags().StringVar(&supersedeBody, "body", "", "body of the replacement")
}
