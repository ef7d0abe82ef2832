// Package ai offers optional model-assisted helpers: tag suggestions
// and record summaries. Everything goes through the narrow Provider
// contract so the rest of the tool never depends on a vendor SDK.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/arlowhite/gitadr/internal/record"
)

// Provider completes a prompt into text.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Service implements the ai subcommands on top of a Provider.
type Service struct {
	provider Provider
}

// NewService wraps a provider.
func NewService(p Provider) *Service {
	return &Service{provider: p}
}

const tagSystem = `You label architecture decision records with short topical tags.
Respond with a comma-separated list of at most five lowercase tags and nothing else.
Prefer tags from the existing vocabulary when they fit.`

// SuggestTags asks the provider for tags fitting the record. existing is
// the repository's current tag vocabulary, offered for reuse.
func (s *Service) SuggestTags(ctx context.Context, r record.Record, existing []string) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", r.Title)
	if len(existing) > 0 {
		fmt.Fprintf(&b, "Existing vocabulary: %s\n", strings.Join(existing, ", "))
	}
	fmt.Fprintf(&b, "\n%s", r.Body)

	out, err := s.provider.Complete(ctx, tagSystem, b.String())
	if err != nil {
		return nil, fmt.Errorf("suggesting tags for %s: %w", r.ID, err)
	}
	return parseTagList(out), nil
}

const summarySystem = `You summarize architecture decision records.
Respond with a single plain-text paragraph of at most three sentences and nothing else.`

// Summarize asks the provider for a short prose summary of the record.
func (s *Service) Summarize(ctx context.Context, r record.Record) (string, error) {
	prompt := fmt.Sprintf("Title: %s\nStatus: %s\n\n%s", r.Title, r.Status, r.Body)
	out, err := s.provider.Complete(ctx, summarySystem, prompt)
	if err != nil {
		return "", fmt.Errorf("summarizing %s: %w", r.ID, err)
	}
	return strings.TrimSpace(out), nil
}

// parseTagList tolerates comma- or newline-separated responses, list
// bullets, and stray casing.
func parseTagList(out string) []string {
	fields := strings.FieldsFunc(out, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	var tags []string
	seen := map[string]struct{}{}
	for _, f := range fields {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(f), "-* `\"'."))
		tag = strings.ReplaceAll(tag, " ", "-")
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
