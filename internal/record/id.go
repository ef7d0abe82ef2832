package record

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/arlowhite/gitadr/internal/apperr"
)

// maxSlugLength caps the slug portion of an id. Longer slugs are cut at
// the last hyphen before the limit so words stay intact.
const maxSlugLength = 50

// IDPattern matches a well-formed record id: YYYYMMDD-slug[-N].
var IDPattern = regexp.MustCompile(`^\d{8}-[a-z0-9][a-z0-9-]*$`)

var (
	spaceRun    = regexp.MustCompile(`[\s_]+`)
	nonSlugRune = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRun   = regexp.MustCompile(`-+`)
)

// Slugify converts a title to a lowercase hyphenated slug. Returns ""
// when nothing slug-safe remains.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = spaceRun.ReplaceAllString(slug, "-")
	slug = nonSlugRune.ReplaceAllString(slug, "")
	slug = hyphenRun.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		cut := slug[:maxSlugLength]
		if i := strings.LastIndexByte(cut, '-'); i > 0 {
			cut = cut[:i]
		}
		slug = cut
	}
	return slug
}

// NewID derives a record id from the creation date and title. Collisions
// against existing ids are resolved with a numeric suffix (-2, -3, ...).
func NewID(title string, now time.Time, exists func(string) bool) (string, error) {
	slug := Slugify(title)
	if slug == "" {
		return "", fmt.Errorf("%q: %w", title, apperr.ErrInvalidTitle)
	}
	base := now.UTC().Format("20060102") + "-" + slug
	if exists == nil || !exists(base) {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !exists(candidate) {
			return candidate, nil
		}
	}
}

// New constructs a record with revision 1. The id is derived from now and
// the title; exists reports whether a candidate id is already taken.
func New(title string, status Status, tags, links []string, body string, now time.Time, exists func(string) bool) (Record, error) {
	id, err := NewID(title, now, exists)
	if err != nil {
		return Record{}, err
	}
	if status == "" {
		status = StatusProposed
	}
	day := now.UTC()
	return Record{
		ID:        id,
		Title:     title,
		Date:      time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		Status:    status,
		Tags:      normalizeSet(tags),
		Links:     normalizeSet(links),
		Revision:  1,
		UpdatedAt: now.UTC().Truncate(time.Second),
		Body:      body,
	}, nil
}
