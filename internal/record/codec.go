package record

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// The canonical encoding is YAML frontmatter followed by the opaque body:
//
//	---
//	id: 20250115-use-postgresql
//	title: Use PostgreSQL
//	date: "2025-01-15"
//	status: proposed
//	revision: 1
//	updated_at: "2025-01-15T09:30:00Z"
//	---
//	<body bytes, verbatim>
//
// Serialization is byte-stable for identical field values: struct fields
// emit in declaration order and yaml.v3 sorts the inline map, so the sync
// engine can detect divergence by comparing bytes and the content store
// can hash them meaningfully.

const frontmatterDelim = "---\n"

const (
	dateLayout = "2006-01-02"
)

type attachmentDoc struct {
	Name        string `yaml:"name"`
	ContentHash string `yaml:"content_hash"`
	Size        int64  `yaml:"size"`
	MimeType    string `yaml:"mime_type,omitempty"`
	AltText     string `yaml:"alt_text,omitempty"`
}

// frontmatterDoc is the serialized shape of a record's metadata. Extra
// captures keys written by newer versions; they re-emit unchanged.
type frontmatterDoc struct {
	ID           string          `yaml:"id"`
	Title        string          `yaml:"title"`
	Date         string          `yaml:"date"`
	Status       string          `yaml:"status"`
	Tags         []string        `yaml:"tags,omitempty"`
	Links        []string        `yaml:"linked_commits,omitempty"`
	Supersedes   string          `yaml:"supersedes,omitempty"`
	SupersededBy string          `yaml:"superseded_by,omitempty"`
	Revision     int             `yaml:"revision"`
	UpdatedAt    string          `yaml:"updated_at"`
	Attachments  []attachmentDoc `yaml:"attachments,omitempty"`
	Extra        map[string]any  `yaml:",inline"`
}

// Serialize encodes a record in the canonical note format.
func Serialize(r Record) ([]byte, error) {
	doc := frontmatterDoc{
		ID:           r.ID,
		Title:        r.Title,
		Date:         r.Date.UTC().Format(dateLayout),
		Status:       string(r.Status),
		Tags:         r.Tags,
		Links:        r.Links,
		Supersedes:   r.Supersedes,
		SupersededBy: r.SupersededBy,
		Revision:     r.Revision,
		UpdatedAt:    r.UpdatedAt.UTC().Format(time.RFC3339),
		Extra:        r.Extra,
	}
	for _, a := range r.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDoc(a))
	}

	meta, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", r.ID, err)
	}

	var b strings.Builder
	b.Grow(len(frontmatterDelim)*2 + len(meta) + len(r.Body))
	b.WriteString(frontmatterDelim)
	b.Write(meta)
	b.WriteString(frontmatterDelim)
	b.WriteString(r.Body)
	return []byte(b.String()), nil
}

// Deserialize parses the canonical note format back into a Record.
func Deserialize(data []byte) (Record, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterDelim) {
		return Record{}, fmt.Errorf("record note missing frontmatter delimiter")
	}
	rest := text[len(frontmatterDelim):]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return Record{}, fmt.Errorf("record note missing closing frontmatter delimiter")
	}
	meta := rest[:end+1]
	body := rest[end+1+len(frontmatterDelim):]

	var doc frontmatterDoc
	if err := yaml.Unmarshal([]byte(meta), &doc); err != nil {
		return Record{}, fmt.Errorf("decoding record frontmatter: %w", err)
	}
	if doc.ID == "" {
		return Record{}, fmt.Errorf("record note has no id")
	}

	status, ok := ParseStatus(doc.Status)
	if !ok {
		return Record{}, fmt.Errorf("record %s: unknown status %q", doc.ID, doc.Status)
	}

	date, err := time.ParseInLocation(dateLayout, doc.Date, time.UTC)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: parsing date: %w", doc.ID, err)
	}
	updated, err := time.Parse(time.RFC3339, doc.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: parsing updated_at: %w", doc.ID, err)
	}

	r := Record{
		ID:           doc.ID,
		Title:        doc.Title,
		Date:         date,
		Status:       status,
		Tags:         normalizeSet(doc.Tags),
		Links:        normalizeSet(doc.Links),
		Supersedes:   doc.Supersedes,
		SupersededBy: doc.SupersededBy,
		Revision:     doc.Revision,
		UpdatedAt:    updated.UTC(),
		Body:         body,
	}
	for _, a := range doc.Attachments {
		r.Attachments = append(r.Attachments, Attachment(a))
	}
	if len(doc.Extra) > 0 {
		r.Extra = doc.Extra
	}
	return r, nil
}
