package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/record"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func baseRecord() record.Record {
	return record.Record{
		ID:        "20240110-use-postgres",
		Title:     "Use Postgres",
		Date:      ts("2024-01-10T00:00:00Z"),
		Status:    record.StatusAccepted,
		Revision:  2,
		UpdatedAt: ts("2024-01-10T09:00:00Z"),
		Body:      "base body\n",
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"ours": StrategyOurs, "THEIRS": StrategyTheirs, "union": StrategyUnion, "": StrategyUnion,
	} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseStrategy("newest"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestMergeOursTheirs(t *testing.T) {
	local := baseRecord()
	local.Revision = 3
	local.Body = "local body\n"
	remote := baseRecord()
	remote.Revision = 5
	remote.Body = "remote body\n"

	got, err := Merge(StrategyOurs, local, remote)
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != "local body\n" || got.Revision != 6 {
		t.Errorf("ours: body=%q revision=%d", got.Body, got.Revision)
	}

	got, err = Merge(StrategyTheirs, local, remote)
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != "remote body\n" || got.Revision != 6 {
		t.Errorf("theirs: body=%q revision=%d", got.Body, got.Revision)
	}
}

func TestMergeUnionSets(t *testing.T) {
	local := baseRecord()
	local.Revision = 3
	local.Tags = []string{"db"}
	local.Links = []string{"c1"}
	remote := baseRecord()
	remote.Revision = 2
	remote.Tags = []string{"infra"}
	remote.Links = []string{"c2"}

	got, err := Merge(StrategyUnion, local, remote)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"db", "infra"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c1", "c2"}, got.Links); diff != "" {
		t.Errorf("links mismatch:\n%s", diff)
	}
	if got.Revision != 4 {
		t.Errorf("revision = %d, want max+1 = 4", got.Revision)
	}
	// Body from the higher-revision side.
	if got.Body != local.Body {
		t.Errorf("body = %q", got.Body)
	}
}

func TestMergeUnionSymmetric(t *testing.T) {
	a := baseRecord()
	a.Revision = 3
	a.Tags = []string{"db"}
	a.Body = "a body\n"
	b := baseRecord()
	b.Revision = 3
	b.Tags = []string{"infra"}
	b.Body = "b body\n"
	b.UpdatedAt = a.UpdatedAt // force the byte-comparison tie-break

	ab, err := Merge(StrategyUnion, a, b)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := Merge(StrategyUnion, b, a)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Errorf("union not symmetric (-ab +ba):\n%s", diff)
	}
}

func TestMergeUnionTieBreakUpdatedAt(t *testing.T) {
	older := baseRecord()
	older.Revision = 3
	older.Body = "older body\n"
	older.UpdatedAt = ts("2024-01-10T09:00:00Z")
	newer := baseRecord()
	newer.Revision = 3
	newer.Body = "newer body\n"
	newer.UpdatedAt = ts("2024-01-10T10:00:00Z")

	got, err := Merge(StrategyUnion, older, newer)
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != "newer body\n" {
		t.Errorf("body = %q, want the later-updated side", got.Body)
	}
}

func TestMergeUnionAttachments(t *testing.T) {
	local := baseRecord()
	local.Revision = 3
	local.Attachments = []record.Attachment{
		{Name: "diagram.png", ContentHash: "aaa", Size: 1},
	}
	remote := baseRecord()
	remote.Revision = 2
	remote.Attachments = []record.Attachment{
		{Name: "diagram.png", ContentHash: "bbb", Size: 2}, // name clash, different blob
		{Name: "notes.txt", ContentHash: "aaa", Size: 1},   // same blob, skipped
		{Name: "export.pdf", ContentHash: "ccc", Size: 3},
	}

	got, err := Merge(StrategyUnion, local, remote)
	if err != nil {
		t.Fatal(err)
	}
	want := []record.Attachment{
		{Name: "diagram.png", ContentHash: "aaa", Size: 1},
		{Name: "diagram-2.png", ContentHash: "bbb", Size: 2},
		{Name: "export.pdf", ContentHash: "ccc", Size: 3},
	}
	if diff := cmp.Diff(want, got.Attachments); diff != "" {
		t.Errorf("attachments mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeUnionSupersedePointers(t *testing.T) {
	local := baseRecord()
	local.Revision = 3
	remote := baseRecord()
	remote.Revision = 2
	remote.SupersededBy = "20240201-newer-take"

	got, err := Merge(StrategyUnion, local, remote)
	if err != nil {
		t.Fatal(err)
	}
	if got.SupersededBy != "20240201-newer-take" {
		t.Errorf("SupersededBy = %q, want pointer kept from losing side", got.SupersededBy)
	}
}

func TestMergeMismatchedIDs(t *testing.T) {
	a := baseRecord()
	b := baseRecord()
	b.ID = "20240111-other"
	if _, err := Merge(StrategyUnion, a, b); !errors.Is(err, apperr.ErrDivergedUnresolved) {
		t.Errorf("err = %v, want ErrDivergedUnresolved", err)
	}
}
