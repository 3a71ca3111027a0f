package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestHistoryAppendAndRead(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(filepath.Join(t.TempDir(), "logs", "history.jsonl"))

	entries, err := h.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries(missing) error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("len(Entries()) = %d, want 0", len(entries))
	}

	first, err := h.Append(ctx, HistoryEntry{
		Tool:    "eq-sim-ji",
		Package: "urban-integration",
		Argv:    []string{"java", "-jar", "/opt/tools/EQSimilariyPrinter.jar", "/data/idx.tsv", "JI", "A", "B"},
		Components: []Component{
			{Value: "java", IO: IOConst},
			{Value: "/data/idx.tsv", IO: IOFile, Input: true},
		},
		Output: "0.42",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := uuid.Parse(first.ID); err != nil {
		t.Fatalf("ID %q is not a UUID: %v", first.ID, err)
	}
	if first.StartedAt.IsZero() {
		t.Fatal("StartedAt not defaulted")
	}

	if _, err := h.Append(ctx, HistoryEntry{Tool: "eq-sim-ov", Argv: []string{"echo", "a b"}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries, err = h.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != first.ID || entries[0].Output != "0.42" {
		t.Fatalf("Entries() = %+v", entries)
	}
	if !entries[0].Components[1].Input {
		t.Fatal("component input flag lost")
	}

	lines, err := h.Lines(ctx)
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	want := []string{
		"java -jar /opt/tools/EQSimilariyPrinter.jar /data/idx.tsv JI A B",
		"echo 'a b'",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Lines()[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestHistoryRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	if err := os.WriteFile(path, []byte("{\"tool\":\"a\"}\nnot json\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := NewHistory(path).Entries(context.Background()); err == nil {
		t.Fatal("Entries() error = nil, want decode error")
	}
}

func TestHistoryEmptyPath(t *testing.T) {
	if _, err := NewHistory("").Append(context.Background(), HistoryEntry{}); err == nil {
		t.Fatal("Append() error = nil")
	}
}
