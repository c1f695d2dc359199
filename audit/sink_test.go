package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sean-she/photoflow-storage/storage"
)

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	ts := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{
			Timestamp:   ts,
			FileKey:     "albums/a1/photos/p1/original/x.jpg",
			Action:      "delete",
			RuleID:      "purge-old-originals",
			ExecutionID: "run-1",
			File:        storage.FileMetadata{Key: "albums/a1/photos/p1/original/x.jpg", Size: 42},
		},
		{Timestamp: ts.Add(time.Minute), FileKey: "albums/a2/photos/p2/preview/y.jpg", Action: "keep"},
	}
	for _, e := range entries {
		if err := sink.Write(e); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("sink file has %d lines, want 2", len(lines))
	}

	var got Entry
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal(first line) error = %v", err)
	}
	if got.FileKey != entries[0].FileKey {
		t.Errorf("FileKey = %q, want %q", got.FileKey, entries[0].FileKey)
	}
	if got.Action != "delete" || got.RuleID != "purge-old-originals" {
		t.Errorf("Action/RuleID = %q/%q, want delete/purge-old-originals", got.Action, got.RuleID)
	}
	if got.File.Size != 42 {
		t.Errorf("File.Size = %d, want 42", got.File.Size)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
}

func TestFileSinkAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(path)
		if err != nil {
			t.Fatalf("NewFileSink() error = %v", err)
		}
		if err := sink.Write(Entry{Timestamp: time.Now(), FileKey: "k"}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if err := sink.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("line count = %d, want 2 (append, not truncate)", got)
	}
}

func TestLogWithFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	defer sink.Close()

	l := NewLog(10)
	l.SetSink(sink)
	if err := l.Append(Entry{FileKey: "albums/a1/x.jpg", Action: "archive"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"albums/a1/x.jpg"`) {
		t.Errorf("sink file %q does not contain the appended key", string(data))
	}
}
