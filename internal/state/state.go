// Package state persists small local JSON documents recording each
// runner identity's last poll, last outcome, and queue depth, plus a
// line-oriented append log. Documents are read, merged, and rewritten
// whole; concurrent writers degrade to last-writer-wins.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Doc is one state document: a flat string-keyed JSON object. Values
// are free-form (timestamps, counts, nested count maps).
type Doc map[string]any

// File persists the state document for one runner identity.
type File struct {
	path string
}

// NewFile returns the state file for the given identity (for example
// "scheduler" or "worker") under dir.
func NewFile(dir, identity string) *File {
	return &File{path: filepath.Join(dir, identity+".json")}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Load reads the current document. A missing or corrupt file reads as
// an empty document rather than an error, so a damaged state file can
// never block a run.
func (f *File) Load() Doc {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return Doc{}
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return Doc{}
	}
	return doc
}

// Update merges patch into the stored document and rewrites it whole,
// stamping updated_at. This is a read-modify-write with no cross-process
// locking; overlapping runs lose the earlier write.
func (f *File) Update(patch Doc) error {
	doc := f.Load()
	for k, v := range patch {
		doc[k] = v
	}
	doc["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	return f.save(doc)
}

func (f *File) save(doc Doc) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write state document: %w", err)
	}
	return nil
}

// AppendLog appends one timestamped line to the runner log under dir.
// Best effort: callers treat a logging failure as non-fatal.
func AppendLog(dir, message string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message)
	fh, err := os.OpenFile(filepath.Join(dir, "runner.log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open runner log: %w", err)
	}
	defer func() { _ = fh.Close() }()
	if _, err := fh.WriteString(line); err != nil {
		return fmt.Errorf("failed to append runner log: %w", err)
	}
	return nil
}

// Timestamp formats t the way state documents store times.
func Timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
