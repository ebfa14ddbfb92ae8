// Package usage maintains the day-bucketed run counters backing the
// operational dashboards: per-agent and per-task-type counts keyed by
// UTC calendar day, mirrored into lifetime totals. Day keys are only
// ever incremented, never rewritten.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DayKeyFormat is the UTC calendar-day key used throughout the ledger.
const DayKeyFormat = "2006-01-02"

// Counters accumulates outcomes for one day key or for a lifetime total.
type Counters struct {
	Runs       int   `json:"runs"`
	Failures   int   `json:"failures"`
	DurationMS int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

func (c *Counters) add(o Counters) {
	c.Runs += o.Runs
	c.Failures += o.Failures
	c.DurationMS += o.DurationMS
	c.Items += o.Items
}

// Entry holds the day-keyed counters and the lifetime mirror for one
// agent or task type.
type Entry struct {
	Days     map[string]*Counters `json:"days"`
	Lifetime Counters             `json:"lifetime"`
}

// Document is the whole usage ledger as stored on disk.
type Document struct {
	Agents    map[string]*Entry `json:"agents"`
	TaskTypes map[string]*Entry `json:"task_types"`
}

// Ledger reads and additively updates the shared usage document.
type Ledger struct {
	path string
}

// NewLedger returns a ledger backed by the JSON document at path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Record is one observation to fold into the ledger.
type Record struct {
	// Agent is the runner identity ("worker", "scheduler"); empty skips
	// the agents section.
	Agent string
	// TaskType is the dispatched task's type; empty skips the
	// task_types section. Run-level entries set only Agent.
	TaskType string
	Failed   bool
	Duration time.Duration
	Items    int
}

// Add folds one observation into the day bucket for now's UTC date and
// into the lifetime totals, then rewrites the document. Whole-document
// read-modify-write, same concurrency posture as the state files.
func (l *Ledger) Add(now time.Time, rec Record) error {
	doc, err := l.load()
	if err != nil {
		return err
	}

	delta := Counters{Runs: 1, DurationMS: rec.Duration.Milliseconds(), Items: rec.Items}
	if rec.Failed {
		delta.Failures = 1
	}
	day := now.UTC().Format(DayKeyFormat)

	if rec.Agent != "" {
		bump(entryFor(&doc.Agents, rec.Agent), day, delta)
	}
	if rec.TaskType != "" {
		bump(entryFor(&doc.TaskTypes, rec.TaskType), day, delta)
	}
	return l.save(doc)
}

// Summary is the read-side view: lifetime totals plus a rolling window
// computed by summing the last n day keys. The rolling view is never
// stored.
type Summary struct {
	Lifetime Counters `json:"lifetime"`
	Rolling  Counters `json:"rolling"`
	// Today is the current UTC day's bucket, zero when absent.
	Today Counters `json:"today"`
}

// AgentSummary returns the summary for one agent over the last 7 days.
func (l *Ledger) AgentSummary(agent string, now time.Time) (Summary, error) {
	doc, err := l.load()
	if err != nil {
		return Summary{}, err
	}
	return summarize(doc.Agents[agent], now, 7), nil
}

// TaskTypeSummaries returns per-task-type summaries over the last 7
// days, keyed by type, in no particular order.
func (l *Ledger) TaskTypeSummaries(now time.Time) (map[string]Summary, error) {
	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Summary, len(doc.TaskTypes))
	for name, entry := range doc.TaskTypes {
		out[name] = summarize(entry, now, 7)
	}
	return out, nil
}

// Snapshot returns the raw document for the status panel.
func (l *Ledger) Snapshot() (*Document, error) {
	return l.load()
}

func (l *Ledger) load() (*Document, error) {
	doc := &Document{
		Agents:    map[string]*Entry{},
		TaskTypes: map[string]*Entry{},
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read usage ledger: %w", err)
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("failed to decode usage ledger: %w", err)
	}
	if doc.Agents == nil {
		doc.Agents = map[string]*Entry{}
	}
	if doc.TaskTypes == nil {
		doc.TaskTypes = map[string]*Entry{}
	}
	return doc, nil
}

func (l *Ledger) save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create usage ledger directory: %w", err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode usage ledger: %w", err)
	}
	if err := os.WriteFile(l.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write usage ledger: %w", err)
	}
	return nil
}

func entryFor(section *map[string]*Entry, key string) *Entry {
	if *section == nil {
		*section = map[string]*Entry{}
	}
	e, ok := (*section)[key]
	if !ok {
		e = &Entry{Days: map[string]*Counters{}}
		(*section)[key] = e
	}
	if e.Days == nil {
		e.Days = map[string]*Counters{}
	}
	return e
}

func bump(e *Entry, day string, delta Counters) {
	c, ok := e.Days[day]
	if !ok {
		c = &Counters{}
		e.Days[day] = c
	}
	c.add(delta)
	e.Lifetime.add(delta)
}

func summarize(e *Entry, now time.Time, days int) Summary {
	if e == nil {
		return Summary{}
	}
	s := Summary{Lifetime: e.Lifetime}
	today := now.UTC().Format(DayKeyFormat)

	for i := 0; i < days; i++ {
		k := now.UTC().AddDate(0, 0, -i).Format(DayKeyFormat)
		if c, ok := e.Days[k]; ok {
			s.Rolling.add(*c)
			if k == today {
				s.Today = *c
			}
		}
	}
	return s
}
