// Package recall implements the Recall Log: an append-only,
// per-user-filterable history of every message ever emitted or
// received, with text and date search. Grounded on
// llm_os/memory/recall_storage.py, generalized to support the
// date-range search that prototype lacked (spec.md §4.3).
package recall

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind mirrors memory.Kind without importing pkg/memory (pkg/memory
// composes Recall, not the other way around).
type Kind string

const (
	KindUser      Kind = "user"
	KindSystem    Kind = "system"
	KindTool      Kind = "tool"
	KindAssistant Kind = "assistant"
)

// Record is one recall-log entry.
type Record struct {
	Kind      Kind   `json:"kind"`
	UserID    int    `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // YYYY-MM-DD, stamped on insertion
}

// Log is the append-only, persisted recall store for one conversation.
type Log struct {
	mu      sync.Mutex
	path    string
	records []Record
}

// New loads recall_storage.json from dir if present, else starts empty.
func New(dir string) (*Log, error) {
	l := &Log{path: filepath.Join(dir, "recall_storage.json")}
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read recall log: %w", err)
	}
	if err := json.Unmarshal(data, &l.records); err != nil {
		return nil, fmt.Errorf("parse recall log: %w", err)
	}
	return l, nil
}

func (l *Log) persist() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recall log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	return os.WriteFile(l.path, data, 0o644)
}

// Insert stamps r's timestamp to today's date, appends it, and
// persists. The caller supplies r.Timestamp pre-computed when replaying
// history (e.g. during summarization); Insert only stamps it when
// empty, so the invariant "every FIFO append is also a Recall append"
// (spec.md §3) doesn't disturb a timestamp the FIFO side already set.
func (l *Log) Insert(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.Timestamp == "" {
		r.Timestamp = time.Now().UTC().Format("2006-01-02")
	} else {
		r.Timestamp = normalizeDate(r.Timestamp)
	}
	l.records = append(l.records, r)
	return l.persist()
}

// normalizeDate truncates a timestamp to its date portion; the recall
// store's date parsing is date-only even though timestamps may carry a
// time component (spec.md §9, ambiguity b) — both insertion and search
// normalize to YYYY-MM-DD.
func normalizeDate(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

func (l *Log) matches(r *Record, forUserID int) bool {
	if r.Kind == KindSystem || r.Kind == KindTool {
		return false
	}
	return r.UserID == forUserID
}

// TextSearch filters to non-system/tool records for forUserID whose
// content case-insensitively contains query, returning a page plus the
// total match count.
func (l *Log) TextSearch(query string, forUserID, count, offset int) ([]Record, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lowerQuery := strings.ToLower(query)
	var matched []Record
	for i := range l.records {
		r := &l.records[i]
		if !l.matches(r, forUserID) {
			continue
		}
		if strings.Contains(strings.ToLower(r.Content), lowerQuery) {
			matched = append(matched, *r)
		}
	}
	return page(matched, offset, count), len(matched)
}

// DateSearch filters to non-system/tool records for forUserID whose
// date falls within [start, end] inclusive, both formatted YYYY-MM-DD.
func (l *Log) DateSearch(start, end string, forUserID, count, offset int) ([]Record, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start, end = normalizeDate(start), normalizeDate(end)
	var matched []Record
	for i := range l.records {
		r := &l.records[i]
		if !l.matches(r, forUserID) {
			continue
		}
		d := normalizeDate(r.Timestamp)
		if d >= start && d <= end {
			matched = append(matched, *r)
		}
	}
	return page(matched, offset, count), len(matched)
}

func page(records []Record, offset, count int) []Record {
	if offset >= len(records) {
		return nil
	}
	end := offset + count
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// All returns every record, oldest first (used for reload verification
// and tests only; normal access goes through TextSearch/DateSearch).
func (l *Log) All() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Count returns the number of records logged so far, for the prompt's
// "you have N prior messages" line.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
