// Package feedback implements the shared feedback database spec §5 and §9
// describe: an append-only, single-writer JSONL file, read fully at init,
// with readers seeing a frozen snapshot taken at scan start rather than a
// view that can change mid-scan.
package feedback

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Record is one feedback entry as persisted to the store.
type Record struct {
	PatternID       string    `json:"pattern_id"`
	Value           string    `json:"value"`
	IsFalsePositive bool      `json:"is_false_positive"`
	Timestamp       time.Time `json:"timestamp"`
}

func key(patternID, value string) string { return patternID + "\x00" + value }

// Store is the process-wide feedback database: an in-memory map kept in
// sync with an append-only JSONL file on disk. Record twice with the same
// (pattern-id, value) is idempotent — the later timestamp simply wins, both
// in the in-memory map and on replay from disk.
type Store struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	records map[string]Record
}

// Open loads every record from path (creating it if it does not exist) and
// returns a Store ready to accept new feedback and serve lookups.
func Open(path string) (*Store, error) {
	records := make(map[string]Record)

	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var r Record
			if err := json.Unmarshal(line, &r); err != nil {
				continue
			}
			records[key(r.PatternID, r.Value)] = r
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &Store{path: path, file: file, records: records}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Record appends a new feedback entry and updates the in-memory view.
// Existing scans that already took a Snapshot are unaffected — only scans
// starting after this call observe the new entry, per spec §4.1
// record-feedback's "affects only future scans" rule.
func (s *Store) Record(patternID, value string, isFalsePositive bool, now time.Time) error {
	r := Record{PatternID: patternID, Value: value, IsFalsePositive: isFalsePositive, Timestamp: now}
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return err
	}
	s.records[key(patternID, value)] = r
	return nil
}

// Snapshot freezes the current feedback view for one scan's lifetime. The
// returned Snapshot implements confidence.FeedbackLookup without importing
// pkg/confidence, so pkg/feedback stays a leaf dependency.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]bool, len(s.records))
	for k, r := range s.records {
		cp[k] = r.IsFalsePositive
	}
	return Snapshot{byKey: cp}
}

// Snapshot is a frozen, read-only view of the feedback database as of the
// moment it was taken.
type Snapshot struct {
	byKey map[string]bool
}

// Lookup implements confidence.FeedbackLookup.
func (s Snapshot) Lookup(patternID, value string) (isFalsePositive bool, known bool) {
	fp, ok := s.byKey[key(patternID, value)]
	return fp, ok
}
