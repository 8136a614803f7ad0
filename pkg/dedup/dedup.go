// Package dedup collapses raw, scored matches into Findings, first at file
// scope and then again at scan scope, keyed by a stable fingerprint over
// (pattern-id, normalized value, normalized file path).
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fingerprint is the 256-bit deduplication key, rendered as a hex string.
type Fingerprint string

// Location is one occurrence of a finding.
type Location struct {
	File   string
	Line   int
	Column int
}

// ScoredMatch is the scorer's output for a single raw match, ready to enter
// deduplication.
type ScoredMatch struct {
	PatternID     string
	Value         string
	File          string
	Location      Location
	ByteOffset    int
	Severity      int // ordinal; higher is more severe, mirrors pattern.Severity
	Confidence    float64
	ContextBefore string
	ContextAfter  string
}

// Finding is a deduplicated, located match, possibly aggregating several
// occurrences of the same fingerprint.
type Finding struct {
	Fingerprint        Fingerprint
	PatternID          string
	Value              string
	Severity           int
	Confidence         float64
	PrimaryLocation    Location
	PrimaryFile        string
	AggregatedLocations []Location
	OccurrenceCount    int
	ContextBefore      string
	ContextAfter       string
}

// ComputeFingerprint hashes (patternID, normalized value, normalized file)
// into a stable 256-bit key. Normalization lowercases and forward-slashes
// the file path; the matched value is used verbatim per spec §4.4.
func ComputeFingerprint(patternID, value, file string) Fingerprint {
	normFile := strings.ToLower(strings.ReplaceAll(path.Clean(file), `\`, `/`))
	h := sha256.New()
	h.Write([]byte(patternID))
	h.Write([]byte{0})
	h.Write([]byte(value))
	h.Write([]byte{0})
	h.Write([]byte(normFile))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// FileScope collapses matches within a single file: identical fingerprints
// merge into one Finding, keeping the earliest byte-offset as primary and
// aggregating the rest, taking max confidence and most severe severity.
func FileScope(matches []ScoredMatch) []Finding {
	type bucket struct {
		finding       Finding
		earliestByte  int
	}
	buckets := make(map[Fingerprint]*bucket)
	var order []Fingerprint

	for _, m := range matches {
		fp := ComputeFingerprint(m.PatternID, m.Value, m.File)
		b, ok := buckets[fp]
		if !ok {
			b = &bucket{
				earliestByte: m.ByteOffset,
				finding: Finding{
					Fingerprint:     fp,
					PatternID:       m.PatternID,
					Value:           m.Value,
					Severity:        m.Severity,
					Confidence:      m.Confidence,
					PrimaryLocation: m.Location,
					PrimaryFile:     m.File,
					ContextBefore:   m.ContextBefore,
					ContextAfter:    m.ContextAfter,
				},
			}
			buckets[fp] = b
			order = append(order, fp)
		}
		b.finding.AggregatedLocations = append(b.finding.AggregatedLocations, m.Location)
		if m.Confidence > b.finding.Confidence {
			b.finding.Confidence = m.Confidence
		}
		if m.Severity > b.finding.Severity {
			b.finding.Severity = m.Severity
		}
		if m.ByteOffset < b.earliestByte {
			b.earliestByte = m.ByteOffset
			b.finding.PrimaryLocation = m.Location
		}
	}

	out := make([]Finding, 0, len(order))
	for _, fp := range order {
		b := buckets[fp]
		b.finding.OccurrenceCount = len(b.finding.AggregatedLocations)
		out = append(out, b.finding)
	}
	return out
}

// ScanScope merges per-file Findings across the whole scan: findings with
// the same fingerprint in different files collapse into one, keeping one
// representative location per file in the aggregated list.
func ScanScope(perFile [][]Finding) []Finding {
	merged := make(map[Fingerprint]*Finding)
	var order []Fingerprint

	for _, findings := range perFile {
		for _, f := range findings {
			existing, ok := merged[f.Fingerprint]
			if !ok {
				cp := f
				merged[f.Fingerprint] = &cp
				order = append(order, f.Fingerprint)
				continue
			}
			existing.AggregatedLocations = append(existing.AggregatedLocations, f.AggregatedLocations...)
			existing.OccurrenceCount += f.OccurrenceCount
			if f.Confidence > existing.Confidence {
				existing.Confidence = f.Confidence
			}
			if f.Severity > existing.Severity {
				existing.Severity = f.Severity
			}
		}
	}

	out := make([]Finding, 0, len(order))
	for _, fp := range order {
		out = append(out, *merged[fp])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PrimaryFile < out[j].PrimaryFile ||
			(out[i].PrimaryFile == out[j].PrimaryFile && out[i].PrimaryLocation.Line < out[j].PrimaryLocation.Line)
	})
	return out
}

// Stats summarizes one deduplication pass for the finished scan report.
type Stats struct {
	BeforeCount        int
	AfterCount         int
	DuplicatesRemoved  int
	Duration           time.Duration
	MemoryPeakBytes    int64
	Fallback           bool
	FallbackReason     string
}

// Budget bounds a deduplication attempt: exceeding any of these triggers
// the non-deduplicated fallback path (spec §4.4 "Fallback").
type Budget struct {
	TimeBudget     time.Duration
	MemoryBudget   int64
	MaxFindings    int
}

// DefaultBudget matches the spec's defaults.
var DefaultBudget = Budget{
	TimeBudget:   5 * time.Second,
	MemoryBudget: 256 * 1024 * 1024,
	MaxFindings:  10_000,
}

// breaker is a three-strikes circuit breaker: three consecutive
// deduplication failures open it for resetTimeout, after which the next
// attempt runs half-open; a success closes it again.
type breaker struct {
	mu            sync.Mutex
	consecutive   int
	openUntil     time.Time
	resetTimeout  time.Duration
}

// newBreaker returns a breaker with the spec's default 1s reset timeout.
func newBreaker() *breaker {
	return &breaker{resetTimeout: time.Second}
}

func (b *breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !now.Before(b.openUntil)
}

func (b *breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if b.consecutive >= 3 {
		b.openUntil = now.Add(b.resetTimeout)
	}
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.openUntil = time.Time{}
}

// Engine runs ScanScope deduplication under a budget, with circuit-breaker
// protected fallback to the non-deduplicated set.
type Engine struct {
	budget  Budget
	breaker *breaker
}

// NewEngine builds an Engine with the given budget.
func NewEngine(budget Budget) *Engine {
	return &Engine{budget: budget, breaker: newBreaker()}
}

// Run deduplicates perFile findings at scan scope, respecting the time and
// count budgets. now is the wall-clock time the caller observed at call
// start, passed explicitly so the engine is deterministic under test.
func (e *Engine) Run(perFile [][]Finding, now time.Time, elapsed func() time.Duration) ([]Finding, Stats) {
	before := 0
	for _, f := range perFile {
		before += len(f)
	}

	stats := Stats{BeforeCount: before}

	if !e.breaker.Allow(now) {
		stats.Fallback = true
		stats.FallbackReason = "circuit_open"
		stats.AfterCount = before
		return flatten(perFile), stats
	}

	if before > e.budget.MaxFindings {
		e.breaker.RecordFailure(now)
		stats.Fallback = true
		stats.FallbackReason = "performance_limit"
		stats.AfterCount = before
		return flatten(perFile), stats
	}

	merged := ScanScope(perFile)
	stats.Duration = elapsed()

	if stats.Duration > e.budget.TimeBudget {
		e.breaker.RecordFailure(now)
		stats.Fallback = true
		stats.FallbackReason = "performance_limit"
		stats.AfterCount = before
		return flatten(perFile), stats
	}

	e.breaker.RecordSuccess()
	stats.AfterCount = len(merged)
	stats.DuplicatesRemoved = before - len(merged)
	return merged, stats
}

func flatten(perFile [][]Finding) []Finding {
	var out []Finding
	for _, f := range perFile {
		out = append(out, f...)
	}
	return out
}
