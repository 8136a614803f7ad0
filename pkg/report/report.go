// Package report shapes an orchestrator scan's findings into the external
// report contract from spec §6: a tree of
// {scan-id, target, status, started-at, ended-at, progress,
// deduplication-stats, categories: [{category, findings: [...]}],
// summary: {total-findings, counts-by-severity}}.
package report

import (
	"sort"
	"time"

	"github.com/quietridge/secscan/pkg/dedup"
	"github.com/quietridge/secscan/pkg/orchestrator"
	"github.com/quietridge/secscan/pkg/pattern"
)

// Context carries one location's file/line/column, JSON-shaped.
type Context struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Finding is one deduplicated, located finding in the external report
// shape.
type Finding struct {
	ID                  string            `json:"id"`
	PatternID           string            `json:"pattern-id"`
	Type                string            `json:"type"`
	Severity            string            `json:"severity"`
	Confidence          float64           `json:"confidence"`
	Value               string            `json:"value"`
	File                string            `json:"file"`
	Line                int               `json:"line"`
	Column              int               `json:"column"`
	Context             Context           `json:"context"`
	Location            string            `json:"location"`
	OccurrenceCount     int               `json:"occurrence-count"`
	AggregatedLocations []string          `json:"aggregated-locations"`
	Metadata            map[string]any    `json:"metadata,omitempty"`
}

// Category groups findings under one pattern category name.
type Category struct {
	Category string    `json:"category"`
	Findings []Finding `json:"findings"`
}

// DeduplicationStats mirrors dedup.Stats in the external, JSON-tagged shape.
type DeduplicationStats struct {
	Enabled           bool    `json:"deduplication-enabled"`
	BeforeCount       int     `json:"before-count"`
	AfterCount        int     `json:"after-count"`
	DuplicatesRemoved int     `json:"duplicates-removed"`
	DurationSeconds   float64 `json:"duration-seconds"`
	MemoryPeakBytes   int64   `json:"memory-peak-bytes"`
	Fallback          bool    `json:"fallback"`
	FallbackReason    string  `json:"fallback-reason,omitempty"`
}

// Summary is the report's top-level rollup.
type Summary struct {
	TotalFindings    int            `json:"total-findings"`
	CountsBySeverity map[string]int `json:"counts-by-severity"`
}

// Report is the full external report contract for one scan.
type Report struct {
	ScanID             string             `json:"scan-id"`
	Target             string             `json:"target"`
	Status             string             `json:"status"`
	Partial            bool               `json:"partial"`
	StartedAt          time.Time          `json:"started-at"`
	EndedAt            *time.Time         `json:"ended-at,omitempty"`
	Progress           float64            `json:"progress"`
	DeduplicationStats DeduplicationStats `json:"deduplication-stats"`
	Categories         []Category         `json:"categories"`
	Summary            Summary            `json:"summary"`
}

// severityName renders a dedup.Finding's ordinal severity using
// pattern.Severity's own naming, keeping one place that knows the mapping.
func severityName(ordinal int) string {
	return pattern.Severity(ordinal).String()
}

// categoryFor classifies a finding by its pattern id prefix when no
// registry is available to look up the originating pattern's declared
// category; header and file-walk findings are synthesized outside the
// pattern engine and carry their own implied category.
func categoryFor(registry *pattern.Registry, patternID string) string {
	if registry != nil {
		if p := registry.Lookup(patternID); p != nil {
			return string(p.Category)
		}
	}
	switch patternID {
	case "file-read-error", "large-file-skipped", "excluded":
		return string(pattern.CategoryFiles)
	default:
		return string(pattern.CategoryHeaders)
	}
}

// Build shapes a scan snapshot and its findings into the external report
// contract. registry may be nil; pattern ids that can't be resolved to a
// declared category fall back to a best-effort guess (see categoryFor).
func Build(snap orchestrator.Snapshot, findings []dedup.Finding, stats dedup.Stats, registry *pattern.Registry) Report {
	byCategory := make(map[string][]Finding)
	var order []string
	countsBySeverity := make(map[string]int)

	for _, f := range findings {
		cat := categoryFor(registry, f.PatternID)
		if _, seen := byCategory[cat]; !seen {
			order = append(order, cat)
		}

		locs := make([]string, 0, len(f.AggregatedLocations))
		for _, l := range f.AggregatedLocations {
			locs = append(locs, l.File)
		}

		sev := severityName(f.Severity)
		countsBySeverity[sev]++

		byCategory[cat] = append(byCategory[cat], Finding{
			ID:                  string(f.Fingerprint),
			PatternID:           f.PatternID,
			Type:                f.PatternID,
			Severity:            sev,
			Confidence:          f.Confidence,
			Value:               f.Value,
			File:                f.PrimaryFile,
			Line:                f.PrimaryLocation.Line,
			Column:              f.PrimaryLocation.Column,
			Context:             Context{Before: f.ContextBefore, After: f.ContextAfter},
			Location:            f.PrimaryFile,
			OccurrenceCount:     f.OccurrenceCount,
			AggregatedLocations: locs,
		})
	}

	sort.Strings(order)
	categories := make([]Category, 0, len(order))
	for _, cat := range order {
		categories = append(categories, Category{Category: cat, Findings: byCategory[cat]})
	}

	var endedAt *time.Time
	if !snap.EndedAt.IsZero() {
		e := snap.EndedAt
		endedAt = &e
	}

	return Report{
		ScanID:    snap.ScanID,
		Target:    snap.Target.Value,
		Status:    string(snap.Status),
		Partial:   endedAt == nil,
		StartedAt: snap.StartedAt,
		EndedAt:   endedAt,
		Progress:  snap.Progress,
		DeduplicationStats: DeduplicationStats{
			Enabled:           !stats.Fallback,
			BeforeCount:       stats.BeforeCount,
			AfterCount:        stats.AfterCount,
			DuplicatesRemoved: stats.DuplicatesRemoved,
			DurationSeconds:   stats.Duration.Seconds(),
			MemoryPeakBytes:   stats.MemoryPeakBytes,
			Fallback:          stats.Fallback,
			FallbackReason:    stats.FallbackReason,
		},
		Categories: categories,
		Summary: Summary{
			TotalFindings:    len(findings),
			CountsBySeverity: countsBySeverity,
		},
	}
}
