package report

import (
	"testing"
	"time"

	"github.com/quietridge/secscan/pkg/dedup"
	"github.com/quietridge/secscan/pkg/orchestrator"
)

func TestBuild_GroupsByCategoryAndSummarizes(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	ended := time.Now()
	snap := orchestrator.Snapshot{
		ScanID:    "scan-1",
		Target:    orchestrator.Target{Kind: orchestrator.TargetURL, Value: "https://example.com"},
		Status:    orchestrator.StatusCompleted,
		StartedAt: started,
		EndedAt:   ended,
		Progress:  100,
	}
	findings := []dedup.Finding{
		{
			Fingerprint:         "fp1",
			PatternID:           "missing-hsts",
			Value:               "https://example.com",
			Severity:            2,
			Confidence:          0.9,
			PrimaryFile:         "https://example.com",
			PrimaryLocation:     dedup.Location{File: "https://example.com"},
			AggregatedLocations: []dedup.Location{{File: "https://example.com"}},
			OccurrenceCount:     1,
		},
		{
			Fingerprint:         "fp2",
			PatternID:           "file-read-error",
			Value:               "permission denied",
			Severity:            1,
			Confidence:          1,
			PrimaryFile:         "a.go",
			PrimaryLocation:     dedup.Location{File: "a.go"},
			AggregatedLocations: []dedup.Location{{File: "a.go"}},
			OccurrenceCount:     1,
		},
	}
	stats := dedup.Stats{BeforeCount: 2, AfterCount: 2}

	r := Build(snap, findings, stats, nil)

	if r.Summary.TotalFindings != 2 {
		t.Errorf("TotalFindings = %d, want 2", r.Summary.TotalFindings)
	}
	if r.Summary.CountsBySeverity["medium"] != 1 || r.Summary.CountsBySeverity["low"] != 1 {
		t.Errorf("CountsBySeverity = %+v", r.Summary.CountsBySeverity)
	}
	if len(r.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d: %+v", len(r.Categories), r.Categories)
	}
	if r.Partial {
		t.Error("expected Partial=false for a terminal scan with EndedAt set")
	}
}

func TestBuild_NonTerminalScanIsPartial(t *testing.T) {
	snap := orchestrator.Snapshot{ScanID: "scan-2", Status: orchestrator.StatusRunning, StartedAt: time.Now()}
	r := Build(snap, nil, dedup.Stats{}, nil)
	if !r.Partial {
		t.Error("expected Partial=true when EndedAt is zero")
	}
}

func TestBuild_DisabledDeduplicationSurfacesAsNotEnabled(t *testing.T) {
	stats := dedup.Stats{BeforeCount: 3, AfterCount: 3, Fallback: true, FallbackReason: "disabled"}
	r := Build(orchestrator.Snapshot{EndedAt: time.Now()}, nil, stats, nil)
	if r.DeduplicationStats.Enabled {
		t.Error("expected deduplication-enabled=false when fallback reason is \"disabled\"")
	}
}
