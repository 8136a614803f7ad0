package dedup

import (
	"testing"
	"time"
)

func TestComputeFingerprint_StableAndCaseNormalized(t *testing.T) {
	a := ComputeFingerprint("aws-access-key-id", "AKIA123", "src/Main.go")
	b := ComputeFingerprint("aws-access-key-id", "AKIA123", "src/main.go")
	if a != b {
		t.Error("expected file path normalization to make these fingerprints equal")
	}
	c := ComputeFingerprint("aws-access-key-id", "AKIA124", "src/main.go")
	if a == c {
		t.Error("expected distinct values to produce distinct fingerprints")
	}
}

func TestFileScope_CollapsesDuplicatesKeepingEarliest(t *testing.T) {
	matches := []ScoredMatch{
		{PatternID: "p", Value: "v", File: "f.go", Location: Location{File: "f.go", Line: 100}, ByteOffset: 5000, Confidence: 0.6, Severity: 3},
		{PatternID: "p", Value: "v", File: "f.go", Location: Location{File: "f.go", Line: 1}, ByteOffset: 10, Confidence: 0.9, Severity: 4},
	}
	findings := FileScope(matches)
	if len(findings) != 1 {
		t.Fatalf("expected 1 collapsed finding, got %d", len(findings))
	}
	f := findings[0]
	if f.OccurrenceCount != 2 {
		t.Errorf("expected occurrence count 2, got %d", f.OccurrenceCount)
	}
	if f.PrimaryLocation.Line != 1 {
		t.Errorf("expected primary location to be the earliest byte offset (line 1), got line %d", f.PrimaryLocation.Line)
	}
	if f.Confidence != 0.9 {
		t.Errorf("expected max confidence 0.9, got %v", f.Confidence)
	}
	if f.Severity != 4 {
		t.Errorf("expected most severe severity 4, got %d", f.Severity)
	}
	if len(f.AggregatedLocations) != f.OccurrenceCount {
		t.Error("invariant violated: occurrence-count must equal len(aggregated-locations)")
	}
}

func TestScanScope_MergesAcrossFiles(t *testing.T) {
	perFile := [][]Finding{
		{{Fingerprint: "fp1", PatternID: "p", Value: "v", PrimaryFile: "a.go", OccurrenceCount: 1, AggregatedLocations: []Location{{File: "a.go", Line: 1}}, Confidence: 0.5, Severity: 2}},
		{{Fingerprint: "fp1", PatternID: "p", Value: "v", PrimaryFile: "b.go", OccurrenceCount: 1, AggregatedLocations: []Location{{File: "b.go", Line: 1}}, Confidence: 0.8, Severity: 3}},
	}
	merged := ScanScope(perFile)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged finding, got %d", len(merged))
	}
	if merged[0].OccurrenceCount != 2 {
		t.Errorf("expected occurrence count 2 across files, got %d", merged[0].OccurrenceCount)
	}
	if merged[0].Confidence != 0.8 {
		t.Errorf("expected max confidence across files, got %v", merged[0].Confidence)
	}
}

func TestScanScope_DistinctFingerprintsNeverMerge(t *testing.T) {
	perFile := [][]Finding{
		{{Fingerprint: "fp1", PrimaryFile: "a.go"}, {Fingerprint: "fp2", PrimaryFile: "a.go"}},
	}
	merged := ScanScope(perFile)
	if len(merged) != 2 {
		t.Fatalf("expected 2 distinct findings, got %d", len(merged))
	}
}

func TestEngine_FallsBackOnFindingCountLimit(t *testing.T) {
	budget := Budget{TimeBudget: time.Second, MemoryBudget: 1 << 20, MaxFindings: 2}
	e := NewEngine(budget)
	perFile := [][]Finding{
		{{Fingerprint: "fp1"}, {Fingerprint: "fp2"}, {Fingerprint: "fp3"}},
	}
	now := time.Now()
	out, stats := e.Run(perFile, now, func() time.Duration { return 0 })
	if !stats.Fallback {
		t.Error("expected fallback when finding count exceeds budget")
	}
	if stats.FallbackReason != "performance_limit" {
		t.Errorf("expected performance_limit reason, got %q", stats.FallbackReason)
	}
	if len(out) != 3 {
		t.Errorf("expected all findings preserved in fallback, got %d", len(out))
	}
}

func TestEngine_SucceedsUnderBudget(t *testing.T) {
	e := NewEngine(DefaultBudget)
	perFile := [][]Finding{
		{{Fingerprint: "fp1", PrimaryFile: "a.go", OccurrenceCount: 1, AggregatedLocations: []Location{{File: "a.go"}}}},
	}
	out, stats := e.Run(perFile, time.Now(), func() time.Duration { return 10 * time.Millisecond })
	if stats.Fallback {
		t.Error("expected no fallback under budget")
	}
	if len(out) != 1 {
		t.Errorf("expected 1 finding, got %d", len(out))
	}
}

func TestEngine_CircuitBreakerOpensAfterThreeFailures(t *testing.T) {
	budget := Budget{TimeBudget: time.Second, MemoryBudget: 1 << 20, MaxFindings: 0}
	e := NewEngine(budget)
	perFile := [][]Finding{{{Fingerprint: "fp1"}}}
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, stats := e.Run(perFile, now, func() time.Duration { return 0 })
		if !stats.Fallback {
			t.Fatalf("expected fallback on attempt %d", i)
		}
	}

	_, stats := e.Run(perFile, now, func() time.Duration { return 0 })
	if stats.FallbackReason != "circuit_open" {
		t.Errorf("expected circuit_open after 3 consecutive failures, got %q", stats.FallbackReason)
	}
}
