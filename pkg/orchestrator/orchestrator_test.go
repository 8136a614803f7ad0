package orchestrator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quietridge/secscan/pkg/acquisition"
	"github.com/quietridge/secscan/pkg/cleantemp"
	logContext "github.com/quietridge/secscan/pkg/context"
	"github.com/quietridge/secscan/pkg/dedup"
	"github.com/quietridge/secscan/pkg/headers"
	"github.com/quietridge/secscan/pkg/pattern"
	"github.com/quietridge/secscan/pkg/ratelimit"
	"github.com/quietridge/secscan/pkg/workerpool"
)

func testOrchestrator(t *testing.T, maxConcurrent int) *Orchestrator {
	t.Helper()
	registry, err := pattern.NewRegistry([]pattern.Def{{
		ID:             "test-secret",
		Name:           "Test Secret",
		Category:       pattern.CategorySecrets,
		Severity:       pattern.SeverityHigh,
		Regex:          `secret-[a-zA-Z0-9]{8}`,
		BaseConfidence: 0.5,
	}})
	if err != nil {
		t.Fatal(err)
	}
	return New(Deps{
		AcquisitionCfg: acquisition.DefaultConfig,
		WalkCfg:        acquisition.DefaultWalkOptions,
		PoolCfg:        workerpool.DefaultConfig,
		DedupBudget:    dedup.DefaultBudget,
		MaxConcurrent:  maxConcurrent,
		RetentionTTL:   time.Hour,
		Registry:       registry,
		Tracker:        cleantemp.NewTracker(),
		RateLimitCfg:   ratelimit.DefaultConfig,
		HeaderClient:   headers.NewClient(headers.DefaultConfig),
	})
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := o.Status(id)
		if err != nil {
			t.Fatal(err)
		}
		if snap.Status != StatusQueued && snap.Status != StatusRunning {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scan did not terminate in time")
	return Snapshot{}
}

func TestOrchestrator_URLScan_HeadersAndURLPhases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	o := testOrchestrator(t, 5)
	id, err := o.Start(logContext.Background(), Target{Kind: TargetURL, Value: server.URL + "/?token=secret-AB12CD34"},
		[]Phase{PhaseHeaders, PhaseURL}, Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed; phases=%+v", snap.Status, snap.Phases)
	}
	if snap.Progress != 100 {
		t.Errorf("progress = %v, want 100", snap.Progress)
	}

	_, findings, _, err := o.Findings(id)
	if err != nil {
		t.Fatal(err)
	}
	var sawSecret, sawHeaderFinding bool
	for _, f := range findings {
		if f.PatternID == "test-secret" {
			sawSecret = true
		}
		if f.PatternID == "missing-hsts" || f.PatternID == "missing-xss-protection" {
			sawHeaderFinding = true
		}
	}
	if !sawSecret {
		t.Error("expected a test-secret finding from the url phase")
	}
	if !sawHeaderFinding {
		t.Error("expected at least one header finding")
	}
}

func TestOrchestrator_Cancel_AlreadyTerminal(t *testing.T) {
	o := testOrchestrator(t, 5)
	id, err := o.Start(logContext.Background(), Target{Kind: TargetURL, Value: "https://example.com"},
		[]Phase{PhaseURL}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, o, id)

	result, err := o.Cancel(id)
	if err != nil {
		t.Fatal(err)
	}
	if result != "already-terminal" {
		t.Errorf("Cancel on terminal scan = %q, want already-terminal", result)
	}
}

func TestOrchestrator_AdmissionRejected_ConcurrentCap(t *testing.T) {
	o := testOrchestrator(t, 1)
	o.active = 1 // simulate an already-running scan

	_, err := o.Start(logContext.Background(), Target{Kind: TargetURL, Value: "https://example.com"},
		[]Phase{PhaseURL}, Options{})
	if err == nil {
		t.Fatal("expected admission-rejected error")
	}
}

func TestOrchestrator_Status_UnknownScan(t *testing.T) {
	o := testOrchestrator(t, 5)
	if _, err := o.Status("does-not-exist"); err == nil {
		t.Error("expected not-found error for unknown scan id")
	}
}

func TestOrchestrator_RecordFeedback_RoundTrips(t *testing.T) {
	o := testOrchestrator(t, 5)
	id, err := o.Start(logContext.Background(), Target{Kind: TargetURL, Value: "https://example.com/?x=secret-AB12CD34"},
		[]Phase{PhaseURL}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, o, id)

	_, findings, _, err := o.Findings(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) == 0 {
		t.Fatal("expected at least one finding to record feedback against")
	}
	findingID := string(findings[0].Fingerprint)
	if err := o.RecordFeedback(id, findingID, true); err != nil {
		t.Errorf("RecordFeedback: %v", err)
	}
	if err := o.RecordFeedback(id, "unknown-finding-id", true); err == nil {
		t.Error("expected not-found error for unknown finding id")
	}
}
