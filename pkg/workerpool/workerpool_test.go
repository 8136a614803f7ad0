package workerpool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quietridge/secscan/pkg/acquisition"
	"github.com/quietridge/secscan/pkg/confidence"
	logContext "github.com/quietridge/secscan/pkg/context"
	"github.com/quietridge/secscan/pkg/pattern"
)

func testRegistry(t *testing.T) *pattern.Registry {
	t.Helper()
	reg, err := pattern.NewRegistry([]pattern.Def{
		{
			ID:             "test-secret",
			Name:           "Test Secret",
			Category:       pattern.CategorySecrets,
			Severity:       pattern.SeverityHigh,
			Regex:          `secret-[a-zA-Z0-9]{8}`,
			BaseConfidence: 0.5,
		},
	})
	if err != nil {
		t.Fatalf("building test registry: %v", err)
	}
	return reg
}

func TestPool_Run_ScansFilesInOrder(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.go"), "x := \"secret-abcd1234\"\n")
	mustWrite(t, filepath.Join(root, "b.go"), "no secrets here\n")

	units, _, err := acquisition.List(root, acquisition.WalkOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	pool := NewPool(testRegistry(t), confidence.NoFeedback{}, pattern.Options{}, acquisition.DefaultWalkOptions, nil, DefaultConfig)
	cancel := logContext.NewCancelSignal(logContext.Background())
	results := pool.Run(cancel, units)

	if len(results) != len(units) {
		t.Fatalf("expected %d results, got %d", len(units), len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has Index %d, want %d", i, r.Index, i)
		}
		if r.Unit.RelPath != units[i].RelPath {
			t.Errorf("result %d path mismatch: got %s want %s", i, r.Unit.RelPath, units[i].RelPath)
		}
	}

	var sawMatch bool
	for _, r := range results {
		if r.Unit.RelPath == "a.go" {
			if len(r.Matches) != 1 {
				t.Fatalf("expected 1 match in a.go, got %d", len(r.Matches))
			}
			sawMatch = true
		}
		if r.Unit.RelPath == "b.go" && len(r.Matches) != 0 {
			t.Errorf("expected no matches in b.go, got %d", len(r.Matches))
		}
	}
	if !sawMatch {
		t.Error("expected to see a.go in results")
	}
}

func TestPool_RunStream_ScansUnitsFromChannel(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.go"), "x := \"secret-abcd1234\"\n")
	mustWrite(t, filepath.Join(root, "b.go"), "no secrets here\n")

	units, _, err := acquisition.List(root, acquisition.WalkOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	pool := NewPool(testRegistry(t), confidence.NoFeedback{}, pattern.Options{}, acquisition.DefaultWalkOptions, nil, DefaultConfig)
	cancel := logContext.NewCancelSignal(logContext.Background())

	ch := make(chan acquisition.FileUnit, len(units))
	for _, u := range units {
		ch <- u
	}
	close(ch)

	results := pool.RunStream(logContext.Background(), cancel, ch)
	if len(results) != len(units) {
		t.Fatalf("expected %d results, got %d", len(units), len(results))
	}

	var sawMatch bool
	for _, r := range results {
		if r.Unit.RelPath == "a.go" && len(r.Matches) == 1 {
			sawMatch = true
		}
	}
	if !sawMatch {
		t.Error("expected to see a.go's match in results")
	}
}

func TestPool_RunStream_StopsWhenContextDone(t *testing.T) {
	ctx, cancelCtx := logContext.WithCancel(logContext.Background())
	cancelCtx()

	pool := NewPool(testRegistry(t), confidence.NoFeedback{}, pattern.Options{}, acquisition.DefaultWalkOptions, nil, DefaultConfig)
	cancel := logContext.NewCancelSignal(logContext.Background())

	ch := make(chan acquisition.FileUnit)
	results := pool.RunStream(ctx, cancel, ch)
	if len(results) != 0 {
		t.Errorf("expected no results once context is already done, got %d", len(results))
	}
}

func TestPool_Run_RetriesThenExhausts(t *testing.T) {
	missing := acquisition.FileUnit{
		Path:     filepath.Join(t.TempDir(), "does-not-exist.go"),
		RelPath:  "does-not-exist.go",
		Size:     10,
		Strategy: acquisition.StrategyInMemory,
	}

	cfg := DefaultConfig
	cfg.MaxRetries = 1
	cfg.RetryBaseDelay = time.Millisecond

	pool := NewPool(testRegistry(t), confidence.NoFeedback{}, pattern.Options{}, acquisition.DefaultWalkOptions, nil, cfg)
	cancel := logContext.NewCancelSignal(logContext.Background())
	results := pool.Run(cancel, []acquisition.FileUnit{missing})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestPool_Run_CancelledBeforeStart(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.go"), "package a\n")
	units, _, err := acquisition.List(root, acquisition.WalkOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	pool := NewPool(testRegistry(t), confidence.NoFeedback{}, pattern.Options{}, acquisition.DefaultWalkOptions, nil, DefaultConfig)
	cancel := logContext.NewCancelSignal(logContext.Background())
	cancel.Fire()

	results := pool.Run(cancel, units)
	if len(results) != len(units) {
		t.Fatalf("expected %d results even when cancelled, got %d", len(units), len(results))
	}
	for _, r := range results {
		if r.Err == nil {
			t.Error("expected every result to carry a cancellation error")
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
