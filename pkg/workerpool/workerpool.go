// Package workerpool scans a batch of acquired files concurrently: bounded
// worker fan-out, per-file retry on transient read failures, and a
// sequential fallback when the resource monitor reports memory pressure.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietridge/secscan/pkg/acquisition"
	"github.com/quietridge/secscan/pkg/chanutil"
	"github.com/quietridge/secscan/pkg/confidence"
	logContext "github.com/quietridge/secscan/pkg/context"
	"github.com/quietridge/secscan/pkg/dedup"
	"github.com/quietridge/secscan/pkg/pattern"
	"github.com/quietridge/secscan/pkg/recovery"
	"github.com/quietridge/secscan/pkg/resource"
	"github.com/quietridge/secscan/pkg/scanerr"
)

// Config tunes one pool's concurrency and retry behavior.
type Config struct {
	Workers        int
	BatchSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// DefaultConfig caps worker count at 4 regardless of CPU count, matching
// the spec's conservative default so a scan doesn't starve the host.
var DefaultConfig = Config{
	Workers:        defaultWorkers(),
	BatchSize:      20,
	MaxRetries:     3,
	RetryBaseDelay: 200 * time.Millisecond,
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 4 {
		return 4
	}
	if n < 1 {
		return 1
	}
	return n
}

// FileResult is one unit's scan outcome, indexed so callers can restore the
// original file order after concurrent processing.
type FileResult struct {
	Index   int
	Unit    acquisition.FileUnit
	Matches []dedup.ScoredMatch
	Err     error
}

// Pool scans FileUnits against a pattern registry, scoring every raw match
// through the confidence package before handing results back for
// deduplication.
type Pool struct {
	registry *pattern.Registry
	feedback confidence.FeedbackLookup
	scanOpts pattern.Options
	walkOpts acquisition.WalkOptions
	monitor  *resource.Monitor
	cfg      Config
}

// NewPool builds a Pool. monitor may be nil, in which case the pool never
// falls back to sequential scanning under memory pressure.
func NewPool(registry *pattern.Registry, feedback confidence.FeedbackLookup, scanOpts pattern.Options, walkOpts acquisition.WalkOptions, monitor *resource.Monitor, cfg Config) *Pool {
	if feedback == nil {
		feedback = confidence.NoFeedback{}
	}
	return &Pool{registry: registry, feedback: feedback, scanOpts: scanOpts, walkOpts: walkOpts, monitor: monitor, cfg: cfg}
}

// Run scans every unit, batching work across cfg.Workers goroutines per
// batch. It checks cancel before each batch and falls back to sequential,
// single-goroutine scanning for the remainder of the run once the resource
// monitor reports Critical or Emergency pressure. Results are returned in
// the same order as units, regardless of completion order.
func (p *Pool) Run(cancel logContext.CancelSignal, units []acquisition.FileUnit) []FileResult {
	results := make([]FileResult, len(units))
	sequential := false

	for start := 0; start < len(units); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(units))
		batch := units[start:end]

		if cancel.Cancelled() {
			fillCancelled(results, start, units)
			break
		}

		if !sequential && p.underPressure() {
			sequential = true
		}

		if sequential {
			for i, u := range batch {
				results[start+i] = p.scanWithRetry(cancel, start+i, u)
			}
		} else {
			g := new(errgroup.Group)
			g.SetLimit(p.cfg.Workers)
			for i, u := range batch {
				idx, unit := start+i, u
				g.Go(func() error {
					defer recovery.Recover(logContext.Background())
					results[idx] = p.scanWithRetry(cancel, idx, unit)
					return nil
				})
			}
			_ = g.Wait()
		}

		if p.underPressure() {
			sequential = true
		}
	}

	return results
}

// RunStream scans units as they arrive on a channel instead of a
// pre-materialized slice, so a caller walking a large tree can start
// dispatching files before the walk finishes. ctx governs the receive
// side: once it is done, RunStream stops pulling further units and
// returns whatever finished. Unlike Run, results are not index-ordered —
// a streaming source has no stable total to index against.
func (p *Pool) RunStream(ctx context.Context, cancel logContext.CancelSignal, units <-chan acquisition.FileUnit) []FileResult {
	var (
		mu      sync.Mutex
		results []FileResult
	)
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)

	idx := 0
	for {
		unit, err := chanutil.Recv(ctx, units)
		if err != nil {
			break
		}
		if cancel.Cancelled() {
			break
		}
		i, u := idx, unit
		idx++
		g.Go(func() error {
			defer recovery.Recover(logContext.Background())
			r := p.scanWithRetry(cancel, i, u)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pool) underPressure() bool {
	if p.monitor == nil {
		return false
	}
	return p.monitor.Last().Level >= resource.Critical
}

func fillCancelled(results []FileResult, start int, units []acquisition.FileUnit) {
	for i := start; i < len(units); i++ {
		results[i] = FileResult{
			Index: i,
			Unit:  units[i],
			Err:   scanerr.New(scanerr.Cancelled, "scan cancelled before file was processed", map[string]any{"path": units[i].RelPath}),
		}
	}
}

// scanWithRetry retries a retryable read failure up to cfg.MaxRetries times
// with linear backoff, honoring cancel between attempts.
func (p *Pool) scanWithRetry(cancel logContext.CancelSignal, idx int, unit acquisition.FileUnit) FileResult {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if cancel.Cancelled() {
			return FileResult{Index: idx, Unit: unit, Err: scanerr.New(scanerr.Cancelled, "scan cancelled", map[string]any{"path": unit.RelPath})}
		}
		matches, err := p.scanUnit(cancel, unit)
		if err == nil {
			return FileResult{Index: idx, Unit: unit, Matches: matches}
		}
		lastErr = err
		if attempt < p.cfg.MaxRetries {
			time.Sleep(time.Duration(attempt+1) * p.cfg.RetryBaseDelay)
		}
	}
	return FileResult{Index: idx, Unit: unit, Err: scanerr.Wrap(scanerr.RetryExhausted, lastErr,
		"file scan retries exhausted", map[string]any{"path": unit.RelPath, "attempts": p.cfg.MaxRetries + 1})}
}

func (p *Pool) scanUnit(cancel logContext.CancelSignal, unit acquisition.FileUnit) ([]dedup.ScoredMatch, error) {
	if unit.Strategy == acquisition.StrategyInMemory {
		data, err := acquisition.ReadWhole(unit)
		if err != nil {
			return nil, scanerr.Wrap(scanerr.FileReadError, err, "reading file", map[string]any{"path": unit.RelPath})
		}
		return p.scoreBuffer(unit, data, 0), nil
	}

	var release func()
	if p.monitor != nil {
		r, ok := p.monitor.AcquireStream()
		if !ok {
			return nil, scanerr.New(scanerr.TooManyStreams, "concurrent stream cap reached", map[string]any{"path": unit.RelPath})
		}
		release = r
		defer release()
	}

	var out []dedup.ScoredMatch
	err := acquisition.ReadChunked(unit, p.walkOpts, func(c acquisition.Chunk) error {
		if cancel.Cancelled() {
			return scanerr.New(scanerr.Cancelled, "scan cancelled mid-file", map[string]any{"path": unit.RelPath})
		}
		out = append(out, p.scoreBuffer(unit, c.Data, c.ByteOffset)...)
		return nil
	})
	if err != nil {
		return nil, scanerr.Wrap(scanerr.FileReadError, err, "reading file", map[string]any{"path": unit.RelPath})
	}
	return out, nil
}

func (p *Pool) scoreBuffer(unit acquisition.FileUnit, data []byte, baseOffset int) []dedup.ScoredMatch {
	raws := p.registry.Scan(data, p.scanOpts)
	out := make([]dedup.ScoredMatch, 0, len(raws))
	for _, m := range raws {
		breakdown := confidence.Score(m, p.feedback)
		out = append(out, dedup.ScoredMatch{
			PatternID:     m.Pattern.ID,
			Value:         m.Value,
			File:          unit.RelPath,
			Location:      dedup.Location{File: unit.RelPath, Line: m.Line, Column: m.Column},
			ByteOffset:    baseOffset + m.ByteOffset,
			Severity:      int(m.Pattern.Severity),
			Confidence:    breakdown.FinalConfidence,
			ContextBefore: m.ContextBefore,
			ContextAfter:  m.ContextAfter,
		})
	}
	return out
}
