// Package orchestrator admits scans, sequences their phases, tracks
// progress, accepts cancellation, and retains finished results until their
// retention TTL elapses.
package orchestrator

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietridge/secscan/pkg/acquisition"
	lrucache "github.com/quietridge/secscan/pkg/cache/lru"
	"github.com/quietridge/secscan/pkg/chanutil"
	"github.com/quietridge/secscan/pkg/cleantemp"
	"github.com/quietridge/secscan/pkg/confidence"
	logContext "github.com/quietridge/secscan/pkg/context"
	"github.com/quietridge/secscan/pkg/dedup"
	"github.com/quietridge/secscan/pkg/feedback"
	"github.com/quietridge/secscan/pkg/giturl"
	"github.com/quietridge/secscan/pkg/headers"
	"github.com/quietridge/secscan/pkg/metrics"
	"github.com/quietridge/secscan/pkg/pathfilter"
	"github.com/quietridge/secscan/pkg/pattern"
	"github.com/quietridge/secscan/pkg/ratelimit"
	"github.com/quietridge/secscan/pkg/recovery"
	"github.com/quietridge/secscan/pkg/resource"
	"github.com/quietridge/secscan/pkg/scanerr"
	"github.com/quietridge/secscan/pkg/workerpool"
)

// Phase is one substep of a scan, in the spec's fixed sequencing order.
type Phase string

const (
	PhaseHeaders    Phase = "headers"
	PhaseURL        Phase = "url"
	PhaseRepository Phase = "repository"
	PhaseFiles      Phase = "files"
)

// phaseOrder is the fixed sequencing order every scan follows.
var phaseOrder = []Phase{PhaseHeaders, PhaseURL, PhaseRepository, PhaseFiles}

// TargetKind distinguishes a bare URL target from a repository target.
type TargetKind string

const (
	TargetURL        TargetKind = "url"
	TargetRepository TargetKind = "repository"
)

// Target is what a collaborator hands to Start.
type Target struct {
	Kind  TargetKind
	Value string
}

// Options configures a single scan.
type Options struct {
	MaxFiles            int
	IncludeGlobs         []string
	ExcludeGlobs         []string
	ConfidenceThreshold  float64
	CloneDepth           int
	PerScanTimeout       time.Duration
	// DisableDedup models "basic scan mode" (spec §9 Open Questions) as
	// orchestrator configuration rather than a separate pipeline.
	DisableDedup bool
}

// Status is a scan's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// PhaseStatus is one phase record's own lifecycle state.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// PhaseRecord is one phase's progress and outcome.
type PhaseRecord struct {
	Phase     Phase
	Weight    float64 // fraction of 100, assigned at scan start
	Progress  float64 // 0..1, local to this phase
	Status    PhaseStatus
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Snapshot is an immutable view of a scan's lifecycle state, returned by
// Status without mutating anything.
type Snapshot struct {
	ScanID    string
	Target    Target
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	Progress  float64 // 0..100
	Phases    []PhaseRecord
}

// scan is the orchestrator's internal, mutable record. Never returned
// directly to callers — Status/Results copy out of it under lock.
type scan struct {
	mu sync.Mutex

	id     string
	target Target
	opts   Options

	requested map[Phase]bool
	phases    map[Phase]*PhaseRecord

	status    Status
	startedAt time.Time
	endedAt   time.Time

	perFile    [][]dedup.Finding
	findings   []dedup.Finding
	byID       map[string]dedup.Finding
	dedupStats dedup.Stats

	cloneDir string
	cancel   logContext.CancelSignal
}

// Orchestrator owns the scan table and every collaborator a scan's phases
// need: the pattern registry, feedback store, resource monitor, per-target
// rate-limiter buckets, and the temp-directory tracker.
type Orchestrator struct {
	acquisitionCfg acquisition.Config
	walkCfg        acquisition.WalkOptions
	poolCfg        workerpool.Config
	dedupBudget    dedup.Budget
	maxConcurrent  int
	retentionTTL   time.Duration

	registry *pattern.Registry
	feedback *feedback.Store
	monitor  *resource.Monitor
	tracker  *cleantemp.Tracker

	rateLimitCfg ratelimit.Config
	headerClient *http.Client

	workerMetrics *metrics.WorkerPool
	dedupMetrics  *metrics.Dedup

	mu      sync.Mutex
	scans   map[string]*scan
	active  int
	buckets *lrucache.Cache[*ratelimit.Bucket]
}

// Deps bundles the collaborators an Orchestrator needs, so construction
// sites don't juggle a long positional argument list.
type Deps struct {
	AcquisitionCfg acquisition.Config
	WalkCfg        acquisition.WalkOptions
	PoolCfg        workerpool.Config
	DedupBudget    dedup.Budget
	MaxConcurrent  int
	RetentionTTL   time.Duration

	Registry *pattern.Registry
	Feedback *feedback.Store
	Monitor  *resource.Monitor
	Tracker  *cleantemp.Tracker

	RateLimitCfg ratelimit.Config
	HeaderClient *http.Client

	WorkerMetrics *metrics.WorkerPool
	DedupMetrics  *metrics.Dedup
}

// bucketCacheCapacity bounds how many distinct hosts' rate-limit state the
// orchestrator retains at once; a long-lived process scanning many distinct
// hosts evicts the least-recently-used bucket rather than growing forever.
const bucketCacheCapacity = 4096

// New builds an Orchestrator from deps.
func New(d Deps) *Orchestrator {
	buckets, _ := lrucache.NewCache[*ratelimit.Bucket]("rate-limit-buckets", lrucache.WithCapacity[*ratelimit.Bucket](bucketCacheCapacity))
	return &Orchestrator{
		acquisitionCfg: d.AcquisitionCfg,
		walkCfg:        d.WalkCfg,
		poolCfg:        d.PoolCfg,
		dedupBudget:    d.DedupBudget,
		maxConcurrent:  d.MaxConcurrent,
		retentionTTL:   d.RetentionTTL,
		registry:       d.Registry,
		feedback:       d.Feedback,
		monitor:        d.Monitor,
		tracker:        d.Tracker,
		rateLimitCfg:   d.RateLimitCfg,
		headerClient:   d.HeaderClient,
		workerMetrics:  d.WorkerMetrics,
		dedupMetrics:   d.DedupMetrics,
		scans:          make(map[string]*scan),
		buckets:        buckets,
	}
}

func (o *Orchestrator) bucketFor(key string) *ratelimit.Bucket {
	if b, ok := o.buckets.Get(key); ok {
		return b
	}
	b := ratelimit.NewBucket(key, o.rateLimitCfg, nil)
	o.buckets.Set(key, b)
	return b
}

// Start admits a new scan and begins running its requested phases in the
// background. It fails synchronously with admission-rejected (and a
// sub-reason in Details) when the resource monitor or concurrency cap
// declines.
func (o *Orchestrator) Start(parent logContext.Context, target Target, phases []Phase, opts Options) (string, error) {
	if target.Kind == TargetURL {
		if _, err := url.ParseRequestURI(target.Value); err != nil {
			return "", scanerr.Wrap(scanerr.InvalidURL, err, "invalid URL target", map[string]any{"value": target.Value})
		}
	} else if target.Kind == TargetRepository {
		if _, err := giturl.Parse(target.Value); err != nil {
			return "", err
		}
	}

	if err := o.admit(); err != nil {
		return "", err
	}

	requested := make(map[Phase]bool, len(phases))
	for _, p := range phases {
		requested[p] = true
	}

	id := uuid.NewString()
	sc := &scan{
		id:        id,
		target:    target,
		opts:      opts,
		requested: requested,
		phases:    make(map[Phase]*PhaseRecord),
		status:    StatusQueued,
		byID:      make(map[string]dedup.Finding),
		cancel:    logContext.NewCancelSignal(parent),
	}

	applicable := applicablePhases(target.Kind, requested)
	weight := 0.0
	if len(applicable) > 0 {
		weight = 100.0 / float64(len(applicable))
	}
	for _, p := range phaseOrder {
		status := PhaseSkipped
		w := 0.0
		if applicable[p] {
			status = PhasePending
			w = weight
		}
		sc.phases[p] = &PhaseRecord{Phase: p, Weight: w, Status: status}
	}

	o.mu.Lock()
	o.scans[id] = sc
	o.mu.Unlock()

	go o.run(sc)
	return id, nil
}

// applicablePhases filters the requested set down to phases that make sense
// for the target kind: headers/url need a URL target, repository/files need
// a repository target.
func applicablePhases(kind TargetKind, requested map[Phase]bool) map[Phase]bool {
	out := make(map[Phase]bool, len(requested))
	for p, want := range requested {
		if !want {
			continue
		}
		switch p {
		case PhaseHeaders, PhaseURL:
			if kind == TargetURL {
				out[p] = true
			}
		case PhaseRepository, PhaseFiles:
			if kind == TargetRepository {
				out[p] = true
			}
		}
	}
	return out
}

func (o *Orchestrator) admit() error {
	if o.monitor != nil {
		switch o.monitor.Last().Level {
		case resource.Emergency:
			return scanerr.New(scanerr.AdmissionRejected, "resource monitor in emergency mode",
				map[string]any{"reason": "emergency-mode"})
		case resource.Critical:
			return scanerr.New(scanerr.AdmissionRejected, "resource monitor at critical pressure",
				map[string]any{"reason": "disk-budget-exhausted"})
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.maxConcurrent > 0 && o.active >= o.maxConcurrent {
		return scanerr.New(scanerr.AdmissionRejected, "concurrent scan cap reached",
			map[string]any{"reason": "concurrent-scan-cap", "cap": o.maxConcurrent})
	}
	o.active++
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.active--
	o.mu.Unlock()
}

func (o *Orchestrator) run(sc *scan) {
	defer o.release()
	defer recovery.Recover(logContext.Background())

	sc.mu.Lock()
	sc.status = StatusRunning
	sc.startedAt = time.Now()
	sc.mu.Unlock()

	ctx := logContext.Background()
	if sc.opts.PerScanTimeout > 0 {
		var cancel func()
		ctx, cancel = logContext.WithTimeout(ctx, sc.opts.PerScanTimeout)
		defer cancel()
	}

	fb := confidence.FeedbackLookup(confidence.NoFeedback{})
	if o.feedback != nil {
		fb = o.feedback.Snapshot()
	}

	for _, p := range phaseOrder {
		rec := sc.phases[p]
		if rec.Status != PhasePending {
			continue
		}
		if sc.cancel.Cancelled() {
			sc.mu.Lock()
			rec.Status = PhaseSkipped
			sc.mu.Unlock()
			continue
		}

		sc.mu.Lock()
		rec.Status = PhaseRunning
		rec.StartedAt = time.Now()
		sc.mu.Unlock()

		var err error
		switch p {
		case PhaseHeaders:
			err = o.runHeaders(sc)
		case PhaseURL:
			err = o.runURL(sc, fb)
		case PhaseRepository:
			err = o.runRepository(ctx, sc)
		case PhaseFiles:
			err = o.runFiles(ctx, sc, fb)
		}

		sc.mu.Lock()
		rec.EndedAt = time.Now()
		rec.Progress = 1
		if err != nil {
			rec.Status = PhaseFailed
			rec.Err = err
		} else {
			rec.Status = PhaseCompleted
		}
		sc.mu.Unlock()

		if scanerr.Is(err, scanerr.Cancelled) || scanerr.Is(err, scanerr.EmergencyMode) {
			break
		}
	}

	o.finalize(sc)
}

func (o *Orchestrator) runHeaders(sc *scan) error {
	if o.headerClient == nil {
		o.headerClient = headers.NewClient(headers.DefaultConfig)
	}
	u, err := url.Parse(sc.target.Value)
	if err != nil {
		return scanerr.Wrap(scanerr.InvalidURL, err, "parsing URL target for header analysis", nil)
	}
	bucket := o.bucketFor(u.Host)
	findings, err := headers.Analyze(o.headerClient, bucket, sc.target.Value)
	if err != nil {
		return scanerr.Wrap(scanerr.NetworkError, err, "header analysis request failed", map[string]any{"host": u.Host})
	}
	sc.mu.Lock()
	sc.perFile = append(sc.perFile, findings)
	sc.mu.Unlock()
	return nil
}

func (o *Orchestrator) runURL(sc *scan, fb confidence.FeedbackLookup) error {
	matches := o.registry.Scan([]byte(sc.target.Value), pattern.Options{})
	scored := scoreRawMatches(matches, sc.target.Value, fb)
	findings := dedup.FileScope(scored)
	sc.mu.Lock()
	sc.perFile = append(sc.perFile, findings)
	sc.mu.Unlock()
	return nil
}

func (o *Orchestrator) runRepository(ctx logContext.Context, sc *scan) error {
	repo, err := acquisition.Probe(ctx, sc.target.Value)
	if err != nil {
		return err
	}

	dir, err := cleantemp.MkdirForScan()
	if err != nil {
		return scanerr.Wrap(scanerr.RepositoryAccessError, err, "allocating clone directory", nil)
	}

	cfg := o.acquisitionCfg
	if sc.opts.CloneDepth > 0 {
		cfg.CloneDepth = sc.opts.CloneDepth
	}
	if err := acquisition.Clone(ctx, repo, dir, cfg); err != nil {
		return err
	}

	size, _ := dirSize(dir)
	if o.tracker != nil {
		o.tracker.Track(dir, size)
		acquisition.EnforceGlobalBudget(o.tracker, cfg)
	}

	sc.mu.Lock()
	sc.cloneDir = dir
	sc.mu.Unlock()
	return nil
}

func (o *Orchestrator) runFiles(ctx logContext.Context, sc *scan, fb confidence.FeedbackLookup) error {
	sc.mu.Lock()
	dir := sc.cloneDir
	sc.mu.Unlock()
	if dir == "" {
		return scanerr.New(scanerr.FileReadError, "no acquired repository to walk", nil)
	}

	filterOpts := make([]pathfilter.Option, 0, 2)
	if len(sc.opts.ExcludeGlobs) > 0 {
		filterOpts = append(filterOpts, pathfilter.WithExclude(sc.opts.ExcludeGlobs...))
	}
	if len(sc.opts.IncludeGlobs) > 0 {
		filterOpts = append(filterOpts, pathfilter.WithInclude(sc.opts.IncludeGlobs...))
	}
	filter, err := pathfilter.New(filterOpts...)
	if err != nil {
		return scanerr.Wrap(scanerr.FileReadError, err, "invalid include/exclude pattern", nil)
	}

	walkOpts := o.walkCfg
	walkOpts.Filter = filter

	units, skips, err := acquisition.List(dir, walkOpts)
	if err != nil {
		return scanerr.Wrap(scanerr.FileReadError, err, "walking acquired repository", nil)
	}

	maxFiles := sc.opts.MaxFiles
	if maxFiles > 0 && len(units) > maxFiles {
		units = units[:maxFiles]
	}

	pool := workerpool.NewPool(o.registry, fb, pattern.Options{}, walkOpts, o.monitor, o.poolCfg)

	unitsCh := make(chan acquisition.FileUnit, o.poolCfg.BatchSize)
	go func() {
		defer close(unitsCh)
		for _, u := range units {
			if chanutil.Send(ctx, unitsCh, u) != nil {
				return
			}
		}
	}()
	results := pool.RunStream(ctx, sc.cancel, unitsCh)

	var perFile [][]dedup.Finding
	for _, r := range results {
		if r.Err != nil {
			perFile = append(perFile, []dedup.Finding{fileErrorFinding(r.Unit.RelPath, r.Err)})
			continue
		}
		if len(r.Matches) > 0 {
			perFile = append(perFile, dedup.FileScope(r.Matches))
		}
		if o.workerMetrics != nil {
			o.workerMetrics.RecordScanned(0)
		}
	}
	for _, s := range skips {
		perFile = append(perFile, []dedup.Finding{skipFinding(s)})
	}

	sc.mu.Lock()
	sc.perFile = append(sc.perFile, perFile...)
	sc.mu.Unlock()
	return nil
}

func fileErrorFinding(relPath string, cause error) dedup.Finding {
	loc := dedup.Location{File: relPath}
	return dedup.Finding{
		Fingerprint:         dedup.ComputeFingerprint("file-read-error", relPath, relPath),
		PatternID:           "file-read-error",
		Value:               cause.Error(),
		Severity:            int(pattern.SeverityLow),
		Confidence:          1,
		PrimaryLocation:     loc,
		PrimaryFile:         relPath,
		AggregatedLocations: []dedup.Location{loc},
		OccurrenceCount:     1,
	}
}

func skipFinding(s acquisition.SkipNotice) dedup.Finding {
	loc := dedup.Location{File: s.RelPath}
	value := s.Reason
	if s.Err != nil {
		value = s.Err.Error()
	}
	return dedup.Finding{
		Fingerprint:         dedup.ComputeFingerprint(s.Reason, s.RelPath, s.RelPath),
		PatternID:           s.Reason,
		Value:               value,
		Severity:            int(pattern.SeverityInfo),
		Confidence:          1,
		PrimaryLocation:     loc,
		PrimaryFile:         s.RelPath,
		AggregatedLocations: []dedup.Location{loc},
		OccurrenceCount:     1,
	}
}

func scoreRawMatches(matches []pattern.RawMatch, file string, fb confidence.FeedbackLookup) []dedup.ScoredMatch {
	out := make([]dedup.ScoredMatch, 0, len(matches))
	for _, m := range matches {
		b := confidence.Score(m, fb)
		out = append(out, dedup.ScoredMatch{
			PatternID:     m.Pattern.ID,
			Value:         m.Value,
			File:          file,
			Location:      dedup.Location{File: file, Line: m.Line, Column: m.Column},
			ByteOffset:    m.ByteOffset,
			Severity:      int(m.Pattern.Severity),
			Confidence:    b.FinalConfidence,
			ContextBefore: m.ContextBefore,
			ContextAfter:  m.ContextAfter,
		})
	}
	return out
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func (o *Orchestrator) finalize(sc *scan) {
	now := time.Now()
	startedAt := sc.startedAt

	var findings []dedup.Finding
	var stats dedup.Stats

	sc.mu.Lock()
	perFile := sc.perFile
	disableDedup := sc.opts.DisableDedup
	threshold := sc.opts.ConfidenceThreshold
	sc.mu.Unlock()

	if disableDedup {
		for _, f := range perFile {
			findings = append(findings, f...)
		}
		stats.BeforeCount = len(findings)
		stats.AfterCount = len(findings)
		stats.Fallback = true
		stats.FallbackReason = "disabled"
	} else {
		engine := dedup.NewEngine(o.dedupBudget)
		findings, stats = engine.Run(perFile, now, func() time.Duration { return time.Since(now) })
	}

	if threshold > 0 {
		filtered := findings[:0:0]
		for _, f := range findings {
			if f.Confidence >= threshold {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].PrimaryFile < findings[j].PrimaryFile
	})

	if o.dedupMetrics != nil {
		o.dedupMetrics.RecordStats(stats.DuplicatesRemoved, stats.Fallback, stats.FallbackReason)
	}

	byID := make(map[string]dedup.Finding, len(findings))
	for _, f := range findings {
		byID[string(f.Fingerprint)] = f
	}

	status := terminalStatus(sc)

	sc.mu.Lock()
	sc.findings = findings
	sc.byID = byID
	sc.dedupStats = stats
	sc.status = status
	sc.endedAt = now
	cloneDir := sc.cloneDir
	sc.mu.Unlock()

	if cloneDir != "" && o.tracker != nil {
		_ = o.tracker.Untrack(cloneDir)
	}
}

func terminalStatus(sc *scan) Status {
	if sc.cancel.Cancelled() {
		return StatusCancelled
	}
	completed, failed, total := 0, 0, 0
	for _, p := range sc.phases {
		if p.Status == PhaseSkipped {
			continue
		}
		total++
		switch p.Status {
		case PhaseCompleted:
			completed++
		case PhaseFailed:
			failed++
		}
	}
	switch {
	case total == 0 || failed == 0:
		return StatusCompleted
	case completed > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Status returns an immutable snapshot of scan id's lifecycle state.
func (o *Orchestrator) Status(id string) (Snapshot, error) {
	sc, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	phases := make([]PhaseRecord, 0, len(phaseOrder))
	progress := 0.0
	for _, p := range phaseOrder {
		rec := *sc.phases[p]
		phases = append(phases, rec)
		progress += rec.Weight * rec.Progress
	}

	return Snapshot{
		ScanID:    sc.id,
		Target:    sc.target,
		Status:    sc.status,
		StartedAt: sc.startedAt,
		EndedAt:   sc.endedAt,
		Progress:  progress,
		Phases:    phases,
	}, nil
}

// Findings returns scan id's current findings (possibly partial) and its
// deduplication statistics, for pkg/report to shape into the external
// report contract.
func (o *Orchestrator) Findings(id string) (Snapshot, []dedup.Finding, dedup.Stats, error) {
	sc, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, nil, dedup.Stats{}, err
	}
	snap, err := o.Status(id)
	if err != nil {
		return Snapshot{}, nil, dedup.Stats{}, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	findings := make([]dedup.Finding, len(sc.findings))
	copy(findings, sc.findings)
	return snap, findings, sc.dedupStats, nil
}

// Cancel signals cooperative cancellation for scan id. Returns
// "already-terminal" if the scan has already finished.
func (o *Orchestrator) Cancel(id string) (string, error) {
	sc, err := o.lookup(id)
	if err != nil {
		return "", err
	}

	sc.mu.Lock()
	terminal := sc.status.terminal()
	sc.mu.Unlock()
	if terminal {
		return "already-terminal", nil
	}

	sc.cancel.Fire()
	return "accepted", nil
}

// RecordFeedback updates the shared feedback store from a known finding in
// scan id. It affects only future scans, never the one it was recorded
// against.
func (o *Orchestrator) RecordFeedback(id, findingID string, isFalsePositive bool) error {
	sc, err := o.lookup(id)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	f, ok := sc.byID[findingID]
	sc.mu.Unlock()
	if !ok {
		return scanerr.New(scanerr.NotFound, "unknown finding id", map[string]any{"finding-id": findingID})
	}
	if o.feedback == nil {
		return nil
	}
	return o.feedback.Record(f.PatternID, f.Value, isFalsePositive, time.Now())
}

func (o *Orchestrator) lookup(id string) (*scan, error) {
	o.mu.Lock()
	sc, ok := o.scans[id]
	o.mu.Unlock()
	if !ok {
		return nil, scanerr.New(scanerr.NotFound, "unknown or expired scan id", map[string]any{"scan-id": id})
	}
	return sc, nil
}

// Sweep evicts every terminated scan whose retention TTL has elapsed,
// removing its record and any still-tracked clone directory.
func (o *Orchestrator) Sweep() {
	cutoff := time.Now().Add(-o.retentionTTL)

	o.mu.Lock()
	var victims []string
	for id, sc := range o.scans {
		sc.mu.Lock()
		expired := sc.status.terminal() && !sc.endedAt.IsZero() && sc.endedAt.Before(cutoff)
		dir := sc.cloneDir
		sc.mu.Unlock()
		if expired {
			victims = append(victims, id)
			if dir != "" && o.tracker != nil {
				_ = o.tracker.Untrack(dir)
			}
		}
	}
	for _, id := range victims {
		delete(o.scans, id)
	}
	o.mu.Unlock()
}

// Run sweeps terminated scans on a fixed interval until ctx is done.
func (o *Orchestrator) Run(ctx logContext.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// CancelAll fires cancellation on every non-terminal scan, for graceful
// shutdown.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	scans := make([]*scan, 0, len(o.scans))
	for _, sc := range o.scans {
		scans = append(scans, sc)
	}
	o.mu.Unlock()

	for _, sc := range scans {
		sc.mu.Lock()
		terminal := sc.status.terminal()
		sc.mu.Unlock()
		if !terminal {
			sc.cancel.Fire()
		}
	}
}
