// Command secscan scans a URL or repository target for secrets,
// vulnerable configuration patterns, and weak HTTP security headers, and
// prints a JSON report.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/getsentry/sentry-go"

	"github.com/quietridge/secscan/pkg/acquisition"
	"github.com/quietridge/secscan/pkg/cleantemp"
	"github.com/quietridge/secscan/pkg/config"
	logContext "github.com/quietridge/secscan/pkg/context"
	"github.com/quietridge/secscan/pkg/dedup"
	"github.com/quietridge/secscan/pkg/feedback"
	"github.com/quietridge/secscan/pkg/headers"
	"github.com/quietridge/secscan/pkg/log"
	"github.com/quietridge/secscan/pkg/metrics"
	"github.com/quietridge/secscan/pkg/orchestrator"
	"github.com/quietridge/secscan/pkg/pattern"
	"github.com/quietridge/secscan/pkg/report"
	"github.com/quietridge/secscan/pkg/resource"
	"github.com/quietridge/secscan/pkg/workerpool"
)

func main() {
	cli := kingpin.New("secscan", "secscan finds secrets, misconfigurations, and weak HTTP security headers.")
	debug := cli.Flag("debug", "Run in debug mode.").Bool()
	jsonLogs := cli.Flag("json-logs", "Emit process logs as JSON instead of console format.").Bool()
	sentryDSN := cli.Flag("sentry-dsn", "Sentry DSN for error reporting. Unset disables Sentry.").String()
	configPath := cli.Flag("config", "Path to a YAML configuration file.").Default("secscan.yaml").String()

	cfg, err := config.LoadYAML(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	config.Flags(cli, &cfg)

	scanCmd := cli.Command("scan", "Run a scan against a URL or repository target.")
	targetKind := scanCmd.Arg("kind", "Target kind: url or repository.").Required().Enum("url", "repository")
	targetValue := scanCmd.Arg("value", "Target URL or repository address.").Required().String()
	phasesFlag := scanCmd.Flag("phase", "Phase to run (repeatable). Defaults to every phase applicable to the target kind.").Enums("headers", "url", "repository", "files")
	includeGlobs := scanCmd.Flag("include", "Include glob (repeatable).").Strings()
	excludeGlobs := scanCmd.Flag("exclude", "Exclude glob (repeatable).").Strings()
	confidenceThreshold := scanCmd.Flag("confidence-threshold", "Drop findings below this confidence.").Default("0").Float64()
	basicMode := scanCmd.Flag("basic", "Basic scan mode: url phase only, deduplication disabled.").Bool()

	feedbackCmd := cli.Command("feedback", "Record feedback against a (pattern-id, value) pair for future scans.")
	feedbackPatternID := feedbackCmd.Arg("pattern-id", "Pattern id the feedback applies to.").Required().String()
	feedbackValue := feedbackCmd.Arg("value", "Matched value the feedback applies to.").Required().String()
	feedbackFalsePositive := feedbackCmd.Flag("false-positive", "Mark as a false positive (default: true positive).").Bool()

	cmd := kingpin.MustParse(cli.Parse(os.Args[1:]))

	logOpts := []log.Option{log.WithConsoleSink(os.Stderr)}
	if *jsonLogs {
		logOpts = []log.Option{log.WithJSONSink(os.Stderr)}
	}
	if *debug {
		log.SetLevel(1)
	}
	if *sentryDSN != "" {
		logOpts = append(logOpts, log.WithSentry(sentry.ClientOptions{Dsn: *sentryDSN}, map[string]string{"component": "secscan"}))
	}
	logger, flush := log.New("secscan", logOpts...)
	defer flush()
	logContext.SetDefaultLogger(logger)

	switch cmd {
	case scanCmd.FullCommand():
		runScan(cfg, *targetKind, *targetValue, *phasesFlag, *includeGlobs, *excludeGlobs, *confidenceThreshold, *basicMode)
	case feedbackCmd.FullCommand():
		runFeedback(cfg, *feedbackPatternID, *feedbackValue, *feedbackFalsePositive)
	}
}

func runFeedback(cfg config.Config, patternID, value string, isFalsePositive bool) {
	store, err := feedback.Open(cfg.FeedbackStorePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening feedback store:", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Record(patternID, value, isFalsePositive, time.Now()); err != nil {
		fmt.Fprintln(os.Stderr, "recording feedback:", err)
		os.Exit(1)
	}
}

func runScan(cfg config.Config, kind, value string, phases, includeGlobs, excludeGlobs []string, confidenceThreshold float64, basic bool) {
	registry, err := pattern.NewRegistry(pattern.DefaultDefs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "compiling pattern registry:", err)
		os.Exit(1)
	}

	store, err := feedback.Open(cfg.FeedbackStorePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening feedback store:", err)
		os.Exit(1)
	}
	defer store.Close()

	monitor := resource.NewMonitor(resource.Config{
		WarningFraction:      cfg.MemoryWarningThreshold,
		CriticalFraction:     cfg.MemoryCriticalThreshold,
		EmergencyFraction:    cfg.MemoryEmergencyThreshold,
		MemoryBudgetBytes:    resource.DefaultConfig.MemoryBudgetBytes,
		MonitoringInterval:   5 * time.Second,
		MaxConcurrentStreams: resource.DefaultConfig.MaxConcurrentStreams,
	}, nil)

	rootCtx := logContext.Background()
	monitorCtx, stopMonitor := logContext.WithCancel(rootCtx)
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	tracker := cleantemp.NewTracker()
	go cleantemp.RunSweepLoop(monitorCtx, cfg.MaxScanAge)

	workers := cfg.WorkerPoolSize
	if workers <= 0 {
		workers = workerpool.DefaultConfig.Workers
	}

	orch := orchestrator.New(orchestrator.Deps{
		AcquisitionCfg: acquisition.Config{
			CloneDepth:       cfg.CloneDepth,
			CloneTimeout:     cfg.CloneTimeout,
			RepoSizeBudget:   cfg.PerRepoSize,
			GlobalTempBudget: cfg.GlobalTempBudget,
			EvictionFraction: 0.80,
		},
		WalkCfg: acquisition.WalkOptions{
			MaxFileSize:  cfg.MaxFileSize,
			ChunkSize:    acquisition.DefaultWalkOptions.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		},
		PoolCfg: workerpool.Config{
			Workers:        workers,
			BatchSize:      cfg.FileBatchSize,
			MaxRetries:     workerpool.DefaultConfig.MaxRetries,
			RetryBaseDelay: workerpool.DefaultConfig.RetryBaseDelay,
		},
		DedupBudget: dedup.Budget{
			TimeBudget:   cfg.DedupTimeBudget,
			MemoryBudget: cfg.DedupMemoryBudget,
			MaxFindings:  cfg.DedupMaxFindings,
		},
		MaxConcurrent: cfg.MaxConcurrentScans,
		RetentionTTL:  cfg.ScanRetentionTTL,
		Registry:      registry,
		Feedback:      store,
		Monitor:       monitor,
		Tracker:       tracker,
		RateLimitCfg:  cfg.RateLimit.ToRateLimit(),
		HeaderClient:  headers.NewClient(headers.Config{Timeout: 15 * time.Second}),
		WorkerMetrics: metrics.NewWorkerPool(),
		DedupMetrics:  metrics.NewDedup(),
	})
	go orch.Run(monitorCtx, time.Minute)

	targetKind := orchestrator.TargetURL
	if kind == "repository" {
		targetKind = orchestrator.TargetRepository
	}
	requestedPhases := resolvePhases(phases, targetKind, basic)

	opts := orchestrator.Options{
		MaxFiles:            cfg.MaxFilesPerScan,
		IncludeGlobs:        includeGlobs,
		ExcludeGlobs:        excludeGlobs,
		ConfidenceThreshold: confidenceThreshold,
		CloneDepth:          cfg.CloneDepth,
		PerScanTimeout:      cfg.PerScanTimeout,
		DisableDedup:        basic,
	}

	id, err := orch.Start(rootCtx, orchestrator.Target{Kind: targetKind, Value: value}, requestedPhases, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "starting scan:", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logContext.Background().Logger().Info("received interrupt, cancelling scan", "scan-id", id)
		_, _ = orch.Cancel(id)
	}()

	for {
		snap, err := orch.Status(id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "querying scan status:", err)
			os.Exit(1)
		}
		if terminal(snap.Status) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	snap, findings, stats, err := orch.Findings(id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetching findings:", err)
		os.Exit(1)
	}

	r := report.Build(snap, findings, stats, registry)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		fmt.Fprintln(os.Stderr, "encoding report:", err)
		os.Exit(1)
	}

	if snap.Status == orchestrator.StatusFailed {
		os.Exit(2)
	}
}

func resolvePhases(requested []string, kind orchestrator.TargetKind, basic bool) []orchestrator.Phase {
	if basic {
		return []orchestrator.Phase{orchestrator.PhaseURL}
	}
	if len(requested) > 0 {
		out := make([]orchestrator.Phase, len(requested))
		for i, p := range requested {
			out[i] = orchestrator.Phase(p)
		}
		return out
	}
	if kind == orchestrator.TargetRepository {
		return []orchestrator.Phase{orchestrator.PhaseRepository, orchestrator.PhaseFiles}
	}
	return []orchestrator.Phase{orchestrator.PhaseHeaders, orchestrator.PhaseURL}
}

func terminal(s orchestrator.Status) bool {
	switch s {
	case orchestrator.StatusCompleted, orchestrator.StatusPartial, orchestrator.StatusFailed, orchestrator.StatusCancelled:
		return true
	default:
		return false
	}
}
