// Package config loads the scan substrate's tunables (spec §6
// "Configuration") from an optional YAML file, merges them with CLI flags
// parsed by kingpin, and expands $VAR / ${VAR} references in string values
// against the process environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"github.com/quietridge/secscan/pkg/ratelimit"
)

// Config is the full set of recognized options from spec §6, with every
// field carrying the spec's default.
type Config struct {
	MaxFilesPerScan int           `yaml:"max-files-per-scan"`
	MaxFileSize     int64         `yaml:"max-file-size"`
	CloneDepth      int           `yaml:"clone-depth"`
	PerScanTimeout  time.Duration `yaml:"per-scan-timeout"`
	CloneTimeout    time.Duration `yaml:"clone-timeout"`

	PerRepoSize        int64 `yaml:"per-repo-size"`
	GlobalTempBudget   int64 `yaml:"global-temp-budget"`
	MaxConcurrentScans int   `yaml:"max-concurrent-scans"`

	ScanRetentionTTL time.Duration `yaml:"scan-retention-ttl"`
	MaxScanAge       time.Duration `yaml:"max-scan-age"`

	WorkerPoolSize     int   `yaml:"worker-pool-size"`
	FileBatchSize      int   `yaml:"file-batch-size"`
	StreamingThreshold int64 `yaml:"streaming-threshold"`
	LargeFileThreshold int64 `yaml:"large-file-threshold"`
	ChunkOverlap       int   `yaml:"chunk-overlap"`

	MemoryWarningThreshold   float64 `yaml:"memory-warning-threshold"`
	MemoryCriticalThreshold  float64 `yaml:"memory-critical-threshold"`
	MemoryEmergencyThreshold float64 `yaml:"memory-emergency-threshold"`

	DedupTimeBudget   time.Duration `yaml:"dedup-time-budget"`
	DedupMemoryBudget int64         `yaml:"dedup-memory-budget"`
	DedupMaxFindings  int           `yaml:"dedup-max-findings"`

	// RateLimit seeds every outbound target's bucket; per-target overrides
	// are not part of the static config surface (spec §4.5 describes one
	// config shape reused per bucket).
	RateLimit RateLimitConfig `yaml:"rate-limit"`

	// ConfidenceWeights surfaces the §4.4 adjustment coefficients as tunable
	// defaults per the spec's own Open Question guidance ("implementers
	// should expose them as configuration, not mandates"). pkg/confidence's
	// adjustments are presently fixed constants; this is the recorded
	// config surface for a future pass that threads these through, not
	// wired into Score today.
	ConfidenceWeights ConfidenceWeights `yaml:"confidence-weights"`

	FeedbackStorePath string        `yaml:"feedback-store-path"`
	DrainTimeout      time.Duration `yaml:"drain-timeout"`
}

// RateLimitConfig mirrors pkg/ratelimit.Config with YAML tags; ToRateLimit
// converts it to the type the rate limiter package actually consumes.
type RateLimitConfig struct {
	RequestsPerSecond        float64 `yaml:"requests-per-second"`
	BurstLimit               int     `yaml:"burst-limit"`
	Strategy                 string  `yaml:"backoff-strategy"`
	BaseBackoff              time.Duration `yaml:"base-backoff"`
	MaxBackoff               time.Duration `yaml:"max-backoff"`
	TargetErrorRate          float64 `yaml:"target-error-rate"`
	AdaptiveAdjustmentFactor float64 `yaml:"adaptive-adjustment-factor"`
	Adaptive                 bool    `yaml:"adaptive"`
}

// ToRateLimit converts to pkg/ratelimit.Config.
func (r RateLimitConfig) ToRateLimit() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerSecond:        r.RequestsPerSecond,
		BurstLimit:               r.BurstLimit,
		Strategy:                 ratelimit.Strategy(r.Strategy),
		BaseBackoff:              r.BaseBackoff,
		MaxBackoff:               r.MaxBackoff,
		TargetErrorRate:          r.TargetErrorRate,
		AdaptiveAdjustmentFactor: r.AdaptiveAdjustmentFactor,
		Adaptive:                 r.Adaptive,
	}
}

// ConfidenceWeights is the recorded config surface for §4.4's additive
// adjustment coefficients.
type ConfidenceWeights struct {
	ContextAssignment    float64 `yaml:"context-assignment"`
	ContextEnvAccessor    float64 `yaml:"context-env-accessor"`
	ContextConfigKey      float64 `yaml:"context-config-key"`
	ContextPlaceholder    float64 `yaml:"context-placeholder"`
	ContextComment        float64 `yaml:"context-comment"`
	ValidatorSuccess      float64 `yaml:"validator-success"`
	ValidatorFailure      float64 `yaml:"validator-failure"`
	ValidatorError        float64 `yaml:"validator-error"`
	LearningFalsePositive float64 `yaml:"learning-false-positive"`
	LearningTruePositive  float64 `yaml:"learning-true-positive"`
}

// DefaultConfidenceWeights matches the coefficients pkg/confidence.Score
// currently applies as compiled-in constants.
var DefaultConfidenceWeights = ConfidenceWeights{
	ContextAssignment:     0.15,
	ContextEnvAccessor:    0.20,
	ContextConfigKey:      0.10,
	ContextPlaceholder:    -0.30,
	ContextComment:        -0.20,
	ValidatorSuccess:      0.15,
	ValidatorFailure:      -0.15,
	ValidatorError:        -0.075,
	LearningFalsePositive: 0.3,
	LearningTruePositive:  1.2,
}

// Default matches every default named in spec §6 and §4.5.
var Default = Config{
	MaxFilesPerScan: 1000,
	MaxFileSize:     10 * 1024 * 1024,
	CloneDepth:      1,
	PerScanTimeout:  600 * time.Second,
	CloneTimeout:    300 * time.Second,

	PerRepoSize:        500 * 1024 * 1024,
	GlobalTempBudget:   2 * 1024 * 1024 * 1024,
	MaxConcurrentScans: 5,

	ScanRetentionTTL: 7200 * time.Second,
	MaxScanAge:       7200 * time.Second,

	WorkerPoolSize:     0, // 0 means min(cpus,4); resolved by pkg/workerpool.DefaultConfig
	FileBatchSize:      20,
	StreamingThreshold: 100 * 1024 * 1024,
	LargeFileThreshold: 50 * 1024 * 1024,
	ChunkOverlap:       1024,

	MemoryWarningThreshold:   0.8,
	MemoryCriticalThreshold:  0.9,
	MemoryEmergencyThreshold: 0.95,

	DedupTimeBudget:   5 * time.Second,
	DedupMemoryBudget: 256 * 1024 * 1024,
	DedupMaxFindings:  10_000,

	RateLimit: RateLimitConfig{
		RequestsPerSecond:        5,
		BurstLimit:               10,
		Strategy:                 "exponential",
		BaseBackoff:              500 * time.Millisecond,
		MaxBackoff:               30 * time.Second,
		TargetErrorRate:          0.05,
		AdaptiveAdjustmentFactor: 0.8,
		Adaptive:                 true,
	},

	ConfidenceWeights: DefaultConfidenceWeights,

	FeedbackStorePath: "secscan-feedback.jsonl",
	DrainTimeout:      30 * time.Second,
}

// LoadYAML reads path, expanding $VAR/${VAR} references in every string
// scalar against the process environment, and overlays the result onto
// Default. A missing file is not an error — Default alone is returned.
func LoadYAML(path string) (Config, error) {
	cfg := Default
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	expanded := ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Default, err
	}
	return cfg, nil
}

// Flags registers every config option as a kingpin flag against app,
// defaulting to whatever is already in cfg (so YAML-loaded values become
// the flags' own defaults, and CLI flags take final precedence once
// app.Parse runs). Call this after LoadYAML and before app.Parse.
func Flags(app *kingpin.Application, cfg *Config) {
	app.Flag("max-files-per-scan", "Maximum files scanned per scan.").
		Default(strconv.Itoa(cfg.MaxFilesPerScan)).IntVar(&cfg.MaxFilesPerScan)
	app.Flag("max-file-size", "Per-file size ceiling in bytes.").
		Default(strconv.FormatInt(cfg.MaxFileSize, 10)).Int64Var(&cfg.MaxFileSize)
	app.Flag("clone-depth", "Git clone depth.").
		Default(strconv.Itoa(cfg.CloneDepth)).IntVar(&cfg.CloneDepth)
	app.Flag("per-scan-timeout", "Overall scan wall-clock budget.").
		Default(cfg.PerScanTimeout.String()).DurationVar(&cfg.PerScanTimeout)
	app.Flag("clone-timeout", "Clone time budget.").
		Default(cfg.CloneTimeout.String()).DurationVar(&cfg.CloneTimeout)
	app.Flag("per-repo-size", "Per-repository size budget in bytes.").
		Default(strconv.FormatInt(cfg.PerRepoSize, 10)).Int64Var(&cfg.PerRepoSize)
	app.Flag("global-temp-budget", "Global temp-directory budget in bytes.").
		Default(strconv.FormatInt(cfg.GlobalTempBudget, 10)).Int64Var(&cfg.GlobalTempBudget)
	app.Flag("max-concurrent-scans", "Concurrent-scan admission cap.").
		Default(strconv.Itoa(cfg.MaxConcurrentScans)).IntVar(&cfg.MaxConcurrentScans)
	app.Flag("scan-retention-ttl", "How long terminated scans stay queryable.").
		Default(cfg.ScanRetentionTTL.String()).DurationVar(&cfg.ScanRetentionTTL)
	app.Flag("max-scan-age", "Sweep interval for orphaned clones.").
		Default(cfg.MaxScanAge.String()).DurationVar(&cfg.MaxScanAge)
	app.Flag("worker-pool-size", "File-scan worker count (0 = min(cpus,4)).").
		Default(strconv.Itoa(cfg.WorkerPoolSize)).IntVar(&cfg.WorkerPoolSize)
	app.Flag("file-batch-size", "Files submitted per worker-pool batch.").
		Default(strconv.Itoa(cfg.FileBatchSize)).IntVar(&cfg.FileBatchSize)
	app.Flag("streaming-threshold", "File size at or above which streaming reads apply.").
		Default(strconv.FormatInt(cfg.StreamingThreshold, 10)).Int64Var(&cfg.StreamingThreshold)
	app.Flag("large-file-threshold", "File size at or above which chunked reads apply.").
		Default(strconv.FormatInt(cfg.LargeFileThreshold, 10)).Int64Var(&cfg.LargeFileThreshold)
	app.Flag("chunk-overlap", "Overlap window between chunked reads, in bytes.").
		Default(strconv.Itoa(cfg.ChunkOverlap)).IntVar(&cfg.ChunkOverlap)
	app.Flag("memory-warning-threshold", "RSS fraction of budget that triggers warning.").
		Default(strconv.FormatFloat(cfg.MemoryWarningThreshold, 'f', -1, 64)).Float64Var(&cfg.MemoryWarningThreshold)
	app.Flag("memory-critical-threshold", "RSS fraction of budget that triggers critical.").
		Default(strconv.FormatFloat(cfg.MemoryCriticalThreshold, 'f', -1, 64)).Float64Var(&cfg.MemoryCriticalThreshold)
	app.Flag("memory-emergency-threshold", "RSS fraction of budget that triggers emergency mode.").
		Default(strconv.FormatFloat(cfg.MemoryEmergencyThreshold, 'f', -1, 64)).Float64Var(&cfg.MemoryEmergencyThreshold)
	app.Flag("dedup-time-budget", "Deduplication time budget before fallback.").
		Default(cfg.DedupTimeBudget.String()).DurationVar(&cfg.DedupTimeBudget)
	app.Flag("dedup-memory-budget", "Deduplication memory budget in bytes before fallback.").
		Default(strconv.FormatInt(cfg.DedupMemoryBudget, 10)).Int64Var(&cfg.DedupMemoryBudget)
	app.Flag("dedup-max-findings", "Finding count above which deduplication falls back.").
		Default(strconv.Itoa(cfg.DedupMaxFindings)).IntVar(&cfg.DedupMaxFindings)
	app.Flag("feedback-store-path", "Path to the append-only feedback JSONL file.").
		Default(cfg.FeedbackStorePath).StringVar(&cfg.FeedbackStorePath)
	app.Flag("drain-timeout", "Graceful-shutdown drain timeout.").
		Default(cfg.DrainTimeout.String()).DurationVar(&cfg.DrainTimeout)
}

