// Package acquisition fetches a target repository and streams its eligible
// files to the pattern engine: URL validation, a shallow accessibility
// probe, a depth-bounded clone under a size budget, and a walker that picks
// a read strategy by file size tier.
package acquisition

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-git/v5"

	logContext "github.com/quietridge/secscan/pkg/context"
	"github.com/quietridge/secscan/pkg/fileclass"
	"github.com/quietridge/secscan/pkg/giturl"
	"github.com/quietridge/secscan/pkg/netguard"
	"github.com/quietridge/secscan/pkg/pathfilter"
	"github.com/quietridge/secscan/pkg/scanerr"
)

// Config bounds one acquisition attempt.
type Config struct {
	CloneDepth       int
	CloneTimeout     time.Duration
	RepoSizeBudget   int64
	GlobalTempBudget int64
	EvictionFraction float64
}

// DefaultConfig matches the spec's defaults.
var DefaultConfig = Config{
	CloneDepth:       1,
	CloneTimeout:     5 * time.Minute,
	RepoSizeBudget:   500 * 1024 * 1024,
	GlobalTempBudget: 2 * 1024 * 1024 * 1024,
	EvictionFraction: 0.80,
}

// TempBudget tracks disk usage against GlobalTempBudget, evicting the
// oldest tracked directories once usage crosses EvictionFraction.
// *cleantemp.Tracker satisfies this interface.
type TempBudget interface {
	TotalBytes() int64
	Oldest() string
	Untrack(dir string) error
	Track(dir string, size int64)
}

// ProbeTimeout bounds the accessibility check's scratch clone.
var ProbeTimeout = 30 * time.Second

// Probe reports whether targetURL is reachable before a full clone is
// attempted: a depth-1 clone into a scratch directory that is discarded
// either way, classifying failure reasons per spec §4.2.
func Probe(ctx logContext.Context, targetURL string) (giturl.Repository, error) {
	repo, err := giturl.Parse(targetURL)
	if err != nil {
		return giturl.Repository{}, err
	}
	host := "github.com"
	if repo.Platform == giturl.GitLab {
		host = "gitlab.com"
	}
	if err := netguard.CheckHost(host); err != nil {
		return giturl.Repository{}, scanerr.Wrap(scanerr.RepositoryAccessDenied, err,
			"target host rejected", map[string]any{"host": host})
	}

	scratch, err := os.MkdirTemp("", "secscan-probe-*")
	if err != nil {
		return giturl.Repository{}, scanerr.Wrap(scanerr.RepositoryAccessError, err, "allocating probe scratch dir", nil)
	}
	defer os.RemoveAll(scratch)

	cctx, cancel := logContext.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	_, err = git.PlainCloneContext(cctx, scratch, false, &git.CloneOptions{
		URL: repo.CloneURL, Depth: 1, SingleBranch: true, Tags: git.NoTags,
	})
	if err == nil {
		return repo, nil
	}
	if cctx.Err() != nil {
		return repo, scanerr.Wrap(scanerr.RepositoryTimeout, err, "probing repository timed out", nil)
	}
	return repo, classifyRepoError(repo, err)
}

func classifyRepoError(repo giturl.Repository, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "repository not found"):
		return scanerr.Wrap(scanerr.RepositoryNotFound, err,
			fmt.Sprintf("repository %s/%s not found", repo.Owner, repo.Repo), nil)
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "permission") || strings.Contains(msg, "403"):
		return scanerr.Wrap(scanerr.RepositoryAccessDenied, err, "access denied to repository", nil)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline"):
		return scanerr.Wrap(scanerr.RepositoryTimeout, err, "probing repository timed out", nil)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "network is unreachable"):
		return scanerr.Wrap(scanerr.NetworkError, err, "network error reaching repository", nil)
	default:
		return scanerr.Wrap(scanerr.RepositoryAccessError, err, "probing repository failed", nil)
	}
}

// Clone performs a bounded, shallow clone of repo into a freshly allocated
// temp directory, enforcing cfg.RepoSizeBudget after the clone completes.
// On any failure (including a budget overrun), dir is removed before Clone
// returns.
func Clone(ctx logContext.Context, repo giturl.Repository, dir string, cfg Config) error {
	cctx, cancel := logContext.WithTimeout(ctx, cfg.CloneTimeout)
	defer cancel()

	_, err := git.PlainCloneContext(cctx, dir, false, &git.CloneOptions{
		URL:          repo.CloneURL,
		Depth:        cfg.CloneDepth,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		if cctx.Err() != nil {
			return scanerr.Wrap(scanerr.RepositoryTimeout, err, "clone exceeded time budget", nil)
		}
		return classifyRepoError(repo, err)
	}

	size, err := dirSize(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return scanerr.Wrap(scanerr.RepositoryAccessError, err, "measuring cloned repository size", nil)
	}
	if size > cfg.RepoSizeBudget {
		_ = os.RemoveAll(dir)
		return scanerr.New(scanerr.RepositoryTooLarge,
			fmt.Sprintf("repository size %s exceeds budget %s",
				humanize.Bytes(uint64(size)), humanize.Bytes(uint64(cfg.RepoSizeBudget))),
			map[string]any{"size_bytes": size, "budget_bytes": cfg.RepoSizeBudget})
	}
	return nil
}

// EnforceGlobalBudget evicts the oldest tracked temp directories until
// usage falls back under cfg.EvictionFraction of cfg.GlobalTempBudget.
func EnforceGlobalBudget(budget TempBudget, cfg Config) {
	threshold := int64(float64(cfg.GlobalTempBudget) * cfg.EvictionFraction)
	for budget.TotalBytes() > threshold {
		oldest := budget.Oldest()
		if oldest == "" {
			return
		}
		_ = budget.Untrack(oldest)
	}
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
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

// AlwaysExcludeGlobs is the walker's unconditional path blacklist (spec
// §4.2 step 1), applied before the caller's own include/exclude patterns.
var AlwaysExcludeGlobs = []string{
	"**/node_modules/**", "**/.git/**", "**/dist/**", "**/build/**",
	"**/coverage/**", "**/*.min.js", "**/*.bundle.js", "**/vendor/**",
	"**/third_party/**", "**/.next/**", "**/target/**",
}

// Strategy is the walker's per-file read strategy, chosen by size tier
// (spec §4.2 "Streaming policy").
type Strategy int

const (
	StrategyInMemory Strategy = iota
	StrategyChunked
	StrategyStreaming
)

func (s Strategy) String() string {
	switch s {
	case StrategyChunked:
		return "chunked"
	case StrategyStreaming:
		return "streaming"
	default:
		return "in-memory"
	}
}

const (
	largeFileThreshold = 50 * 1024 * 1024  // 50 MiB: in-memory -> chunked boundary
	streamingThreshold  = 100 * 1024 * 1024 // 100 MiB: chunked -> streaming boundary
)

// StrategyFor picks a read strategy for a file of the given size.
func StrategyFor(size int64) Strategy {
	switch {
	case size >= streamingThreshold:
		return StrategyStreaming
	case size >= largeFileThreshold:
		return StrategyChunked
	default:
		return StrategyInMemory
	}
}

// FileUnit is one walker-eligible file, ready for pattern scanning.
type FileUnit struct {
	Path     string // absolute path on disk
	RelPath  string // path relative to the repository root (logical path)
	Size     int64
	Strategy Strategy
}

// Chunk is one overlapping window of file content, carrying its byte
// offset within the file so downstream match locations are file-relative.
type Chunk struct {
	Data       []byte
	ByteOffset int
}

// SkipNotice records a file the walker declined to read, for the "low
// severity file-read-error"/"informational large-file-skipped" findings
// spec §4.2 and §7 call for.
type SkipNotice struct {
	RelPath string
	Reason  string // "large-file-skipped" | "file-read-error" | "excluded"
	Err     error
}

// WalkOptions configures Walk's file selection and chunking.
type WalkOptions struct {
	Filter       *pathfilter.Filter // caller-supplied include/exclude (spec step 3)
	MaxFileSize  int64              // per-file ceiling (spec step 4); 0 uses DefaultWalkOptions'
	ChunkSize    int
	ChunkOverlap int
}

const (
	defaultMaxFileSize = 10 * 1024 * 1024 // 10 MiB
	defaultChunkSize   = 1 * 1024 * 1024  // 1 MiB, within the 16 KiB-1 MiB band
	defaultOverlap     = 1024             // 1 KiB
)

// DefaultWalkOptions applies the spec's default file size ceiling, chunk
// size, and overlap.
var DefaultWalkOptions = WalkOptions{
	MaxFileSize:  defaultMaxFileSize,
	ChunkSize:    defaultChunkSize,
	ChunkOverlap: defaultOverlap,
}

// WalkStats summarizes one walk for the scan's deduplication/progress
// reporting.
type WalkStats struct {
	Visited  int
	Skipped  int
	Chunked  int
	Streamed int
}

// Visitor receives every eligible file the walker produces. onFile handles
// in-memory reads (the whole buffer at once); onChunk handles chunked and
// streaming reads (one overlapping window at a time, same callback for
// both tiers — the caller doesn't need to tell them apart to scan a
// window, only StrategyFor's classification determines the read path
// above).
type Visitor struct {
	OnFile  func(FileUnit, []byte) error
	OnChunk func(FileUnit, Chunk) error
	OnSkip  func(SkipNotice)
}

func normalizedOpts(opts WalkOptions) WalkOptions {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultWalkOptions.ChunkSize
	}
	if opts.ChunkOverlap == 0 {
		opts.ChunkOverlap = DefaultWalkOptions.ChunkOverlap
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultWalkOptions.MaxFileSize
	}
	return opts
}

// List walks root and returns every eligible FileUnit (spec §4.2 steps 1-4),
// without reading any file content — the caller (typically the worker pool)
// owns reads so it can retry them independently per file. Excluded and
// oversized files are reported as SkipNotices instead of FileUnits.
func List(root string, opts WalkOptions) ([]FileUnit, []SkipNotice, error) {
	opts = normalizedOpts(opts)
	alwaysExclude, err := pathfilter.New(pathfilter.WithExclude(AlwaysExcludeGlobs...))
	if err != nil {
		return nil, nil, err
	}

	var units []FileUnit
	var skips []SkipNotice

	walkErr := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		rel = filepath.ToSlash(rel)

		switch {
		case !alwaysExclude.Allow(rel), !fileclass.Eligible(rel), fileclass.Skip(rel), fileclass.Binary(rel):
			skips = append(skips, SkipNotice{RelPath: rel, Reason: "excluded"})
			return nil
		case opts.Filter != nil && !opts.Filter.Allow(rel):
			skips = append(skips, SkipNotice{RelPath: rel, Reason: "excluded"})
			return nil
		case info.Size() > opts.MaxFileSize:
			skips = append(skips, SkipNotice{RelPath: rel, Reason: "large-file-skipped"})
			return nil
		}

		units = append(units, FileUnit{Path: p, RelPath: rel, Size: info.Size(), Strategy: StrategyFor(info.Size())})
		return nil
	})
	return units, skips, walkErr
}

// ReadWhole reads an in-memory-tier file in full.
func ReadWhole(unit FileUnit) ([]byte, error) {
	return os.ReadFile(unit.Path)
}

// ReadChunked streams a chunked/streaming-tier file through onChunk, carrying
// opts.ChunkOverlap bytes of context between windows.
func ReadChunked(unit FileUnit, opts WalkOptions, onChunk func(Chunk) error) error {
	opts = normalizedOpts(opts)
	return walkChunked(unit, opts, func(_ FileUnit, c Chunk) error { return onChunk(c) })
}

// Walk visits every eligible file under root, applying the always-exclude
// glob blacklist, the extension whitelist, the caller's own include/exclude
// filter, and the per-file size ceiling, in that order (spec §4.2 steps
// 1-4). Oversized files are not read; Visitor.OnSkip is called with
// "large-file-skipped" instead. Walk reads file content itself; callers
// that need per-file retry (the worker pool) should use List plus
// ReadWhole/ReadChunked instead.
func Walk(root string, opts WalkOptions, v Visitor) (WalkStats, error) {
	var stats WalkStats
	opts = normalizedOpts(opts)

	units, skips, err := List(root, opts)
	for _, s := range skips {
		stats.Skipped++
		notifySkip(v, s.RelPath, s.Reason, s.Err)
	}
	if err != nil {
		return stats, err
	}

	for _, unit := range units {
		switch unit.Strategy {
		case StrategyInMemory:
			data, readErr := ReadWhole(unit)
			if readErr != nil {
				stats.Skipped++
				notifySkip(v, unit.RelPath, "file-read-error", readErr)
				continue
			}
			stats.Visited++
			if v.OnFile != nil {
				if err := v.OnFile(unit, data); err != nil {
					return stats, err
				}
			}
		case StrategyChunked, StrategyStreaming:
			if unit.Strategy == StrategyChunked {
				stats.Chunked++
			} else {
				stats.Streamed++
			}
			stats.Visited++
			readErr := ReadChunked(unit, opts, func(c Chunk) error {
				if v.OnChunk != nil {
					return v.OnChunk(unit, c)
				}
				return nil
			})
			if readErr != nil {
				notifySkip(v, unit.RelPath, "file-read-error", readErr)
			}
		}
	}
	return stats, nil
}

func notifySkip(v Visitor, rel, reason string, err error) {
	if v.OnSkip != nil {
		v.OnSkip(SkipNotice{RelPath: rel, Reason: reason, Err: err})
	}
}

// walkChunked streams unit in opts.ChunkSize windows, carrying forward
// opts.ChunkOverlap bytes between windows so patterns spanning a chunk
// boundary are not lost.
func walkChunked(unit FileUnit, opts WalkOptions, onChunk func(FileUnit, Chunk) error) error {
	f, err := os.Open(unit.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, opts.ChunkSize)
	var offset int
	var carry []byte

	if onChunk == nil {
		return nil
	}

	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			window := append(append([]byte(nil), carry...), buf[:n]...)
			chunkStart := offset - len(carry)
			if err := onChunk(unit, Chunk{Data: window, ByteOffset: chunkStart}); err != nil {
				return err
			}
			offset += n
			if len(window) > opts.ChunkOverlap {
				carry = append([]byte(nil), window[len(window)-opts.ChunkOverlap:]...)
			} else {
				carry = window
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
