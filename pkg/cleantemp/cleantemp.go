// Package cleantemp tracks and sweeps the temporary clone directories the
// acquisition package creates, so an aborted process never leaves a
// clone_<scan-id> directory behind.
package cleantemp

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	logContext "github.com/quietridge/secscan/pkg/context"
)

const dirPrefix = "secscan"

// cloneDirRE matches clone_<scan-id>-<pid>-<rand> directories created by
// MkdirForScan.
var cloneDirRE = regexp.MustCompile(`^` + dirPrefix + `-\d+-\w+$`)

// MkdirForScan returns a fresh temp directory reserved for one scan's clone,
// named so CleanOrphans can recognize and sweep it later.
func MkdirForScan() (string, error) {
	pid := os.Getpid()
	pattern := fmt.Sprintf("%s-%d-", dirPrefix, pid)
	dir, err := os.MkdirTemp(os.TempDir(), pattern)
	if err != nil {
		return "", fmt.Errorf("creating scan temp dir: %w", err)
	}
	return dir, nil
}

// Tracker records every temp directory this process has created, along with
// its creation time, so a periodic sweep can evict the oldest ones under
// global disk pressure without re-walking the filesystem each time.
type Tracker struct {
	mu    chan struct{} // 1-buffered mutex; see lock/unlock below
	dirs  map[string]time.Time
	sizes map[string]int64
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	t := &Tracker{mu: make(chan struct{}, 1), dirs: make(map[string]time.Time), sizes: make(map[string]int64)}
	t.mu <- struct{}{}
	return t
}

func (t *Tracker) lock()   { <-t.mu }
func (t *Tracker) unlock() { t.mu <- struct{}{} }

// Track registers dir as owned by a scan, created now, sized size bytes.
func (t *Tracker) Track(dir string, size int64) {
	t.lock()
	defer t.unlock()
	t.dirs[dir] = time.Now()
	t.sizes[dir] = size
}

// Untrack forgets dir and removes it from disk.
func (t *Tracker) Untrack(dir string) error {
	t.lock()
	delete(t.dirs, dir)
	delete(t.sizes, dir)
	t.unlock()
	return os.RemoveAll(dir)
}

// TotalBytes sums the tracked size of every live directory.
func (t *Tracker) TotalBytes() int64 {
	t.lock()
	defer t.unlock()
	var total int64
	for _, sz := range t.sizes {
		total += sz
	}
	return total
}

// Oldest returns the tracked directory with the earliest creation time, or
// "" if nothing is tracked.
func (t *Tracker) Oldest() string {
	t.lock()
	defer t.unlock()
	var oldest string
	var oldestAt time.Time
	for d, at := range t.dirs {
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = d, at
		}
	}
	return oldest
}

// OlderThan returns every tracked directory created before cutoff.
func (t *Tracker) OlderThan(cutoff time.Time) []string {
	t.lock()
	defer t.unlock()
	var out []string
	for d, at := range t.dirs {
		if at.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out
}

// CleanOrphans removes secscan-owned temp directories left behind by process
// crashes: directories matching the naming scheme whose embedded PID does not
// belong to any currently running secscan process.
func CleanOrphans(ctx logContext.Context) error {
	const defaultExecName = "secscan"
	executablePath, err := os.Executable()
	execName := defaultExecName
	if err == nil {
		execName = filepath.Base(executablePath)
	}

	livePIDs := make(map[string]struct{})
	procs, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}
	for _, proc := range procs {
		if proc.Executable() == execName {
			livePIDs[strconv.Itoa(proc.Pid())] = struct{}{}
		}
	}

	tempDir := os.TempDir()
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return fmt.Errorf("reading temp dir: %w", err)
	}

	for _, entry := range entries {
		if !cloneDirRE.MatchString(entry.Name()) {
			continue
		}
		if ownedByLivePID(entry.Name(), livePIDs) {
			continue
		}
		dirPath := filepath.Join(tempDir, entry.Name())
		if err := os.RemoveAll(dirPath); err != nil {
			return fmt.Errorf("deleting orphaned temp directory %s: %w", dirPath, err)
		}
		ctx.Logger().V(1).Info("swept orphaned temp directory", "directory", dirPath)
	}
	return nil
}

func ownedByLivePID(dirName string, livePIDs map[string]struct{}) bool {
	for pid := range livePIDs {
		if strings.Contains(dirName, "-"+pid+"-") {
			return true
		}
	}
	return false
}

// RunSweepLoop runs CleanOrphans on a fixed interval until ctx is done.
func RunSweepLoop(ctx logContext.Context, interval time.Duration) {
	if err := CleanOrphans(ctx); err != nil {
		ctx.Logger().Error(err, "error sweeping orphaned temp directories")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := CleanOrphans(ctx); err != nil {
				ctx.Logger().Error(err, "error sweeping orphaned temp directories")
			}
		case <-ctx.Done():
			ctx.Logger().Info("temp dir sweep loop exiting", "cause", ctx.Err())
			return
		}
	}
}
