// Package resource watches process memory and concurrent-stream usage
// during a scan, classifying pressure into warning/critical/emergency
// thresholds so the orchestrator and worker pool can shed load gracefully
// instead of being killed by the OS.
package resource

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	logContext "github.com/quietridge/secscan/pkg/context"
)

// Level is a resource-pressure tier.
type Level int

const (
	Normal Level = iota
	Warning
	Critical
	Emergency
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	case Emergency:
		return "emergency"
	default:
		return "normal"
	}
}

// Config tunes the thresholds and sampling interval.
type Config struct {
	WarningFraction    float64 // of MemoryBudgetBytes
	CriticalFraction   float64
	EmergencyFraction  float64
	MemoryBudgetBytes  int64
	MonitoringInterval time.Duration
	MaxConcurrentStreams int
}

// DefaultConfig matches the spec's defaults.
var DefaultConfig = Config{
	WarningFraction:      0.80,
	CriticalFraction:     0.90,
	EmergencyFraction:    0.95,
	MemoryBudgetBytes:    1 << 30, // 1 GiB
	MonitoringInterval:   5 * time.Second,
	MaxConcurrentStreams: 5,
}

// Sample is one point-in-time reading.
type Sample struct {
	At           time.Time
	RSSBytes     int64
	SystemUsed   float64 // fraction of total system memory in use
	OpenStreams  int
	Level        Level
}

// Monitor samples process RSS and system memory pressure on an interval and
// tracks how many concurrent file streams the walker/worker pool currently
// hold open.
type Monitor struct {
	cfg Config
	pid int32

	mu          sync.Mutex
	openStreams int
	last        Sample

	transitions chan Level
}

// NewMonitor builds a Monitor for the current process. transitions may be
// nil; if non-nil it receives one Level every time the observed level
// changes (a dropping, buffered channel — callers that care should drain
// it promptly).
func NewMonitor(cfg Config, transitions chan Level) *Monitor {
	return &Monitor{cfg: cfg, pid: int32(os.Getpid()), transitions: transitions}
}

// AcquireStream registers one open file stream, returning a release func.
// It returns ok=false if the concurrent-stream cap is already reached.
func (m *Monitor) AcquireStream() (release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openStreams >= m.cfg.MaxConcurrentStreams {
		return func() {}, false
	}
	m.openStreams++
	return m.releaseOnce(), true
}

func (m *Monitor) releaseOnce() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.openStreams > 0 {
				m.openStreams--
			}
			m.mu.Unlock()
		})
	}
}

// Sample takes one reading now, classifying it against the configured
// thresholds.
func (m *Monitor) Sample() (Sample, error) {
	now := time.Now()
	var rss int64
	if proc, err := process.NewProcess(m.pid); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			rss = int64(info.RSS)
		}
	}

	sysUsed := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		sysUsed = vm.UsedPercent / 100
	}

	m.mu.Lock()
	streams := m.openStreams
	m.mu.Unlock()

	fraction := 0.0
	if m.cfg.MemoryBudgetBytes > 0 {
		fraction = float64(rss) / float64(m.cfg.MemoryBudgetBytes)
	}

	s := Sample{
		At:          now,
		RSSBytes:    rss,
		SystemUsed:  sysUsed,
		OpenStreams: streams,
		Level:       classify(fraction, m.cfg),
	}

	m.mu.Lock()
	prev := m.last.Level
	m.last = s
	m.mu.Unlock()

	if s.Level != prev {
		m.publish(s.Level)
	}
	return s, nil
}

func classify(fraction float64, cfg Config) Level {
	switch {
	case fraction >= cfg.EmergencyFraction:
		return Emergency
	case fraction >= cfg.CriticalFraction:
		return Critical
	case fraction >= cfg.WarningFraction:
		return Warning
	default:
		return Normal
	}
}

func (m *Monitor) publish(l Level) {
	if m.transitions == nil {
		return
	}
	select {
	case m.transitions <- l:
	default:
	}
}

// Last returns the most recent sample taken, without sampling again.
func (m *Monitor) Last() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Run samples on cfg.MonitoringInterval until ctx is done, logging every
// level transition.
func (m *Monitor) Run(ctx logContext.Context) {
	ticker := time.NewTicker(m.cfg.MonitoringInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			prev := m.Last().Level
			s, err := m.Sample()
			if err != nil {
				ctx.Logger().Error(err, "resource sampling failed")
				continue
			}
			if s.Level != prev {
				ctx.Logger().Info("resource pressure level changed",
					"from", prev.String(), "to", s.Level.String(),
					"rss_bytes", s.RSSBytes, "open_streams", s.OpenStreams)
			}
		case <-ctx.Done():
			return
		}
	}
}
