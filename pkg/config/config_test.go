package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
)

func TestLoadYAML_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadYAML(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg != Default {
		t.Errorf("expected Default config for missing file, got %+v", cfg)
	}
}

func TestLoadYAML_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secscan.yaml")
	if err := os.WriteFile(path, []byte(`
max-files-per-scan: 50
feedback-store-path: "$SECSCAN_HOME/feedback.jsonl"
`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SECSCAN_HOME", "/var/lib/secscan")

	cfg, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg.MaxFilesPerScan != 50 {
		t.Errorf("MaxFilesPerScan = %d, want 50", cfg.MaxFilesPerScan)
	}
	if cfg.FeedbackStorePath != "/var/lib/secscan/feedback.jsonl" {
		t.Errorf("FeedbackStorePath = %q, want expanded path", cfg.FeedbackStorePath)
	}
	// Untouched fields keep their defaults.
	if cfg.PerScanTimeout != Default.PerScanTimeout {
		t.Errorf("PerScanTimeout = %v, want untouched default %v", cfg.PerScanTimeout, Default.PerScanTimeout)
	}
}

func TestFlags_CLIOverridesYAML(t *testing.T) {
	cfg := Default
	cfg.MaxFilesPerScan = 50 // pretend this came from YAML

	app := kingpin.New("secscan-test", "")
	Flags(app, &cfg)

	if _, err := app.Parse([]string{"--max-files-per-scan=9"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MaxFilesPerScan != 9 {
		t.Errorf("MaxFilesPerScan = %d, want 9 (CLI override)", cfg.MaxFilesPerScan)
	}
}

func TestFlags_DefaultDurationRoundTrips(t *testing.T) {
	cfg := Default
	app := kingpin.New("secscan-test", "")
	Flags(app, &cfg)

	if _, err := app.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.PerScanTimeout != 600*time.Second {
		t.Errorf("PerScanTimeout = %v, want 600s", cfg.PerScanTimeout)
	}
}

func TestRateLimitConfig_ToRateLimit(t *testing.T) {
	rl := Default.RateLimit.ToRateLimit()
	if rl.RequestsPerSecond != Default.RateLimit.RequestsPerSecond {
		t.Errorf("RequestsPerSecond mismatch: %v vs %v", rl.RequestsPerSecond, Default.RateLimit.RequestsPerSecond)
	}
	if string(rl.Strategy) != Default.RateLimit.Strategy {
		t.Errorf("Strategy mismatch: %v vs %v", rl.Strategy, Default.RateLimit.Strategy)
	}
}
