package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultMatchesReferenceBehaviour(t *testing.T) {
	cfg := Default()
	if cfg.Sampling.EveryNth != 30 {
		t.Errorf("EveryNth = %d, want 30", cfg.Sampling.EveryNth)
	}
	if cfg.Sampling.IncludeFirst {
		t.Error("IncludeFirst should default to false (strict modulo)")
	}
	if got := cfg.Detector.EffectiveScale(); got != 0.25 {
		t.Errorf("EffectiveScale() = %v, want 0.25", got)
	}
	if cfg.Detector.Tolerance != 0.6 {
		t.Errorf("Tolerance = %v, want 0.6", cfg.Detector.Tolerance)
	}
	if cfg.Detector.TieBreak != "first" {
		t.Errorf("TieBreak = %q, want first", cfg.Detector.TieBreak)
	}
	if cfg.Capture.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0", cfg.Capture.ReconnectAttempts)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollcall.yaml")
	content := `
mode: presence
source: rtsp://cam/1
sampling:
  every_nth: 10
  interval: 2s
detector:
  backend: cascade
  min_neighbors: 3
ledger:
  path: presence.xlsx
capture:
  reconnect_attempts: 4
  reconnect_delay: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mode != ModePresence {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Sampling.EveryNth != 10 || cfg.Sampling.Interval != 2*time.Second {
		t.Errorf("Sampling = %+v", cfg.Sampling)
	}
	if cfg.Detector.Backend != "cascade" || cfg.Detector.MinNeighbors != 3 {
		t.Errorf("Detector = %+v", cfg.Detector)
	}
	// Untouched keys keep their defaults
	if cfg.Detector.ScaleFactor != 1.1 {
		t.Errorf("ScaleFactor default lost, got %v", cfg.Detector.ScaleFactor)
	}
	if cfg.Capture.ReconnectAttempts != 4 || cfg.Capture.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())

	// Implicit default path may be absent
	if _, err := Load(""); err != nil {
		t.Errorf("Expected defaults when rollcall.yaml is absent, got %v", err)
	}

	// An explicit path must exist
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Error("Expected error for explicit missing config")
	}
}

func TestEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ROLLCALL_SOURCE", "rtsp://env/stream")
	t.Setenv("ROLLCALL_NTH_FRAME", "15")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "rollcall")
	t.Setenv("POSTGRES_PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != "rtsp://env/stream" {
		t.Errorf("Source = %q", cfg.Source)
	}
	if cfg.Sampling.EveryNth != 15 {
		t.Errorf("EveryNth = %d, want 15", cfg.Sampling.EveryNth)
	}
	if cfg.Ledger.DatabaseURL != "postgres://u:p@db:5432/rollcall" {
		t.Errorf("DatabaseURL = %q", cfg.Ledger.DatabaseURL)
	}
}

func TestEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("ROLLCALL_TEST_INT", "-3")
	if got := envInt("ROLLCALL_TEST_INT", 7); got != 7 {
		t.Errorf("envInt negative = %d, want default 7", got)
	}
	t.Setenv("ROLLCALL_TEST_INT", "abc")
	if got := envInt("ROLLCALL_TEST_INT", 7); got != 7 {
		t.Errorf("envInt garbage = %d, want default 7", got)
	}
}

func TestValidate(t *testing.T) {
	employees := t.TempDir()

	valid := func() *Config {
		c := Default()
		c.Source = "rtsp://cam"
		c.EmployeesDir = employees
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "Valid identity", mutate: func(c *Config) {}},
		{name: "Valid presence with cascade", mutate: func(c *Config) {
			c.Mode = ModePresence
			c.Detector.Backend = "cascade"
			c.EmployeesDir = "/nonexistent"
		}},
		{name: "Missing source", mutate: func(c *Config) { c.Source = "" }, wantErr: "source is required"},
		{name: "Unknown mode", mutate: func(c *Config) { c.Mode = "roster" }, wantErr: "mode must be"},
		{name: "Cascade cannot identify", mutate: func(c *Config) { c.Detector.Backend = "cascade" }, wantErr: "cannot identify"},
		{name: "Scale out of range", mutate: func(c *Config) { c.Detector.Scale = 1.5 }, wantErr: "detector.scale"},
		{name: "Negative scale", mutate: func(c *Config) { c.Detector.Scale = -0.5 }, wantErr: "detector.scale"},
		{name: "Explicit scale", mutate: func(c *Config) { c.Detector.Scale = 0.5 }},
		{name: "Zero nth frame", mutate: func(c *Config) { c.Sampling.EveryNth = 0 }, wantErr: "every_nth"},
		{name: "Zero nth frame with interval", mutate: func(c *Config) {
			c.Sampling.EveryNth = 0
			c.Sampling.Interval = time.Second
		}},
		{name: "Bad tie break", mutate: func(c *Config) { c.Detector.TieBreak = "random" }, wantErr: "tie_break"},
		{name: "Postgres without URL", mutate: func(c *Config) {
			c.Ledger.Backend = "postgres"
			c.Ledger.DatabaseURL = ""
		}, wantErr: "database_url"},
		{name: "Employees dir missing", mutate: func(c *Config) { c.EmployeesDir = filepath.Join(employees, "nope") }, wantErr: "employees directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveScale(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		scale   float64
		want    float64
	}{
		{"dlib default", "dlib", 0, 0.25},
		{"python default", "python", 0, 0.25},
		{"Cascade sees the full frame", "cascade", 0, 1},
		{"Explicit scale wins for cascade", "cascade", 0.5, 0.5},
		{"Explicit scale wins for dlib", "dlib", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DetectorConfig{Backend: tt.backend, Scale: tt.scale}
			if got := d.EffectiveScale(); got != tt.want {
				t.Errorf("EffectiveScale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCaptureBackend(t *testing.T) {
	tests := []struct {
		source, backend, want string
	}{
		{"0", "ffmpeg", "opencv"},
		{"12", "ffmpeg", "opencv"},
		{"rtsp://cam/1", "ffmpeg", "ffmpeg"},
		{"lobby.mp4", "ffmpeg", "ffmpeg"},
		{"/dev/video0", "ffmpeg", "ffmpeg"},
		{"-", "ffmpeg", "ffmpeg"},
		{"rtsp://cam/1", "opencv", "opencv"},
	}
	for _, tt := range tests {
		c := Default()
		c.Source = tt.source
		c.Capture.Backend = tt.backend
		if got := c.CaptureBackend(); got != tt.want {
			t.Errorf("CaptureBackend(%q, %s) = %q, want %q", tt.source, tt.backend, got, tt.want)
		}
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (stand-in for testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
