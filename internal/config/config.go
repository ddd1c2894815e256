package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing file is not an error.
const DefaultPath = "rollcall.yaml"

// Modes select the dedup granularity of the loop.
const (
	ModeIdentity = "identity" // one row per subject per day
	ModePresence = "presence" // one row per sampled frame with any face
)

// Config is the complete rollcall configuration.
type Config struct {
	Mode         string         `yaml:"mode"`
	Source       string         `yaml:"source"`        // RTSP URL, file path or device index
	EmployeesDir string         `yaml:"employees_dir"` // one reference image per subject
	Capture      CaptureConfig  `yaml:"capture"`
	Detector     DetectorConfig `yaml:"detector"`
	Sampling     SamplingConfig `yaml:"sampling"`
	Ledger       LedgerConfig   `yaml:"ledger"`
	Display      DisplayConfig  `yaml:"display"`
	Server       ServerConfig   `yaml:"server"`
}

// CaptureConfig selects the frame source and its reconnect policy.
type CaptureConfig struct {
	Backend           string        `yaml:"backend"` // ffmpeg, opencv
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
}

// DetectorConfig selects the face backend and the matching rule.
type DetectorConfig struct {
	Backend       string        `yaml:"backend"` // dlib, python, cascade
	ModelsDir     string        `yaml:"models_dir"`
	CascadeFile   string        `yaml:"cascade_file"`
	WorkerScript  string        `yaml:"worker_script"`
	WorkerTimeout time.Duration `yaml:"worker_timeout"`
	Scale         float64       `yaml:"scale"`     // linear downscale before detection, 0 picks the backend default
	Tolerance     float64       `yaml:"tolerance"` // max euclidean distance for a match
	TieBreak      string        `yaml:"tie_break"` // first, closest
	ScaleFactor   float64       `yaml:"scale_factor"`
	MinNeighbors  int           `yaml:"min_neighbors"`
}

// SamplingConfig decides which frames reach the detector.
type SamplingConfig struct {
	EveryNth     int           `yaml:"every_nth"`
	IncludeFirst bool          `yaml:"include_first"`
	Interval     time.Duration `yaml:"interval"` // time-based sampling when > 0
}

// LedgerConfig selects where attendance rows are persisted.
type LedgerConfig struct {
	Backend     string `yaml:"backend"` // xlsx, postgres, memory
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
}

// DisplayConfig controls the operator window and debug output.
type DisplayConfig struct {
	Window   bool   `yaml:"window"`
	Title    string `yaml:"title"`
	DebugDir string `yaml:"debug_dir"`
	Progress bool   `yaml:"progress"`
}

// ServerConfig is used by the read-only report API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultScale is the downscale used by the embedding backends when detector.scale is 0.
const DefaultScale = 0.25

// EffectiveScale resolves a zero Scale. The Haar cascade sees the full frame
// because its 24px minimum window loses distant faces at 0.25x.
func (d DetectorConfig) EffectiveScale() float64 {
	switch {
	case d.Scale > 0:
		return d.Scale
	case d.Backend == "cascade":
		return 1
	}
	return DefaultScale
}

// CaptureBackend returns the backend that opens Source. ffmpeg reads a bare
// device index such as "0" as a file name, so those always go through OpenCV.
func (c *Config) CaptureBackend() string {
	if IsDeviceIndex(c.Source) {
		return "opencv"
	}
	return c.Capture.Backend
}

// IsDeviceIndex reports whether locator is a local camera index.
func IsDeviceIndex(locator string) bool {
	if locator == "" {
		return false
	}
	for _, r := range locator {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Default returns the reference behaviour: every 30th frame, 0.25x, tolerance 0.6.
func Default() *Config {
	return &Config{
		Mode:         ModeIdentity,
		EmployeesDir: "employees",
		Capture: CaptureConfig{
			Backend:           "ffmpeg",
			ReconnectAttempts: 0,
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 30 * time.Second,
		},
		Detector: DetectorConfig{
			Backend:       "dlib",
			ModelsDir:     "models",
			CascadeFile:   "haarcascade_frontalface_default.xml",
			WorkerScript:  "python/worker.py",
			WorkerTimeout: 30 * time.Second,
			Scale:         0,
			Tolerance:     0.6,
			TieBreak:      "first",
			ScaleFactor:   1.1,
			MinNeighbors:  5,
		},
		Sampling: SamplingConfig{
			EveryNth: 30,
		},
		Ledger: LedgerConfig{
			Backend: "xlsx",
			Path:    "attendance_record.xlsx",
		},
		Display: DisplayConfig{
			Window:   false,
			Title:    "Attendance System",
			Progress: true,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads path on top of the defaults and then applies environment overrides.
// If path is empty, DefaultPath is tried and silently skipped when absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ROLLCALL_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("ROLLCALL_SOURCE"); v != "" {
		c.Source = v
	}
	if v := os.Getenv("ROLLCALL_EMPLOYEES_DIR"); v != "" {
		c.EmployeesDir = v
	}
	if v := os.Getenv("ROLLCALL_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	c.Sampling.EveryNth = envInt("ROLLCALL_NTH_FRAME", c.Sampling.EveryNth)

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Ledger.DatabaseURL = v
	} else if c.Ledger.DatabaseURL == "" {
		c.Ledger.DatabaseURL = postgresURLFromEnv()
	}
}

// postgresURLFromEnv builds a connection string from the POSTGRES_* variables
// used by the docker-compose setup. Returns "" when POSTGRES_HOST is unset.
func postgresURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host, port,
		os.Getenv("POSTGRES_DB"),
	)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// Validate reports every invalid setting at once. It does not touch the filesystem
// except for the employees directory in identity mode.
func (c *Config) Validate() error {
	var errs []string

	switch c.Mode {
	case ModeIdentity, ModePresence:
	default:
		errs = append(errs, fmt.Sprintf("mode must be %q or %q, got %q", ModeIdentity, ModePresence, c.Mode))
	}
	if c.Source == "" {
		errs = append(errs, "source is required (RTSP URL, file or device index)")
	}

	switch c.Capture.Backend {
	case "ffmpeg", "opencv":
	default:
		errs = append(errs, fmt.Sprintf("capture.backend must be ffmpeg or opencv, got %q", c.Capture.Backend))
	}
	if c.Capture.ReconnectAttempts < 0 {
		errs = append(errs, "capture.reconnect_attempts must be >= 0")
	}

	switch c.Detector.Backend {
	case "dlib", "python":
		// both embed, presence mode simply ignores the descriptors
	case "cascade":
		if c.Mode == ModeIdentity {
			errs = append(errs, "detector.backend cascade cannot identify subjects, use mode presence")
		}
	default:
		errs = append(errs, fmt.Sprintf("detector.backend must be dlib, python or cascade, got %q", c.Detector.Backend))
	}
	if c.Detector.Scale < 0 || c.Detector.Scale > 1 {
		errs = append(errs, fmt.Sprintf("detector.scale must be in (0, 1] or 0 for the backend default, got %v", c.Detector.Scale))
	}
	if c.Detector.Tolerance <= 0 {
		errs = append(errs, fmt.Sprintf("detector.tolerance must be > 0, got %v", c.Detector.Tolerance))
	}
	switch c.Detector.TieBreak {
	case "first", "closest":
	default:
		errs = append(errs, fmt.Sprintf("detector.tie_break must be first or closest, got %q", c.Detector.TieBreak))
	}

	if c.Sampling.Interval <= 0 && c.Sampling.EveryNth < 1 {
		errs = append(errs, fmt.Sprintf("sampling.every_nth must be >= 1, got %d", c.Sampling.EveryNth))
	}

	switch c.Ledger.Backend {
	case "xlsx":
		if c.Ledger.Path == "" {
			errs = append(errs, "ledger.path is required for the xlsx backend")
		}
	case "postgres":
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, "ledger.database_url (or DATABASE_URL) is required for the postgres backend")
		}
	case "memory":
		// dry run, nothing is persisted
	default:
		errs = append(errs, fmt.Sprintf("ledger.backend must be xlsx, postgres or memory, got %q", c.Ledger.Backend))
	}

	if c.Mode == ModeIdentity {
		info, err := os.Stat(c.EmployeesDir)
		if err != nil {
			errs = append(errs, fmt.Sprintf("employees directory %q: %v", c.EmployeesDir, err))
		} else if !info.IsDir() {
			errs = append(errs, fmt.Sprintf("employees path %q is not a directory", c.EmployeesDir))
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}
