package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/rollcall/internal/attendance"
	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/detector"
	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/sampling"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// Options holds the flags of the run command. Only flags the user set
// override the loaded config.
type Options struct {
	Source            string
	EmployeesDir      string
	NthFrame          int
	IncludeFirst      bool
	Interval          time.Duration
	Scale             float64
	Tolerance         float64
	TieBreak          string
	Detector          string
	ModelsDir         string
	CascadeFile       string
	WorkerScript      string
	WorkerTimeout     time.Duration
	Capture           string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Window            bool
	DebugDir          string
	Progress          bool
}

var runOpts Options

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch a stream and record attendance",
	Long: `Reads frames from a camera stream, runs face detection on every Nth frame
and appends a row to the ledger the first time each employee is seen on a day.`,
	Run: func(cmd *cobra.Command, args []string) {
		applyRunFlags(cmd, runOpts, cfg)
		runAttendance(cmd.Context(), cfg)
	},
}

func init() {
	addRunFlags(runCmd, &runOpts)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command, o *Options) {
	d := config.Default()
	f := cmd.Flags()
	f.StringVarP(&o.Source, "source", "s", "", "RTSP URL, video file, device index, or - for MJPEG on stdin")
	f.StringVarP(&o.EmployeesDir, "employees", "e", d.EmployeesDir, "Directory with one reference image per employee (jane_doe.jpg)")
	f.IntVarP(&o.NthFrame, "nth-frame", "n", d.Sampling.EveryNth, "Run detection on every Nth frame")
	f.BoolVar(&o.IncludeFirst, "include-first", false, "Also run detection on the very first frame")
	f.DurationVar(&o.Interval, "interval", 0, "Sample by time instead of frame count (e.g. 1s)")
	f.Float64Var(&o.Scale, "scale", d.Detector.Scale, "Linear downscale applied before detection (0: 0.25, or 1 for cascade)")
	f.Float64VarP(&o.Tolerance, "tolerance", "t", d.Detector.Tolerance, "Face matching tolerance (lower is stricter)")
	f.StringVar(&o.TieBreak, "tie-break", d.Detector.TieBreak, "When several employees match: first or closest")
	f.StringVar(&o.Detector, "detector", d.Detector.Backend, "Face backend: dlib, python or cascade")
	f.StringVar(&o.ModelsDir, "models", d.Detector.ModelsDir, "Directory with the dlib model files")
	f.StringVar(&o.CascadeFile, "cascade", d.Detector.CascadeFile, "Haar cascade XML for the cascade backend")
	f.StringVar(&o.WorkerScript, "worker-script", d.Detector.WorkerScript, "Python worker script for the python backend")
	f.DurationVar(&o.WorkerTimeout, "worker-timeout", d.Detector.WorkerTimeout, "Maximum time the python worker may take per frame")
	f.StringVar(&o.Capture, "capture", d.Capture.Backend, "Frame source: ffmpeg or opencv")
	f.IntVar(&o.ReconnectAttempts, "reconnect-attempts", d.Capture.ReconnectAttempts, "Reconnect attempts after the stream drops (0 stops immediately)")
	f.DurationVar(&o.ReconnectDelay, "reconnect-delay", d.Capture.ReconnectDelay, "Initial delay between reconnect attempts, doubled each time")
	f.BoolVar(&o.Window, "window", d.Display.Window, "Show the annotated stream in a window (press q to quit)")
	f.StringVarP(&o.DebugDir, "debug-screenshots", "d", "", "Save annotated frames to this directory")
	f.BoolVar(&o.Progress, "progress", d.Display.Progress, "Show a frame counter while running headless")
}

// applyRunFlags copies explicitly set flags onto c.
func applyRunFlags(cmd *cobra.Command, o Options, c *config.Config) {
	set := cmd.Flags().Changed
	if set("source") {
		c.Source = o.Source
	}
	if set("employees") {
		c.EmployeesDir = o.EmployeesDir
	}
	if set("nth-frame") {
		c.Sampling.EveryNth = o.NthFrame
	}
	if set("include-first") {
		c.Sampling.IncludeFirst = o.IncludeFirst
	}
	if set("interval") {
		c.Sampling.Interval = o.Interval
	}
	if set("scale") {
		c.Detector.Scale = o.Scale
	}
	if set("tolerance") {
		c.Detector.Tolerance = o.Tolerance
	}
	if set("tie-break") {
		c.Detector.TieBreak = o.TieBreak
	}
	if set("detector") {
		c.Detector.Backend = o.Detector
	}
	if set("models") {
		c.Detector.ModelsDir = o.ModelsDir
	}
	if set("cascade") {
		c.Detector.CascadeFile = o.CascadeFile
	}
	if set("worker-script") {
		c.Detector.WorkerScript = o.WorkerScript
	}
	if set("worker-timeout") {
		c.Detector.WorkerTimeout = o.WorkerTimeout
	}
	if set("capture") {
		c.Capture.Backend = o.Capture
	}
	if set("reconnect-attempts") {
		c.Capture.ReconnectAttempts = o.ReconnectAttempts
	}
	if set("reconnect-delay") {
		c.Capture.ReconnectDelay = o.ReconnectDelay
	}
	if set("window") {
		c.Display.Window = o.Window
	}
	if set("debug-screenshots") {
		c.Display.DebugDir = o.DebugDir
	}
	if set("progress") {
		c.Display.Progress = o.Progress
	}
}

// runAttendance wires the configured components into a loop and runs it until the stream ends.
func runAttendance(ctx context.Context, c *config.Config) {
	if err := c.Validate(); err != nil {
		utils.Die("Invalid configuration", err, nil)
	}

	fmt.Fprintf(os.Stderr, "⚙️  Starting %s detector...\n", c.Detector.Backend)
	backend, workerCmd, err := newBackend(ctx, c)
	if err != nil {
		utils.Die("Failed to start detector", err, workerCmd)
	}
	det := detector.NewScaled(backend, c.Detector.EffectiveScale())
	defer det.Close()

	loop := &attendance.Loop{
		Mode:     c.Mode,
		Source:   newSource(c),
		Sampler:  sampling.FromConfig(c.Sampling),
		Detector: det,
		Retry:    retryPolicy(c),
	}

	if c.Mode == config.ModeIdentity {
		reg, err := loadRegistry(ctx, c, backend)
		if err != nil {
			det.Close()
			utils.Die("Failed to load employees", err, workerCmd)
		}
		if loop.Matcher, err = newMatcher(c, reg); err != nil {
			det.Close()
			utils.Die("Invalid matcher settings", err, nil)
		}
	}

	led, err := ledger.Open(ctx, c.Ledger, c.Mode)
	if err != nil {
		det.Close()
		utils.Die("Failed to open ledger", err, nil)
	}
	defer led.Close(context.Background())
	loop.Ledger = led

	if loop.Renderer, err = newRenderer(c); err != nil {
		det.Close()
		utils.Die("Failed to set up display", err, nil)
	}

	var bar *progressbar.ProgressBar
	if c.Display.Progress && !c.Display.Window {
		// Live streams have no known length, -1 renders a spinner
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("📹 Watching"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
		)
		loop.OnFrame = func(types.Frame, bool) { bar.Add(1) }
	}

	fmt.Fprintf(os.Stderr, "📼 Watching %s (%s mode, every %s)\n", utils.RedactURL(c.Source), c.Mode, samplingLabel(c.Sampling))
	sum, err := loop.Run(ctx)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	printSummary(os.Stderr, sum)

	if err != nil {
		det.Close()
		led.Close(context.Background())
		utils.Die("Attendance loop failed", err, workerCmd)
	}
}

func samplingLabel(s config.SamplingConfig) string {
	if s.Interval > 0 {
		return s.Interval.String()
	}
	if s.EveryNth <= 1 {
		return "frame"
	}
	return fmt.Sprintf("%d frames", s.EveryNth)
}

func printSummary(w io.Writer, s attendance.Summary) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "✨ Run %s %s after %d frames (%d analysed)\n", shortID(s.RunID), s.State, s.Frames, s.Sampled)
	fmt.Fprintf(w, "   📝 %s new rows, %s already recorded, %d unknown faces\n",
		green(s.Recorded), yellow(s.Duplicates), s.Unknown)
	if s.LedgerErrors > 0 {
		fmt.Fprintf(w, "   %s\n", red(fmt.Sprintf("⚠️  %d ledger writes failed", s.LedgerErrors)))
	}
	if s.Reconnects > 0 {
		fmt.Fprintf(w, "   🔌 %d reconnect attempts\n", s.Reconnects)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
