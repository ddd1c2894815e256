package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/rollcall/internal/capture"
	"github.com/andresmejia3/rollcall/internal/capture/cvcapture"
	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/detector"
	"github.com/andresmejia3/rollcall/internal/detector/cascade"
	"github.com/andresmejia3/rollcall/internal/detector/dlib"
	"github.com/andresmejia3/rollcall/internal/overlay"
	"github.com/andresmejia3/rollcall/internal/overlay/cvwindow"
	"github.com/andresmejia3/rollcall/internal/registry"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/andresmejia3/rollcall/internal/worker"
	"github.com/fatih/color"
)

// newBackend starts the configured face engine. The returned SafeCommand is
// only set for the python backend so its logs can be shown on failure.
func newBackend(ctx context.Context, c *config.Config) (detector.Backend, *utils.SafeCommand, error) {
	switch c.Detector.Backend {
	case "dlib":
		b, err := dlib.New(c.Detector.ModelsDir)
		return b, nil, err
	case "python":
		w, err := worker.NewPythonWorker(ctx, 0, c.Detector.WorkerScript, c.Detector.WorkerTimeout)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Cmd, nil
	case "cascade":
		b, err := cascade.New(c.Detector.CascadeFile, cascade.Options{
			ScaleFactor:  c.Detector.ScaleFactor,
			MinNeighbors: c.Detector.MinNeighbors,
		})
		return b, nil, err
	}
	return nil, nil, fmt.Errorf("unknown detector backend %q", c.Detector.Backend)
}

// loadRegistry encodes every reference image in the employees directory.
func loadRegistry(ctx context.Context, c *config.Config, enc registry.Encoder) (*registry.Registry, error) {
	reg, err := registry.Load(ctx, c.EmployeesDir, enc)
	if err != nil {
		return nil, err
	}
	for _, s := range reg.Subjects() {
		fmt.Fprintf(os.Stderr, "👤 Loaded employee: %s\n", color.CyanString(s.Name))
	}
	return reg, nil
}

func newMatcher(c *config.Config, reg *registry.Registry) (*registry.Matcher, error) {
	tb, err := registry.ParseTieBreak(c.Detector.TieBreak)
	if err != nil {
		return nil, err
	}
	return registry.NewMatcher(reg, c.Detector.Tolerance, tb), nil
}

func newSource(c *config.Config) capture.FrameSource {
	if c.Source == capture.StdinLocator {
		// Already MJPEG, e.g. piped from another ffmpeg
		return capture.NewReaderSource("stdin", func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(os.Stdin), nil
		})
	}
	if c.CaptureBackend() == "opencv" {
		return cvcapture.New(c.Source)
	}
	return capture.NewFFmpegSource(c.Source)
}

func newRenderer(c *config.Config) (overlay.Renderer, error) {
	if c.Display.Window {
		return cvwindow.New(c.Display.Title), nil
	}
	return overlay.NewHeadless(c.Display.DebugDir)
}

func retryPolicy(c *config.Config) capture.RetryPolicy {
	return capture.RetryPolicy{
		MaxAttempts: c.Capture.ReconnectAttempts,
		Delay:       c.Capture.ReconnectDelay,
		MaxDelay:    c.Capture.MaxReconnectDelay,
	}
}
