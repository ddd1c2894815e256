// Package attendance runs the capture, sample, detect, record and render loop.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/andresmejia3/rollcall/internal/capture"
	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/detector"
	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/overlay"
	"github.com/andresmejia3/rollcall/internal/registry"
	"github.com/andresmejia3/rollcall/internal/sampling"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/google/uuid"
)

// MaxConsecutiveDetectorErrors stops the loop when the detector keeps failing.
const MaxConsecutiveDetectorErrors = 3

// ErrDetectorFailed is returned after MaxConsecutiveDetectorErrors failed frames in a row.
var ErrDetectorFailed = errors.New("detector failed on consecutive frames")

type State int

const (
	Running State = iota
	StreamError
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case StreamError:
		return "stream-error"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	Frames       int // frames read
	Sampled      int // frames sent to the detector
	Detections   int
	Recorded     int // rows written
	Duplicates   int // matches already recorded for the day
	Unknown      int
	LedgerErrors int
	Reconnects   int
	State        State
}

// Loop owns one stream for one run. Source and Renderer are closed when Run
// returns. Detector and Ledger belong to the caller.
type Loop struct {
	Mode     string
	Source   capture.FrameSource
	Sampler  sampling.Policy
	Detector detector.Detector
	Matcher  *registry.Matcher // identity mode only
	Ledger   ledger.Ledger
	Renderer overlay.Renderer
	Retry    capture.RetryPolicy

	// Now stamps ledger rows. Defaults to time.Now.
	Now func() time.Time
	// OnFrame is called after every frame has been rendered.
	OnFrame func(frame types.Frame, sampled bool)

	state State
}

// State returns the current state of the loop.
func (l *Loop) State() State { return l.state }

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loop) check() error {
	switch {
	case l.Source == nil:
		return errors.New("attendance loop has no frame source")
	case l.Sampler == nil:
		return errors.New("attendance loop has no sampling policy")
	case l.Detector == nil:
		return errors.New("attendance loop has no detector")
	case l.Ledger == nil:
		return errors.New("attendance loop has no ledger")
	case l.Renderer == nil:
		return errors.New("attendance loop has no renderer")
	case l.Mode == config.ModeIdentity && l.Matcher == nil:
		return errors.New("identity mode needs a matcher")
	case l.Mode != config.ModeIdentity && l.Mode != config.ModePresence:
		return fmt.Errorf("unknown mode %q", l.Mode)
	}
	return nil
}

// Run processes frames until the stream ends, the renderer asks to quit or
// ctx is cancelled. A clean stop returns a nil error. A stream that cannot be
// opened returns an error wrapping capture.ErrStreamOpen.
func (l *Loop) Run(ctx context.Context) (sum Summary, err error) {
	sum.RunID = uuid.NewString()
	if err := l.check(); err != nil {
		return sum, err
	}
	log := slog.With("run", sum.RunID)

	defer func() {
		if cerr := l.Renderer.Close(); cerr != nil {
			log.Warn("failed to close renderer", "error", cerr)
		}
		if cerr := l.Source.Close(); cerr != nil {
			log.Warn("failed to close frame source", "error", cerr)
		}
		sum.State = l.state
	}()

	if err := l.Source.Open(ctx); err != nil {
		l.state = StreamError
		if !errors.Is(err, capture.ErrStreamOpen) {
			err = fmt.Errorf("%w: %v", capture.ErrStreamOpen, err)
		}
		return sum, err
	}
	l.state = Running
	log.Info("stream opened", "mode", l.Mode)

	detectorErrors := 0
	for {
		if ctx.Err() != nil {
			l.state = Stopped
			return sum, nil
		}

		frame, err := l.Source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.state = Stopped
				return sum, nil
			}
			if !errors.Is(err, io.EOF) {
				log.Warn("frame read failed", "after_frame", sum.Frames, "error", err)
			}
			if l.Retry.Enabled() {
				n, rerr := l.Retry.Reconnect(ctx, l.Source)
				sum.Reconnects += n
				if rerr == nil {
					continue
				}
				log.Warn("giving up on stream", "error", rerr)
			}
			l.state = Stopped
			return sum, nil
		}

		sum.Frames++
		frame.Index = sum.Frames
		if frame.Captured.IsZero() {
			frame.Captured = l.now()
		}

		sampled := l.Sampler.ShouldSample(frame.Index, frame.Captured)
		var anns []overlay.Annotation
		if sampled {
			sum.Sampled++
			results, err := l.process(ctx, frame, &sum)
			switch {
			case err != nil && ctx.Err() != nil:
				l.state = Stopped
				return sum, nil
			case err != nil:
				detectorErrors++
				log.Warn("detection failed", "frame", frame.Index, "consecutive", detectorErrors, "error", err)
				if detectorErrors >= MaxConsecutiveDetectorErrors {
					l.state = Stopped
					return sum, fmt.Errorf("%w: %w", ErrDetectorFailed, err)
				}
			default:
				detectorErrors = 0
				anns = overlay.Annotate(l.Mode, results)
			}
		}

		quit, err := l.Renderer.Render(frame, anns)
		if err != nil {
			log.Warn("render failed", "frame", frame.Index, "error", err)
		}
		if l.OnFrame != nil {
			l.OnFrame(frame, sampled)
		}
		if quit {
			log.Info("quit requested", "frame", frame.Index)
			l.state = Stopped
			return sum, nil
		}
	}
}

// process detects faces on one sampled frame and writes the ledger.
// Ledger failures are logged and counted, they never end the run.
func (l *Loop) process(ctx context.Context, frame types.Frame, sum *Summary) ([]overlay.Result, error) {
	dets, err := l.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	sum.Detections += len(dets)
	if len(dets) == 0 {
		return nil, nil
	}

	at := l.now()
	results := make([]overlay.Result, 0, len(dets))

	if l.Mode == config.ModePresence {
		// One row per frame, however many faces it holds
		if err := l.Ledger.RecordPresence(ctx, types.NewPresenceEvent(at)); err != nil {
			sum.LedgerErrors++
			slog.Warn("failed to record presence", "frame", frame.Index, "error", err)
		} else {
			sum.Recorded++
		}
		for _, d := range dets {
			results = append(results, overlay.Result{Region: d.Region, Outcome: overlay.Present})
		}
		return results, nil
	}

	for _, d := range dets {
		m := l.Matcher.Match(d.Descriptor)
		if !m.Known {
			sum.Unknown++
			results = append(results, overlay.Result{Region: d.Region, Subject: types.Unknown, Outcome: overlay.Unrecognised})
			continue
		}

		res := overlay.Result{Region: d.Region, Subject: m.Subject, Outcome: overlay.AlreadyRecorded}
		ev := types.NewAttendanceEvent(m.Subject, at)
		recorded, err := l.Ledger.RecordIfAbsent(ctx, ev)
		switch {
		case err != nil:
			sum.LedgerErrors++
			slog.Warn("failed to record attendance", "name", m.Subject, "error", err)
		case recorded:
			sum.Recorded++
			res.Outcome = overlay.Recorded
			slog.Info("attendance recorded", "name", ev.Name, "date", ev.Date, "time", ev.Time, "distance", m.Distance)
		default:
			sum.Duplicates++
		}
		results = append(results, res)
	}
	return results, nil
}
