package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
)

const megabyte = 1024 * 1024

// StdinLocator makes FFmpegSource read an MJPEG stream from standard input.
const StdinLocator = "-"

// streamOpener starts the producer of an MJPEG byte stream.
type streamOpener func(ctx context.Context) (io.ReadCloser, error)

// FFmpegSource decodes any ffmpeg input (RTSP, file, device) into JPEG frames.
type FFmpegSource struct {
	Locator string

	open    streamOpener
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	stream  io.ReadCloser
	scanner *bufio.Scanner
	pending *types.Frame
	now     func() time.Time
}

func NewFFmpegSource(locator string) *FFmpegSource {
	s := &FFmpegSource{Locator: locator, now: time.Now}
	s.open = s.startFFmpeg
	return s
}

// NewReaderSource reads an already encoded MJPEG stream. Each Open calls open again.
func NewReaderSource(name string, open func(ctx context.Context) (io.ReadCloser, error)) *FFmpegSource {
	return &FFmpegSource{Locator: name, open: open, now: time.Now}
}

func (s *FFmpegSource) startFFmpeg(ctx context.Context) (io.ReadCloser, error) {
	cmd := utils.NewFFmpegCmd(ctx, s.Locator)
	s.stderr = &bytes.Buffer{}
	cmd.Stderr = s.stderr

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}
	s.cmd = cmd
	return out, nil
}

// Open starts the stream and waits for the first frame, so a bad locator
// fails here rather than on the first read.
func (s *FFmpegSource) Open(ctx context.Context) error {
	stream, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrStreamOpen, utils.RedactURL(s.Locator), err)
	}
	s.stream = stream
	s.scanner = bufio.NewScanner(stream)
	s.scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	s.scanner.Split(utils.SplitJpeg)

	first, err := s.next(ctx)
	if err != nil {
		// ffmpeg's stderr is only complete once the process has been reaped
		s.Close()
		detail := err.Error()
		if msg := s.ffmpegLog(); msg != "" {
			detail = msg
		}
		return fmt.Errorf("%w %s: %s", ErrStreamOpen, utils.RedactURL(s.Locator), detail)
	}
	s.pending = &first
	return nil
}

func (s *FFmpegSource) ReadFrame(ctx context.Context) (types.Frame, error) {
	if s.scanner == nil {
		return types.Frame{}, fmt.Errorf("source %s is not open", utils.RedactURL(s.Locator))
	}
	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		return f, nil
	}
	return s.next(ctx)
}

func (s *FFmpegSource) next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return types.Frame{}, err
		}
		return types.Frame{}, io.EOF
	}
	// The scanner reuses its buffer
	data := make([]byte, len(s.scanner.Bytes()))
	copy(data, s.scanner.Bytes())
	return types.Frame{Data: data, Captured: s.now()}, nil
}

// Reconnect tears down the current stream and opens a fresh one.
func (s *FFmpegSource) Reconnect(ctx context.Context) error {
	s.Close()
	return s.Open(ctx)
}

func (s *FFmpegSource) ffmpegLog() string {
	if s.stderr == nil {
		return ""
	}
	return strings.TrimSpace(s.stderr.String())
}

// Close stops ffmpeg and releases the pipe. It is safe to call more than once.
func (s *FFmpegSource) Close() error {
	s.pending = nil
	s.scanner = nil
	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
	}
	if s.cmd != nil {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait() // reap
		s.cmd = nil
	}
	return err
}
