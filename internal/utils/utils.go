package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps worker logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	red.Fprintf(os.Stderr, "🚨 ROLLCALL ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nWORKER LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for commands that cannot return an error.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Video Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			// Trailing garbage, nothing left to find
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegCmd creates a standard decoder pipe for a file, device or network stream.
// It configures FFmpeg to output raw MJPEG frames to Stdout for ingestion.
func NewFFmpegCmd(ctx context.Context, source string) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(source, "rtsp://") || strings.HasPrefix(source, "rtsps://") {
		// UDP drops packets on busy networks and ffmpeg then emits grey smears
		args = append(args, "-rtsp_transport", "tcp")
	}
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	args = append(args, "-i", source, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// RedactURL hides credentials embedded in a stream locator before it is logged.
func RedactURL(source string) string {
	scheme := strings.Index(source, "://")
	if scheme == -1 {
		return source
	}
	rest := source[scheme+3:]
	at := strings.Index(rest, "@")
	if at == -1 {
		return source
	}
	if slash := strings.Index(rest, "/"); slash != -1 && slash < at {
		return source
	}
	return source[:scheme+3] + "***@" + rest[at+1:]
}
