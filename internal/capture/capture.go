// Package capture turns a stream locator into a sequence of JPEG frames.
//
// Two sources exist: FFmpegSource pipes the stream through ffmpeg and splits
// MJPEG on the JPEG markers, and cvcapture.Source reads through OpenCV. Both
// report end of stream as io.EOF and can be reopened with Reconnect.
package capture

import (
	"context"
	"errors"

	"github.com/andresmejia3/rollcall/internal/types"
)

// ErrStreamOpen is returned by Open when the stream cannot be opened or
// delivers no frame at all.
var ErrStreamOpen = errors.New("unable to open video stream")

// FrameSource yields frames in stream order. Frame.Index is left to the caller.
type FrameSource interface {
	Open(ctx context.Context) error
	ReadFrame(ctx context.Context) (types.Frame, error)
	Reconnect(ctx context.Context) error
	Close() error
}
