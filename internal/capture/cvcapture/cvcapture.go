// Package cvcapture reads frames through OpenCV's VideoCapture. A numeric
// locator such as "0" opens the local camera with that index.
package cvcapture

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/andresmejia3/rollcall/internal/capture"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"gocv.io/x/gocv"
)

type Source struct {
	Locator string

	vc  *gocv.VideoCapture
	img gocv.Mat
}

func New(locator string) *Source {
	return &Source{Locator: locator}
}

// device returns the camera index for purely numeric locators, otherwise the locator itself.
func device(locator string) any {
	if id, err := strconv.Atoi(locator); err == nil {
		return id
	}
	return locator
}

func (s *Source) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	vc, err := gocv.OpenVideoCapture(device(s.Locator))
	if err != nil {
		return fmt.Errorf("%w %s: %v", capture.ErrStreamOpen, utils.RedactURL(s.Locator), err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w %s", capture.ErrStreamOpen, utils.RedactURL(s.Locator))
	}
	s.vc = vc
	s.img = gocv.NewMat()
	return nil
}

func (s *Source) ReadFrame(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.vc == nil {
		return types.Frame{}, fmt.Errorf("source %s is not open", utils.RedactURL(s.Locator))
	}
	if ok := s.vc.Read(&s.img); !ok || s.img.Empty() {
		return types.Frame{}, io.EOF
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.img)
	if err != nil {
		return types.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return types.Frame{Data: data, Captured: time.Now()}, nil
}

func (s *Source) Reconnect(ctx context.Context) error {
	s.Close()
	return s.Open(ctx)
}

func (s *Source) Close() error {
	if s.vc == nil {
		return nil
	}
	s.img.Close()
	err := s.vc.Close()
	s.vc = nil
	return err
}
