// Package detector wraps the face backends behind a frame-level interface.
//
// Backends only see a JPEG and report boxes in that JPEG's coordinates.
// Scaled takes care of shrinking the frame first and mapping the boxes back
// onto the original frame.
package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // reference images may be PNG
	"math"

	"github.com/andresmejia3/rollcall/internal/types"
	"golang.org/x/image/draw"
)

// JPEGQuality is used whenever rollcall re-encodes a frame.
const JPEGQuality = 90

// Detector finds faces on a frame. Regions are in original-frame coordinates.
type Detector interface {
	Detect(ctx context.Context, frame types.Frame) ([]types.Detection, error)
	Close() error
}

// Backend is a face engine operating on a single JPEG at whatever size it is given.
type Backend interface {
	Encode(ctx context.Context, jpeg []byte) ([]types.Detection, error)
	Close() error
}

// Scaled runs Backend on a downscaled copy of each frame.
type Scaled struct {
	Backend Backend
	Scale   float64 // linear factor in (0, 1]; 0.25 cuts the area to 1/16
}

// NewScaled wraps b. A scale outside (0, 1] disables downscaling.
func NewScaled(b Backend, scale float64) *Scaled {
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	return &Scaled{Backend: b, Scale: scale}
}

func (s *Scaled) Detect(ctx context.Context, frame types.Frame) ([]types.Detection, error) {
	small, err := Downscale(frame.Data, s.Scale)
	if err != nil {
		return nil, fmt.Errorf("failed to downscale frame %d: %w", frame.Index, err)
	}

	dets, err := s.Backend.Encode(ctx, small)
	if err != nil {
		return nil, err
	}

	inv := 1 / s.Scale
	for i := range dets {
		dets[i].Region = ScaleRect(dets[i].Region, inv)
	}
	return dets, nil
}

func (s *Scaled) Close() error { return s.Backend.Close() }

// ScaleRect multiplies every coordinate of r by factor, rounding to the nearest pixel.
func ScaleRect(r image.Rectangle, factor float64) image.Rectangle {
	if factor == 1 {
		return r
	}
	scale := func(v int) int { return int(math.Round(float64(v) * factor)) }
	return image.Rect(scale(r.Min.X), scale(r.Min.Y), scale(r.Max.X), scale(r.Max.Y))
}

// Downscale shrinks a JPEG by a linear factor. A factor of 1 returns the input unchanged.
func Downscale(data []byte, factor float64) ([]byte, error) {
	if factor >= 1 {
		return data, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*factor)))
	h := max(1, int(math.Round(float64(b.Dy())*factor)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	return EncodeJPEG(dst)
}

// ToJPEG returns data unchanged when it already is a JPEG, otherwise it
// decodes any registered format (PNG) and re-encodes it.
func ToJPEG(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(img)
}

// EncodeJPEG encodes img at JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
