// Package cascade is a presence-only backend using an OpenCV Haar cascade.
// It finds faces but cannot tell them apart, so detections carry no descriptor.
package cascade

import (
	"context"
	"fmt"
	"image"

	"github.com/andresmejia3/rollcall/internal/types"
	"gocv.io/x/gocv"
)

type Options struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int // pixels, on the image the backend receives
}

type Backend struct {
	classifier gocv.CascadeClassifier
	opts       Options
}

func New(file string, opts Options) (*Backend, error) {
	if opts.ScaleFactor <= 1 {
		opts.ScaleFactor = 1.1
	}
	if opts.MinNeighbors <= 0 {
		opts.MinNeighbors = 5
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(file) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier %s", file)
	}
	return &Backend{classifier: classifier, opts: opts}, nil
}

func (b *Backend) Encode(ctx context.Context, jpeg []byte) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("failed to decode frame: empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	minSize := image.Pt(b.opts.MinSize, b.opts.MinSize)
	rects := b.classifier.DetectMultiScaleWithParams(gray, b.opts.ScaleFactor, b.opts.MinNeighbors, 0, minSize, image.Point{})

	out := make([]types.Detection, 0, len(rects))
	for _, r := range rects {
		out = append(out, types.Detection{Region: r})
	}
	return out, nil
}

func (b *Backend) Close() error {
	return b.classifier.Close()
}
