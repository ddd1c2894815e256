// Package dlib is the in-process identity backend built on dlib's ResNet
// face model through go-face. It needs the shape predictor and recognition
// model files in ModelsDir.
package dlib

import (
	"context"
	"fmt"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/rollcall/internal/types"
)

type Backend struct {
	rec *face.Recognizer
}

func New(modelsDir string) (*Backend, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &Backend{rec: rec}, nil
}

// Encode detects and embeds every face on a JPEG.
func (b *Backend) Encode(ctx context.Context, jpeg []byte) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	faces, err := b.rec.Recognize(jpeg)
	if err != nil {
		return nil, err
	}
	return toDetections(faces), nil
}

func toDetections(faces []face.Face) []types.Detection {
	out := make([]types.Detection, 0, len(faces))
	for _, f := range faces {
		out = append(out, types.Detection{Region: f.Rectangle, Descriptor: widen(f.Descriptor)})
	}
	return out
}

func widen(d face.Descriptor) []float64 {
	v := make([]float64, len(d))
	for i, x := range d {
		v[i] = float64(x)
	}
	return v
}

func (b *Backend) Close() error {
	b.rec.Close()
	return nil
}
