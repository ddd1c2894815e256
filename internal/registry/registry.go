package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/andresmejia3/rollcall/internal/detector"
	"github.com/andresmejia3/rollcall/internal/types"
)

var (
	// ErrNoFace is returned when a reference image has no detectable face.
	ErrNoFace = errors.New("no face detected in reference image")
	// ErrNoSubjects is returned when the directory holds no usable images.
	ErrNoSubjects = errors.New("no reference images found")
)

// Encoder extracts faces and their embeddings from a full-resolution JPEG.
type Encoder interface {
	Encode(ctx context.Context, jpeg []byte) ([]types.Detection, error)
}

// Registry is the immutable set of known subjects, in registration order.
type Registry struct {
	subjects []types.KnownSubject
}

// SubjectName derives a display name from a reference image filename:
// "jane_doe.jpg" becomes "Jane Doe" and "o'brien.jpg" becomes "O'Brien".
func SubjectName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return titleCase(strings.ReplaceAll(base, "_", " "))
}

// titleCase upper-cases every cased letter that follows an uncased rune
// (space, apostrophe, digit, ...) and lower-cases the rest. Ledgers written
// before rollcall used this rule, so names must come out identical.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevCased := false
	for _, r := range s {
		cased := unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
		switch {
		case cased && !prevCased:
			b.WriteRune(unicode.ToTitle(r))
		case cased:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevCased = cased
	}
	return b.String()
}

func isReferenceImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// Load encodes every reference image in dir. Files are visited in sorted
// order so that registration order, and therefore first-match tie-breaks,
// are stable across runs. A reference image without a face is fatal.
func Load(ctx context.Context, dir string, enc Encoder) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read employees directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isReferenceImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSubjects, dir)
	}

	r := &Registry{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		jpeg, err := detector.ToJPEG(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}

		faces, err := enc.Encode(ctx, jpeg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", path, err)
		}
		if len(faces) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoFace, path)
		}
		if len(faces) > 1 {
			slog.Warn("reference image has several faces, using the first", "file", path, "faces", len(faces))
		}
		if len(faces[0].Descriptor) == 0 {
			return nil, fmt.Errorf("encoder returned a face without an embedding for %s", path)
		}

		subject := types.KnownSubject{
			Name:      SubjectName(name),
			Embedding: append([]float64(nil), faces[0].Descriptor...),
			Source:    path,
		}
		r.subjects = append(r.subjects, subject)
		slog.Debug("loaded subject", "name", subject.Name, "file", path)
	}

	return r, nil
}

// New builds a registry from already encoded subjects, keeping their order.
func New(subjects []types.KnownSubject) *Registry {
	cp := make([]types.KnownSubject, len(subjects))
	copy(cp, subjects)
	return &Registry{subjects: cp}
}

// Subjects returns a copy of the registered subjects in registration order.
func (r *Registry) Subjects() []types.KnownSubject {
	out := make([]types.KnownSubject, len(r.subjects))
	copy(out, r.subjects)
	return out
}

// Len returns the number of registered subjects.
func (r *Registry) Len() int { return len(r.subjects) }
