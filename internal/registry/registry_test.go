package registry

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/rollcall/internal/types"
)

// widthEncoder returns one face whose embedding is derived from the image
// width, so each reference file can be given a distinct "identity".
type widthEncoder struct {
	faces map[int]int // width -> number of faces
	calls int
}

func (e *widthEncoder) Encode(_ context.Context, data []byte) ([]types.Detection, error) {
	e.calls++
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	n, ok := e.faces[cfg.Width]
	if !ok {
		n = 1
	}
	var out []types.Detection
	for i := 0; i < n; i++ {
		out = append(out, types.Detection{
			Region:     image.Rect(0, 0, 1, 1),
			Descriptor: []float64{float64(cfg.Width), float64(i)},
		})
	}
	return out, nil
}

func writeJPEG(t *testing.T, path string, w int) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, 4)), nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, w int) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, 4))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSubjectName(t *testing.T) {
	tests := []struct {
		file, want string
	}{
		{"jane_doe.jpg", "Jane Doe"},
		{"JOHN_SMITH.png", "John Smith"},
		{"mary.jpeg", "Mary"},
		{"/some/dir/ana_maria_lopez.JPG", "Ana Maria Lopez"},
		{"josé_garcía.jpg", "José García"},
		{"o'brien_smith.jpg", "O'Brien Smith"},
		{"mary-jane_watson.png", "Mary-Jane Watson"},
		{"john_doe2x.jpg", "John Doe2X"},
		{"ÉMILE_ZOLA.jpeg", "Émile Zola"},
	}
	for _, tt := range tests {
		if got := SubjectName(tt.file); got != tt.want {
			t.Errorf("SubjectName(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "john_smith.jpg"), 20)
	writeJPEG(t, filepath.Join(dir, "ana_lopez.jpeg"), 10)
	writePNG(t, filepath.Join(dir, "zoe_park.png"), 30)
	// Ignored: wrong extension and subdirectory
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "archive.jpg"), 0755); err != nil {
		t.Fatal(err)
	}

	enc := &widthEncoder{faces: map[int]int{20: 2}}
	reg, err := Load(context.Background(), dir, enc)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	subjects := reg.Subjects()
	if len(subjects) != 3 {
		t.Fatalf("Expected 3 subjects, got %d", len(subjects))
	}

	// Sorted by filename
	wantNames := []string{"Ana Lopez", "John Smith", "Zoe Park"}
	for i, s := range subjects {
		if s.Name != wantNames[i] {
			t.Errorf("subject[%d] = %q, want %q", i, s.Name, wantNames[i])
		}
	}

	// John's image had two faces: the first embedding is used
	if subjects[1].Embedding[1] != 0 {
		t.Errorf("Expected first face embedding, got %v", subjects[1].Embedding)
	}

	// Mutating the returned slice must not affect the registry
	subjects[0].Name = "Mallory"
	if reg.Subjects()[0].Name != "Ana Lopez" {
		t.Error("Registry was mutated through Subjects()")
	}
}

// noFaceEncoder never finds a face.
type noFaceEncoder struct{}

func (noFaceEncoder) Encode(context.Context, []byte) ([]types.Detection, error) { return nil, nil }

func TestLoadNoFaceIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "blank.jpg"), 8)

	_, err := Load(context.Background(), dir, noFaceEncoder{})
	if !errors.Is(err, ErrNoFace) {
		t.Fatalf("Expected ErrNoFace, got %v", err)
	}
}

func TestLoadEmptyDir(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), noFaceEncoder{})
	if !errors.Is(err, ErrNoSubjects) {
		t.Fatalf("Expected ErrNoSubjects, got %v", err)
	}
}

func TestEuclideanDist(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"Identical", []float64{1, 2}, []float64{1, 2}, 0},
		{"3-4-5", []float64{0, 0}, []float64{3, 4}, 5},
		{"Length mismatch", []float64{1}, []float64{1, 2}, math.Inf(1)},
		{"Empty", nil, nil, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDist(tt.a, tt.b)
			if math.IsInf(tt.want, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("EuclideanDist() = %v, want +Inf", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EuclideanDist() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatcher(t *testing.T) {
	reg := New([]types.KnownSubject{
		{Name: "Jane Doe", Embedding: []float64{0, 0}},
		{Name: "John Smith", Embedding: []float64{0.5, 0}},
		{Name: "Far Away", Embedding: []float64{10, 10}},
	})

	t.Run("Within tolerance of exactly one subject", func(t *testing.T) {
		m := NewMatcher(reg, 0.6, FirstRegistered)
		got := m.Match([]float64{10.1, 10})
		if !got.Known || got.Subject != "Far Away" {
			t.Errorf("Match() = %+v, want Far Away", got)
		}
	})

	t.Run("Within tolerance of none", func(t *testing.T) {
		m := NewMatcher(reg, 0.6, FirstRegistered)
		got := m.Match([]float64{5, 5})
		if got.Known || got.Subject != types.Unknown {
			t.Errorf("Match() = %+v, want Unknown", got)
		}
	})

	t.Run("Boundary distance is a match", func(t *testing.T) {
		m := NewMatcher(reg, 0.5, FirstRegistered)
		got := m.Match([]float64{1.0, 0})
		if got.Subject != "John Smith" {
			t.Errorf("Match() at exactly tolerance = %+v, want John Smith", got)
		}
	})

	// Descriptor at 0.4: Jane is 0.4 away, John is 0.1 away. Both are within tolerance.
	t.Run("First registered wins ties", func(t *testing.T) {
		m := NewMatcher(reg, 0.6, FirstRegistered)
		if got := m.Match([]float64{0.4, 0}); got.Subject != "Jane Doe" {
			t.Errorf("FirstRegistered picked %q, want Jane Doe", got.Subject)
		}
	})

	t.Run("Closest wins ties", func(t *testing.T) {
		m := NewMatcher(reg, 0.6, Closest)
		got := m.Match([]float64{0.4, 0})
		if got.Subject != "John Smith" {
			t.Errorf("Closest picked %q, want John Smith", got.Subject)
		}
		if math.Abs(got.Distance-0.1) > 1e-9 {
			t.Errorf("Distance = %v, want 0.1", got.Distance)
		}
	})

	t.Run("Empty descriptor", func(t *testing.T) {
		m := NewMatcher(reg, 0.6, FirstRegistered)
		if got := m.Match(nil); got.Known {
			t.Errorf("nil descriptor matched %+v", got)
		}
	})

	t.Run("Default tolerance", func(t *testing.T) {
		if m := NewMatcher(reg, 0, Closest); m.Tolerance != DefaultTolerance {
			t.Errorf("Tolerance = %v, want %v", m.Tolerance, DefaultTolerance)
		}
	})
}

func TestParseTieBreak(t *testing.T) {
	for in, want := range map[string]TieBreak{"": FirstRegistered, "first": FirstRegistered, "closest": Closest} {
		got, err := ParseTieBreak(in)
		if err != nil || got != want {
			t.Errorf("ParseTieBreak(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseTieBreak("nearest"); err == nil {
		t.Error("Expected error for unknown rule")
	}
}
