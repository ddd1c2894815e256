package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/types"
)

func TestAnnotateIdentity(t *testing.T) {
	r := image.Rect(10, 10, 100, 100)
	anns := Annotate(config.ModeIdentity, []Result{
		{Region: r, Subject: "Jane Doe", Outcome: Recorded},
		{Region: r, Subject: "John Smith", Outcome: AlreadyRecorded},
		{Region: r, Subject: "ignored", Outcome: Unrecognised},
	})

	want := []Annotation{
		{Region: r, Label: "Jane Doe", Color: Green},
		{Region: r, Label: "John Smith", Color: Yellow},
		{Region: r, Label: types.Unknown, Color: Red},
	}
	if len(anns) != len(want) {
		t.Fatalf("Expected %d annotations, got %d", len(want), len(anns))
	}
	for i := range want {
		if anns[i] != want[i] {
			t.Errorf("anns[%d] = %+v, want %+v", i, anns[i], want[i])
		}
	}
}

func TestAnnotatePresence(t *testing.T) {
	anns := Annotate(config.ModePresence, []Result{
		{Region: image.Rect(0, 0, 5, 5), Outcome: Present},
		{Region: image.Rect(10, 10, 15, 15), Outcome: Present},
	})
	for _, a := range anns {
		if a.Color != Blue || a.Label != "" {
			t.Errorf("Presence annotation = %+v, want blue without label", a)
		}
	}
}

func TestDraw(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	box := image.Rect(20, 20, 120, 120)
	Draw(img, []Annotation{{Region: box, Label: "Jane Doe", Color: Green}})

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"Top edge", 60, 20, Green},
		{"Second pixel of thickness", 60, 21, Green},
		{"Inside the box", 60, 60, color.RGBA{}},
		{"Label strip", 110, 120 - LabelHeight + 1, Green},
		{"Above the strip", 110, 120 - LabelHeight - 2, color.RGBA{}},
		{"Outside the box", 150, 150, color.RGBA{}},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("%s: pixel (%d,%d) = %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}

	// Some white text must have been drawn inside the strip
	white := 0
	for y := 120 - LabelHeight; y < 120; y++ {
		for x := 20; x < 120; x++ {
			if img.RGBAAt(x, y) == White {
				white++
			}
		}
	}
	if white == 0 {
		t.Error("No label text drawn")
	}
}

func TestDrawClipsToFrame(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	// Must not panic for boxes partly or fully off-frame
	Draw(img, []Annotation{
		{Region: image.Rect(-10, -10, 30, 30), Label: "Edge", Color: Red},
		{Region: image.Rect(100, 100, 200, 200), Label: "Gone", Color: Red},
	})
	if img.RGBAAt(0, 29) != Red {
		t.Error("Visible part of the clipped box was not drawn")
	}
}

func testFrame(t *testing.T, index int) types.Frame {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 160, 120)), nil); err != nil {
		t.Fatal(err)
	}
	return types.Frame{Index: index, Data: buf.Bytes()}
}

func TestHeadless(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	h, err := NewHeadless(dir)
	if err != nil {
		t.Fatal(err)
	}

	anns := []Annotation{{Region: image.Rect(10, 10, 80, 80), Label: "Jane Doe", Color: Green}}
	quit, err := h.Render(testFrame(t, 30), anns)
	if err != nil || quit {
		t.Fatalf("Render() = %v, %v", quit, err)
	}
	// Frames without annotations are not saved
	if _, err := h.Render(testFrame(t, 60), nil); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "frame_000030.jpg" {
		t.Fatalf("Expected only frame_000030.jpg, got %v", entries)
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("Saved frame is not a JPEG: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Error(err)
	}
}

func TestHeadlessWithoutDebugDir(t *testing.T) {
	h, err := NewHeadless("")
	if err != nil {
		t.Fatal(err)
	}
	// Garbage data is never decoded when nothing is saved
	quit, err := h.Render(types.Frame{Data: []byte("x")}, []Annotation{{Color: Red}})
	if err != nil || quit {
		t.Errorf("Render() = %v, %v", quit, err)
	}
}

func TestLabelGeometry(t *testing.T) {
	// Operators compare the window against recorded footage, so the box and
	// label layout is fixed.
	if Thickness != 2 || LabelHeight != 35 || LabelInsetX != 6 || LabelInsetY != 6 {
		t.Errorf("geometry = %d/%d/%d/%d, want 2/35/6/6", Thickness, LabelHeight, LabelInsetX, LabelInsetY)
	}
	if LabelFontScale != 0.6 {
		t.Errorf("LabelFontScale = %v, want 0.6", LabelFontScale)
	}
}
