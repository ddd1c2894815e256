package overlay

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andresmejia3/rollcall/internal/types"
)

// Headless renders nothing on screen. With DebugDir set it saves every
// annotated frame as frame_<index>.jpg.
type Headless struct {
	DebugDir string
	saved    int
}

func NewHeadless(debugDir string) (*Headless, error) {
	if debugDir != "" {
		if err := os.MkdirAll(debugDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create debug directory: %w", err)
		}
	}
	return &Headless{DebugDir: debugDir}, nil
}

func (h *Headless) Render(frame types.Frame, anns []Annotation) (bool, error) {
	if h.DebugDir == "" || len(anns) == 0 {
		return false, nil
	}
	out, err := DrawJPEG(frame.Data, anns)
	if err != nil {
		return false, fmt.Errorf("failed to draw frame %d: %w", frame.Index, err)
	}
	path := filepath.Join(h.DebugDir, fmt.Sprintf("frame_%06d.jpg", frame.Index))
	if err := os.WriteFile(path, out, 0644); err != nil {
		return false, err
	}
	h.saved++
	return false, nil
}

func (h *Headless) Close() error {
	if h.saved > 0 {
		slog.Info("debug frames saved", "dir", h.DebugDir, "count", h.saved)
	}
	return nil
}
