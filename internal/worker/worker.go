package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils" // Using the SafeCommand wrapper
)

// EmbeddingSize is the length of a face_recognition encoding.
const EmbeddingSize = 128

var (
	// ErrWorker prefixes every error reported by the Python side.
	ErrWorker = errors.New("python worker error")
	// ErrTimeout is returned when the worker does not answer within Timeout.
	ErrTimeout = errors.New("python worker timed out")
)

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration
}

func NewPythonWorker(ctx context.Context, id int, script string, timeout time.Duration) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, "python3", "-u", script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  timeout,
	}, nil
}

// Communicate sends one request and returns the raw response body.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends a JPEG and decodes the faces found in it.
// Response: [Status:0][NumFaces] then per face [Box: 4 x int32][Vec: 128 x float32]
// or [Status:1][MsgLen][Msg].
func (w *PythonWorker) ProcessFrame(data []byte) ([]types.FaceResult, error) {
	body, err := w.Communicate(data)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrWorker)
	}

	r := bytes.NewReader(body[1:])
	if body[0] != 0 {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("%w: malformed error response", ErrWorker)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("%w: truncated error message", ErrWorker)
		}
		return nil, fmt.Errorf("%w: %s", ErrWorker, msg)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("failed to read face count: %w", err)
	}

	faces := make([]types.FaceResult, 0, n)
	for i := uint32(0); i < n; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("failed to read box %d: %w", i, err)
		}
		var vec [EmbeddingSize]float32
		if err := binary.Read(r, binary.BigEndian, &vec); err != nil {
			return nil, fmt.Errorf("failed to read encoding %d: %w", i, err)
		}

		res := types.FaceResult{
			Loc: []int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Vec: make([]float64, EmbeddingSize),
		}
		for j, v := range vec {
			res.Vec[j] = float64(v)
		}
		faces = append(faces, res)
	}
	return faces, nil
}

type frameResult struct {
	faces []types.FaceResult
	err   error
}

// Encode implements detector.Backend and registry.Encoder.
// A worker that overruns Timeout or outlives ctx is killed, since the
// pipe is left mid-message and cannot be reused.
func (w *PythonWorker) Encode(ctx context.Context, jpeg []byte) ([]types.Detection, error) {
	done := make(chan frameResult, 1)
	go func() {
		faces, err := w.ProcessFrame(jpeg)
		done <- frameResult{faces, err}
	}()

	var timeout <-chan time.Time
	if w.Timeout > 0 {
		t := time.NewTimer(w.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return toDetections(res.faces), nil
	case <-timeout:
		w.kill()
		return nil, fmt.Errorf("worker %d: %w after %s", w.ID, ErrTimeout, w.Timeout)
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	}
}

func toDetections(faces []types.FaceResult) []types.Detection {
	out := make([]types.Detection, 0, len(faces))
	for _, f := range faces {
		out = append(out, types.Detection{Region: f.Rect(), Descriptor: f.Vec})
	}
	return out
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	w.DataPipe.Close()
}

func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	if err := w.Cmd.Wait(); err != nil {
		return fmt.Errorf("worker %d exited: %w", w.ID, err)
	}
	return nil
}
