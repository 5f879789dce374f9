// Package evidence keeps the most recent frames of every camera so an alert
// can be saved together with what led up to it.
package evidence

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const DefaultFrames = 60

var ErrNoFrames = errors.New("no buffered frames for camera")

type Config struct {
	// Dir receives one sub-directory per camera
	Dir string
	// Frames is the per-camera buffer length
	Frames int
}

// frameRing holds the last cap frames, oldest first when read
type frameRing struct {
	frames []domain.Frame
	next   int
	full   bool
}

func (r *frameRing) push(f domain.Frame) {
	r.frames[r.next] = f
	r.next = (r.next + 1) % len(r.frames)
	if r.next == 0 {
		r.full = true
	}
}

func (r *frameRing) snapshot() []domain.Frame {
	if !r.full {
		return append([]domain.Frame(nil), r.frames[:r.next]...)
	}
	out := make([]domain.Frame, 0, len(r.frames))
	out = append(out, r.frames[r.next:]...)
	return append(out, r.frames[:r.next]...)
}

// Recorder buffers frames per camera and flushes them to MJPEG files
// (concatenated JPEG frames) on demand.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buffers map[string]*frameRing
}

func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.Frames < 1 {
		cfg.Frames = DefaultFrames
	}
	if cfg.Dir == "" {
		return nil, errors.New("evidence dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}

	return &Recorder{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "evidence")),
		buffers: make(map[string]*frameRing),
	}, nil
}

// Add appends a frame to its camera buffer, evicting the oldest. The frame
// payload is retained, not copied; frames are never mutated after publish.
func (r *Recorder) Add(frame domain.Frame) {
	if len(frame.Data) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ring, ok := r.buffers[frame.CameraID]
	if !ok {
		ring = &frameRing{frames: make([]domain.Frame, r.cfg.Frames)}
		r.buffers[frame.CameraID] = ring
	}
	ring.push(frame)
}

// Buffered returns how many frames are held for the camera
func (r *Recorder) Buffered(cameraID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ring, ok := r.buffers[cameraID]
	if !ok {
		return 0
	}
	if ring.full {
		return len(ring.frames)
	}
	return ring.next
}

// Forget drops the camera buffer
func (r *Recorder) Forget(cameraID string) {
	r.mu.Lock()
	delete(r.buffers, cameraID)
	r.mu.Unlock()
}

// Capture writes the camera buffer to <dir>/<camera>/<time>_<alert>.mjpeg
// and returns the file path.
func (r *Recorder) Capture(ctx context.Context, cameraID string, alertID uuid.UUID) (string, error) {
	r.mu.Lock()
	ring, ok := r.buffers[cameraID]
	var frames []domain.Frame
	if ok {
		frames = ring.snapshot()
	}
	r.mu.Unlock()

	if len(frames) == 0 {
		return "", fmt.Errorf("camera %s: %w", cameraID, ErrNoFrames)
	}

	dir := filepath.Join(r.cfg.Dir, filepath.Base(cameraID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create camera evidence dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.mjpeg", frames[len(frames)-1].CapturedAt.UTC().Format("20060102T150405"), alertID)
	path := filepath.Join(dir, name)

	if err := writeClip(ctx, dir, path, frames); err != nil {
		return "", err
	}

	r.logger.Info("evidence saved",
		slog.String("camera_id", cameraID),
		slog.String("path", path),
		slog.Int("frames", len(frames)),
	)
	return path, nil
}

// writeClip writes into a temp file and renames it so readers never see a
// partial clip.
func writeClip(ctx context.Context, dir, path string, frames []domain.Frame) (err error) {
	tmp, err := os.CreateTemp(dir, ".clip-*")
	if err != nil {
		return fmt.Errorf("create evidence file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Write(f.Data); err != nil {
			return fmt.Errorf("write evidence: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush evidence: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close evidence: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename evidence: %w", err)
	}
	return nil
}
