// Package camera keeps the set of cameras allowed to publish frames and
// their last known status.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Store is the camera table
type Store interface {
	StatusWriter
	List(ctx context.Context) ([]domain.Camera, error)
	Create(ctx context.Context, camera *domain.Camera) error
}

// Registry merges the camera table with the static CAMERAS list. Ingest is
// accepted only for cameras it knows.
type Registry struct {
	store  Store
	worker *StatusWorker
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	cameras map[string]domain.Camera
}

// NewRegistry builds a registry seeded with the static camera ids. A nil
// store keeps the registry in memory only.
func NewRegistry(store Store, static []string, logger *slog.Logger) *Registry {
	r := &Registry{
		store:   store,
		logger:  logger.With(slog.String("component", "camera_registry")),
		now:     time.Now,
		cameras: make(map[string]domain.Camera),
	}
	for _, id := range static {
		if id == "" {
			continue
		}
		r.cameras[id] = domain.Camera{ID: id, Name: id, Status: domain.CameraOffline}
	}
	if store != nil {
		r.worker = NewStatusWorker(store, r.logger, DefaultStatusWorkerConfig())
	}
	return r
}

// Start loads the camera table and starts the status writer
func (r *Registry) Start(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	cameras, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load cameras: %w", err)
	}

	r.mu.Lock()
	for _, c := range cameras {
		// producers reconnect after a restart; nothing is online yet
		c.Status = domain.CameraOffline
		r.cameras[c.ID] = c
	}
	n := len(r.cameras)
	r.mu.Unlock()

	r.worker.Start()
	r.logger.Info("camera registry loaded", slog.Int("cameras", n))
	return nil
}

// Stop flushes pending status writes
func (r *Registry) Stop() {
	if r.worker != nil {
		r.worker.Stop()
	}
}

// Accepts reports whether frames from the camera may be ingested
func (r *Registry) Accepts(cameraID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cameras[cameraID]
	return ok
}

func (r *Registry) Get(cameraID string) (domain.Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cameras[cameraID]
	return c, ok
}

// List returns all cameras ordered by id
func (r *Registry) List() []domain.Camera {
	r.mu.RLock()
	out := make([]domain.Camera, 0, len(r.cameras))
	for _, c := range r.cameras {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Register adds a camera to the table and the registry
func (r *Registry) Register(ctx context.Context, camera domain.Camera) (domain.Camera, error) {
	if camera.ID == "" {
		return domain.Camera{}, domain.ErrValidationFailed.WithError(errors.New("camera id is required"))
	}
	camera.Status = domain.CameraOffline

	r.mu.RLock()
	_, exists := r.cameras[camera.ID]
	r.mu.RUnlock()
	if exists {
		return domain.Camera{}, domain.ErrCameraExists
	}

	if r.store != nil {
		if err := r.store.Create(ctx, &camera); err != nil {
			return domain.Camera{}, err
		}
	} else {
		camera.UpdatedAt = r.now()
	}

	r.mu.Lock()
	r.cameras[camera.ID] = camera
	r.mu.Unlock()

	r.logger.Info("camera registered", slog.String("camera_id", camera.ID))
	return camera, nil
}

// SetStatus records a transition in memory and queues it for persistence.
// It never blocks, so it can be used as a hub status listener.
func (r *Registry) SetStatus(cameraID string, status domain.CameraStatus) {
	now := r.now()

	r.mu.Lock()
	c, ok := r.cameras[cameraID]
	if ok {
		c.Status = status
		c.UpdatedAt = now
		r.cameras[cameraID] = c
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.worker != nil {
		r.worker.Enqueue(cameraID, status, now)
	}
}
