package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// StatusWriter persists camera status transitions
type StatusWriter interface {
	SetStatus(ctx context.Context, cameraID string, status domain.CameraStatus, at time.Time) error
}

type statusUpdate struct {
	cameraID string
	status   domain.CameraStatus
	at       time.Time
}

// StatusWorker writes status transitions in the background. Transitions of
// the same camera inside one batch collapse to the latest.
type StatusWorker struct {
	writer StatusWriter
	logger *slog.Logger

	// Channel with buffer so hub listeners never block
	updateCh chan statusUpdate

	batchInterval time.Duration
	maxBatchSize  int

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StatusWorkerConfig holds configuration for the worker
type StatusWorkerConfig struct {
	BufferSize    int           // Channel buffer size (default: 256)
	BatchInterval time.Duration // Interval to flush a batch (default: 1 second)
	MaxBatchSize  int           // Max transitions per batch (default: 64)
}

// DefaultStatusWorkerConfig returns default configuration
func DefaultStatusWorkerConfig() StatusWorkerConfig {
	return StatusWorkerConfig{
		BufferSize:    256,
		BatchInterval: time.Second,
		MaxBatchSize:  64,
	}
}

func NewStatusWorker(writer StatusWriter, logger *slog.Logger, config StatusWorkerConfig) *StatusWorker {
	defaults := DefaultStatusWorkerConfig()
	if config.BufferSize == 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.BatchInterval == 0 {
		config.BatchInterval = defaults.BatchInterval
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}

	return &StatusWorker{
		writer:        writer,
		logger:        logger,
		updateCh:      make(chan statusUpdate, config.BufferSize),
		batchInterval: config.BatchInterval,
		maxBatchSize:  config.MaxBatchSize,
		done:          make(chan struct{}),
	}
}

// Start begins the background worker
func (w *StatusWorker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("camera status worker started",
		slog.Int("buffer_size", cap(w.updateCh)),
		slog.Duration("batch_interval", w.batchInterval),
	)
}

// Stop flushes pending transitions and waits for the worker to exit
func (w *StatusWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.logger.Info("camera status worker stopped")
	})
}

// Enqueue is non-blocking: if the buffer is full the transition is dropped
// and the next one for that camera will correct the row.
func (w *StatusWorker) Enqueue(cameraID string, status domain.CameraStatus, at time.Time) {
	select {
	case w.updateCh <- statusUpdate{cameraID: cameraID, status: status, at: at}:
	default:
		w.logger.Warn("camera status update dropped - buffer full",
			slog.String("camera_id", cameraID),
			slog.String("status", string(status)),
		)
	}
}

func (w *StatusWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.batchInterval)
	defer ticker.Stop()

	var batch []statusUpdate

	for {
		select {
		case <-w.done:
			// drain whatever is still buffered
			for {
				select {
				case u := <-w.updateCh:
					batch = append(batch, u)
				default:
					w.processBatch(batch)
					return
				}
			}

		case u := <-w.updateCh:
			batch = append(batch, u)
			if len(batch) >= w.maxBatchSize {
				w.processBatch(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.processBatch(batch)
				batch = nil
			}
		}
	}
}

func (w *StatusWorker) processBatch(batch []statusUpdate) {
	if len(batch) == 0 {
		return
	}

	// Latest transition per camera, in first-seen order
	latest := make(map[string]statusUpdate, len(batch))
	order := make([]string, 0, len(batch))
	for _, u := range batch {
		if _, ok := latest[u.cameraID]; !ok {
			order = append(order, u.cameraID)
		}
		latest[u.cameraID] = u
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, id := range order {
		u := latest[id]
		if err := w.writer.SetStatus(ctx, u.cameraID, u.status, u.at); err != nil {
			w.logger.Error("failed to persist camera status",
				slog.String("camera_id", u.cameraID),
				slog.Any("error", err),
			)
		}
	}
}
