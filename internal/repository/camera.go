package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type CameraRepository struct {
	pool PgxPool
}

func NewCameraRepository(pool PgxPool) *CameraRepository {
	return &CameraRepository{pool: pool}
}

func (r *CameraRepository) List(ctx context.Context) ([]domain.Camera, error) {
	query := `
		SELECT id, name, location, source, status, updated_at
		FROM cameras
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []domain.Camera
	for rows.Next() {
		var (
			c      domain.Camera
			status string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.Source, &status, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		c.Status = domain.CameraStatus(status)
		cameras = append(cameras, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cameras: %w", err)
	}

	return cameras, nil
}

func (r *CameraRepository) Create(ctx context.Context, camera *domain.Camera) error {
	query := `
		INSERT INTO cameras (id, name, location, source, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING updated_at
	`

	if camera.Status == "" {
		camera.Status = domain.CameraOffline
	}

	err := r.pool.QueryRow(ctx, query,
		camera.ID,
		camera.Name,
		camera.Location,
		camera.Source,
		string(camera.Status),
	).Scan(&camera.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCameraExists
		}
		return fmt.Errorf("create camera: %w", err)
	}

	return nil
}

// SetStatus records an online/offline transition. Cameras that only exist
// in the static list are inserted on their first transition.
func (r *CameraRepository) SetStatus(ctx context.Context, cameraID string, status domain.CameraStatus, at time.Time) error {
	query := `
		INSERT INTO cameras (id, status, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.pool.Exec(ctx, query, cameraID, string(status), at); err != nil {
		return fmt.Errorf("set camera status: %w", err)
	}
	return nil
}
