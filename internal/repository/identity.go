package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// IdentityRepository reads enrolled identities and their embeddings.
// Enrollment itself happens outside this service.
type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// LoadAll returns every identity with its embeddings. Identities without
// embeddings are included with an empty set.
func (r *IdentityRepository) LoadAll(ctx context.Context) ([]domain.EnrolledIdentity, error) {
	query := `
		SELECT i.id, i.display_name, e.embedding
		FROM identities i
		LEFT JOIN face_embeddings e ON e.identity_id = i.id
		ORDER BY i.id, e.created_at
	`

	identities, err := r.load(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	return identities, nil
}

// LoadIdentity returns one identity or domain.ErrIdentityNotFound
func (r *IdentityRepository) LoadIdentity(ctx context.Context, identityID string) (*domain.EnrolledIdentity, error) {
	query := `
		SELECT i.id, i.display_name, e.embedding
		FROM identities i
		LEFT JOIN face_embeddings e ON e.identity_id = i.id
		WHERE i.id = $1
		ORDER BY e.created_at
	`

	identities, err := r.load(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("load identity %s: %w", identityID, err)
	}
	if len(identities) == 0 {
		return nil, domain.ErrIdentityNotFound
	}
	return &identities[0], nil
}

// DisplayName returns the name shown on overlays for an identity
func (r *IdentityRepository) DisplayName(ctx context.Context, identityID string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT display_name FROM identities WHERE id = $1`, identityID).Scan(&name)
	if isNoRows(err) {
		return "", domain.ErrIdentityNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get display name: %w", err)
	}
	return name, nil
}

// load folds the identity/embedding join, which arrives grouped by identity
func (r *IdentityRepository) load(ctx context.Context, query string, args ...any) ([]domain.EnrolledIdentity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []domain.EnrolledIdentity
	for rows.Next() {
		var (
			id, name  string
			embedding *pgvector.Vector
		)
		if err := rows.Scan(&id, &name, &embedding); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}

		if len(identities) == 0 || identities[len(identities)-1].ID != id {
			identities = append(identities, domain.EnrolledIdentity{ID: id, DisplayName: name})
		}

		if embedding != nil && embedding.Slice() != nil {
			cur := &identities[len(identities)-1]
			cur.Embeddings = append(cur.Embeddings, toFloat64(embedding.Slice()))
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, nil
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
