package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type fakeSource struct {
	all    []domain.EnrolledIdentity
	byID   map[string]*domain.EnrolledIdentity
	allErr error
}

func (f *fakeSource) LoadAll(ctx context.Context) ([]domain.EnrolledIdentity, error) {
	return f.all, f.allErr
}

func (f *fakeSource) LoadIdentity(ctx context.Context, identityID string) (*domain.EnrolledIdentity, error) {
	identity, ok := f.byID[identityID]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return identity, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoader_Reload(t *testing.T) {
	store := NewStore(DefaultThreshold)
	source := &fakeSource{
		all: []domain.EnrolledIdentity{
			{ID: "1", Embeddings: [][]float64{unitAxis(domain.EmbeddingDimension, 0)}},
			{ID: "2", Embeddings: [][]float64{unitAxis(domain.EmbeddingDimension, 1), unitAxis(domain.EmbeddingDimension, 2)}},
			{ID: "3", Embeddings: [][]float64{{1, 2, 3}}},
		},
	}
	loader := NewLoader(store, source, discardLogger())

	n, err := loader.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, store.Embeddings())
}

func TestLoader_ReloadSourceError(t *testing.T) {
	store := NewStore(DefaultThreshold)
	require.NoError(t, store.AddEmbedding("keep", unitAxis(domain.EmbeddingDimension, 0)))

	loader := NewLoader(store, &fakeSource{allErr: errors.New("connection refused")}, discardLogger())

	_, err := loader.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load enrollments")
	assert.True(t, store.Has("keep"))
}

func TestLoader_Refresh(t *testing.T) {
	store := NewStore(DefaultThreshold)
	require.NoError(t, store.AddEmbedding("gone", unitAxis(domain.EmbeddingDimension, 0)))

	source := &fakeSource{
		byID: map[string]*domain.EnrolledIdentity{
			"new": {ID: "new", Embeddings: [][]float64{unitAxis(domain.EmbeddingDimension, 4)}},
		},
	}
	loader := NewLoader(store, source, discardLogger())

	require.NoError(t, loader.Refresh(context.Background(), "new"))
	require.NoError(t, loader.Refresh(context.Background(), "gone"))

	assert.True(t, store.Has("new"))
	assert.False(t, store.Has("gone"))
}
