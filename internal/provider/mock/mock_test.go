package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/identity"
)

func frame(seed byte) []byte {
	image := make([]byte, 5000)
	for i := range image {
		image[i] = byte(i%256) ^ seed
	}
	return image
}

func TestProvider_AnalyzeFaces(t *testing.T) {
	p := New()
	ctx := context.Background()

	tests := []struct {
		name      string
		image     []byte
		wantFaces int
		wantErr   bool
	}{
		{name: "valid image", image: frame(0), wantFaces: 1},
		{name: "image too small", image: make([]byte, 4), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faces, err := p.AnalyzeFaces(ctx, tt.image)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			require.Len(t, faces, tt.wantFaces)
			assert.Len(t, faces[0].Embedding, domain.EmbeddingDimension)
		})
	}
}

func TestEmbeddingFor_Deterministic(t *testing.T) {
	a := EmbeddingFor(frame(1))
	b := EmbeddingFor(frame(1))
	c := EmbeddingFor(frame(2))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	store := identity.NewStore(identity.DefaultThreshold)
	require.NoError(t, store.AddEmbedding("same", a))
	match, ok := store.Match(b)
	require.True(t, ok)
	assert.InDelta(t, 1.0, match.Score, 1e-9)
}

func TestEmbeddingFor_MatchesEnrolledFrame(t *testing.T) {
	store := identity.NewStore(identity.DefaultThreshold)
	require.NoError(t, store.AddEmbedding("alice", EmbeddingFor(frame(7))))

	faces, err := New().AnalyzeFaces(context.Background(), frame(7))
	require.NoError(t, err)

	match, ok := store.Match(faces[0].Embedding)
	require.True(t, ok)
	assert.Equal(t, "alice", match.IdentityID)
}

func TestProvider_DetectPeople(t *testing.T) {
	people, err := New().DetectPeople(context.Background(), frame(0))

	require.NoError(t, err)
	require.Len(t, people, 1)
	require.NotNil(t, people[0].Pose)
	pose := people[0].Pose
	assert.Less(t, pose[domain.KeypointLeftShoulder].Y, pose[domain.KeypointLeftHip].Y)
	assert.Less(t, pose[domain.KeypointLeftHip].Y, pose[domain.KeypointLeftAnkle].Y)

	_, err = New().DetectPeople(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
}
