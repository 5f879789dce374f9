package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type MockNameSource struct {
	mock.Mock
}

func (m *MockNameSource) DisplayName(ctx context.Context, identityID string) (string, error) {
	args := m.Called(ctx, identityID)
	return args.String(0), args.Error(1)
}

// blockingSource never answers before ctx is done.
type blockingSource struct{}

func (blockingSource) DisplayName(ctx context.Context, identityID string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNames_Name(t *testing.T) {
	ctx := context.Background()

	t.Run("empty id is unknown", func(t *testing.T) {
		src := new(MockNameSource)
		names := NewNames(src, 0, discardLogger())

		assert.Equal(t, domain.UnknownIdentity, names.Name(ctx, ""))
		src.AssertNotCalled(t, "DisplayName", mock.Anything, mock.Anything)
	})

	t.Run("reads through once", func(t *testing.T) {
		src := new(MockNameSource)
		src.On("DisplayName", mock.Anything, "alice").Return("Alice Doe", nil).Once()
		names := NewNames(src, 0, discardLogger())

		assert.Equal(t, "Alice Doe", names.Name(ctx, "alice"))
		assert.Equal(t, "Alice Doe", names.Name(ctx, "alice"))
		src.AssertNumberOfCalls(t, "DisplayName", 1)
	})

	t.Run("not found falls back to id and is cached", func(t *testing.T) {
		src := new(MockNameSource)
		src.On("DisplayName", mock.Anything, "ghost").Return("", domain.ErrIdentityNotFound).Once()
		names := NewNames(src, 0, discardLogger())

		assert.Equal(t, "ghost", names.Name(ctx, "ghost"))
		assert.Equal(t, "ghost", names.Name(ctx, "ghost"))
		src.AssertNumberOfCalls(t, "DisplayName", 1)
	})

	t.Run("transient error is held briefly", func(t *testing.T) {
		src := new(MockNameSource)
		src.On("DisplayName", mock.Anything, "bob").Return("", errors.New("connection refused")).Once()
		src.On("DisplayName", mock.Anything, "bob").Return("Bob Roe", nil).Once()
		names := NewNames(src, 0, discardLogger())

		assert.Equal(t, "bob", names.Name(ctx, "bob"))
		assert.Equal(t, "bob", names.Name(ctx, "bob"))
		src.AssertNumberOfCalls(t, "DisplayName", 1)

		item, found := names.cache.Items()["bob"]
		assert.True(t, found)
		assert.WithinDuration(t, time.Now().Add(failureTTL), time.Unix(0, item.Expiration), time.Second)

		names.Forget("bob")
		assert.Equal(t, "Bob Roe", names.Name(ctx, "bob"))
	})

	t.Run("hung source is bounded by ctx", func(t *testing.T) {
		names := NewNames(blockingSource{}, 0, discardLogger())
		deadline, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()

		began := time.Now()
		assert.Equal(t, "dave", names.Name(deadline, "dave"))
		assert.Less(t, time.Since(began), time.Second)
	})

	t.Run("nil source uses id", func(t *testing.T) {
		names := NewNames(nil, 0, discardLogger())

		assert.Equal(t, "carol", names.Name(ctx, "carol"))
	})
}

func TestNames_ForgetAndFlush(t *testing.T) {
	ctx := context.Background()
	src := new(MockNameSource)
	src.On("DisplayName", mock.Anything, "alice").Return("Alice", nil).Once()
	src.On("DisplayName", mock.Anything, "alice").Return("Alice Renamed", nil).Once()
	src.On("DisplayName", mock.Anything, "bob").Return("Bob", nil)
	names := NewNames(src, 0, discardLogger())

	assert.Equal(t, "Alice", names.Name(ctx, "alice"))
	names.Forget("alice")
	assert.Equal(t, "Alice Renamed", names.Name(ctx, "alice"))

	names.Name(ctx, "bob")
	assert.Equal(t, 2, names.Len())
	names.Flush()
	assert.Equal(t, 0, names.Len())
}
