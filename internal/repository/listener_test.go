package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifyConn struct {
	notes  chan *pgconn.Notification
	execs  []string
	failOn error
}

func (c *fakeNotifyConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeNotifyConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case n, ok := <-c.notes:
		if !ok {
			return nil, c.failOn
		}
		return n, nil
	}
}

type recordingHandler struct {
	mu        sync.Mutex
	refreshed []string
	reloads   int
	changed   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{changed: make(chan struct{}, 16)}
}

func (h *recordingHandler) Refresh(ctx context.Context, identityID string) error {
	h.mu.Lock()
	h.refreshed = append(h.refreshed, identityID)
	h.mu.Unlock()
	h.changed <- struct{}{}
	return nil
}

func (h *recordingHandler) Reload(ctx context.Context) (int, error) {
	h.mu.Lock()
	h.reloads++
	h.mu.Unlock()
	h.changed <- struct{}{}
	return 0, nil
}

func (h *recordingHandler) snapshot() ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.refreshed...), h.reloads
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnrollmentListener_RelaysNotifications(t *testing.T) {
	conn := &fakeNotifyConn{notes: make(chan *pgconn.Notification, 4)}
	handler := newRecordingHandler()
	released := make(chan struct{})

	connect := func(ctx context.Context) (NotifyConn, func(), error) {
		return conn, func() { close(released) }, nil
	}
	listener := NewEnrollmentListener(connect, handler, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		listener.Run(ctx)
		close(done)
	}()

	conn.notes <- &pgconn.Notification{Channel: EnrollmentChannel, Payload: "alice"}
	waitFor(t, handler.changed)
	conn.notes <- &pgconn.Notification{Channel: EnrollmentChannel, Payload: ""}
	waitFor(t, handler.changed)

	cancel()
	<-done
	<-released

	refreshed, reloads := handler.snapshot()
	assert.Equal(t, []string{"alice"}, refreshed)
	assert.Equal(t, 1, reloads)
	require.Len(t, conn.execs, 1)
	assert.Equal(t, `LISTEN "enrollment_changed"`, conn.execs[0])
}

func TestEnrollmentListener_ReloadsAfterReconnect(t *testing.T) {
	broken := &fakeNotifyConn{notes: make(chan *pgconn.Notification), failOn: errors.New("conn closed")}
	close(broken.notes)
	healthy := &fakeNotifyConn{notes: make(chan *pgconn.Notification)}

	var mu sync.Mutex
	attempts := 0
	connect := func(ctx context.Context) (NotifyConn, func(), error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return broken, func() {}, nil
		}
		return healthy, func() {}, nil
	}

	handler := newRecordingHandler()
	listener := NewEnrollmentListener(connect, handler, discardLogger())
	listener.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		listener.Run(ctx)
		close(done)
	}()

	waitFor(t, handler.changed)
	cancel()
	<-done

	_, reloads := handler.snapshot()
	assert.Equal(t, 1, reloads)
}

func TestEnrollmentListener_StopsWhileConnectFails(t *testing.T) {
	connect := func(ctx context.Context) (NotifyConn, func(), error) {
		return nil, nil, errors.New("database down")
	}
	listener := NewEnrollmentListener(connect, newRecordingHandler(), discardLogger())
	listener.backoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		listener.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
