package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

func newTestSink(t *testing.T, url string) *Sink {
	t.Helper()
	sink, err := NewSink(Config{
		URL:         url,
		Secret:      "s3cret",
		MaxAttempts: 3,
		Timeout:     time.Second,
		BaseDelay:   time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return sink
}

func TestSink_PublishAlert_SignsPayload(t *testing.T) {
	alert := domain.Alert{ID: uuid.New(), CameraID: "cam-1", Label: "falling", Severity: domain.SeverityHigh}

	var received EventPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, Sign("s3cret", body), r.Header.Get(HeaderSignature))
		assert.Equal(t, EventAlert, r.Header.Get(HeaderEvent))
		assert.Equal(t, alert.ID.String(), r.Header.Get(HeaderDelivery))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestSink(t, server.URL).PublishAlert(context.Background(), alert)

	require.NoError(t, err)
	assert.Equal(t, alert.ID, received.ID)
	assert.Equal(t, EventAlert, received.Type)
}

func TestSink_PublishAttendance(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, EventAttendance, r.Header.Get(HeaderEvent))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestSink(t, server.URL).PublishAttendance(context.Background(), domain.AttendanceEvent{ID: uuid.New(), IdentityID: "alice"})

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSink_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
	}{
		{name: "recovers after 5xx", statuses: []int{500, 503, 200}, wantCalls: 3},
		{name: "retries 429", statuses: []int{429, 200}, wantCalls: 2},
		{name: "gives up", statuses: []int{500, 500, 500}, wantCalls: 3, wantErr: true},
		{name: "4xx is final", statuses: []int{400}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer server.Close()

			err := newTestSink(t, server.URL).Send(context.Background(), EventPayload{Type: EventAlert})

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestSink_RejectedIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	err := newTestSink(t, server.URL).Send(context.Background(), EventPayload{Type: EventAlert})

	assert.ErrorIs(t, err, ErrRejected)
}

func TestSink_StopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sink := newTestSink(t, server.URL)
	sink.config.BaseDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sink.Send(ctx, EventPayload{Type: EventAlert})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSink_RequiresURL(t *testing.T) {
	_, err := NewSink(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
