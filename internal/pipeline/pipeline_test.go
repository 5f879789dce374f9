package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
	"github.com/saturnino-fabrica-de-software/vigia/internal/identity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/mediator"
	"github.com/saturnino-fabrica-de-software/vigia/internal/metrics"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
)

const camera = "cam-1"

type recordingSink struct {
	mu         sync.Mutex
	attendance []domain.AttendanceEvent
	alerts     []domain.Alert
}

func (s *recordingSink) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance = append(s.attendance, event)
	return nil
}

func (s *recordingSink) PublishAlert(ctx context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attendance), len(s.alerts)
}

// spyRecorder records destroyed tracks on top of the real mediator.
type spyRecorder struct {
	*mediator.Mediator
	mu        sync.Mutex
	forgotten []uint64
}

func (r *spyRecorder) ForgetTrack(cameraID string, trackID uint64) {
	r.mu.Lock()
	r.forgotten = append(r.forgotten, trackID)
	r.mu.Unlock()
	r.Mediator.ForgetTrack(cameraID, trackID)
}

func (r *spyRecorder) forgottenTracks() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.forgotten...)
}

type fakeBuffer struct {
	added     int32
	forgotten int32
}

func (b *fakeBuffer) Add(frame domain.Frame) { atomic.AddInt32(&b.added, 1) }
func (b *fakeBuffer) Forget(string)          { atomic.AddInt32(&b.forgotten, 1) }

type overlayChan chan domain.Overlay

func (c overlayChan) PublishOverlay(o domain.Overlay) { c <- o }

type countingFaces struct {
	inner provider.FaceAnalyzer
	calls int32
}

func (c *countingFaces) AnalyzeFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.AnalyzeFaces(ctx, image)
}

// stuckFaces never answers before the deadline.
type stuckFaces struct{}

func (stuckFaces) AnalyzeFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// slowNames answers only after delay unless ctx ends first.
type slowNames struct {
	delay time.Duration
}

func (s slowNames) Name(ctx context.Context, identityID string) string {
	select {
	case <-time.After(s.delay):
		return "Alice Doe"
	case <-ctx.Done():
		return identityID
	}
}

type harness struct {
	hub      *hub.Hub
	store    *identity.Store
	sink     *recordingSink
	recorder *spyRecorder
	evidence *fakeBuffer
	overlays overlayChan
	metrics  *metrics.Metrics
	pipeline *Pipeline
}

func newHarness(t *testing.T, cfg Config, faces provider.FaceAnalyzer, people provider.PersonDetector, opts ...func(*Deps)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewUnregistered()

	h := &harness{
		hub:      hub.New(hub.Config{QueueSize: 64, OfflineGrace: 50 * time.Millisecond}, m, logger),
		store:    identity.NewStore(0.4),
		sink:     &recordingSink{},
		evidence: &fakeBuffer{},
		overlays: make(overlayChan, 64),
		metrics:  m,
	}
	h.recorder = &spyRecorder{Mediator: mediator.New(mediator.Config{}, h.sink, m, logger)}

	deps := Deps{
		Frames:     h.hub,
		Faces:      faces,
		People:     people,
		Matcher:    h.store,
		Classifier: activity.NewClassifier(activity.DefaultConfig(), nil, logger),
		Recorder:   h.recorder,
		Evidence:   h.evidence,
		Overlays:   h.overlays,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.pipeline = New(cfg, deps, m, logger)
	h.hub.OnStatusChange(h.pipeline.CameraStatus)

	ctx, cancel := context.WithCancel(context.Background())
	h.pipeline.Start(ctx)
	t.Cleanup(func() {
		cancel()
		h.pipeline.Stop()
		h.hub.Close()
	})
	return h
}

func frame(n int) []byte {
	return []byte(fmt.Sprintf("jpeg-frame-%04d-with-padding", n))
}

func (h *harness) publish(t *testing.T, data []byte) {
	t.Helper()
	_, err := h.hub.Publish(camera, data, time.Time{})
	require.NoError(t, err)
}

func (h *harness) nextOverlay(t *testing.T) domain.Overlay {
	t.Helper()
	select {
	case o := <-h.overlays:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for overlay")
		return domain.Overlay{}
	}
}

func TestPipeline_RepublishedFrameRecordsAttendanceOnce(t *testing.T) {
	p := mock.New()
	h := newHarness(t, Config{ProcessEveryN: 1}, p, p)
	img := frame(1)
	require.NoError(t, h.store.AddEmbedding("alice", mock.EmbeddingFor(img)))

	h.pipeline.Watch(camera)
	h.publish(t, img)
	first := h.nextOverlay(t)
	h.publish(t, img)
	second := h.nextOverlay(t)

	require.Len(t, first.Faces, 1)
	assert.Equal(t, "alice", first.Faces[0].IdentityID)
	assert.Equal(t, "alice", first.Faces[0].Name)
	assert.InDelta(t, 1.0, first.Faces[0].Score, 1e-9)
	assert.Greater(t, second.Seq, first.Seq)

	attendance, _ := h.sink.counts()
	assert.Equal(t, 1, attendance)
}

func TestPipeline_NameLookupBoundedByFrameDeadline(t *testing.T) {
	p := mock.New()
	h := newHarness(t, Config{ProcessEveryN: 1, FrameDeadline: 100 * time.Millisecond}, p, p, func(d *Deps) {
		d.Names = slowNames{delay: 3 * time.Second}
	})
	img := frame(1)
	require.NoError(t, h.store.AddEmbedding("alice", mock.EmbeddingFor(img)))

	h.pipeline.Watch(camera)
	began := time.Now()
	h.publish(t, img)
	o := h.nextOverlay(t)

	assert.Less(t, time.Since(began), time.Second)
	require.Len(t, o.Faces, 1)
	assert.Equal(t, "alice", o.Faces[0].IdentityID)
	assert.Equal(t, "alice", o.Faces[0].Name, "falls back to the identity id")
}

func TestPipeline_UnknownFaceAndPendingTrack(t *testing.T) {
	p := mock.New()
	h := newHarness(t, Config{ProcessEveryN: 1}, p, p)
	require.NoError(t, h.store.AddEmbedding("bob", mock.EmbeddingFor([]byte("someone else entirely"))))

	h.pipeline.Watch(camera)
	h.publish(t, frame(1))
	overlay := h.nextOverlay(t)

	assert.Equal(t, camera, overlay.CameraID)
	require.Len(t, overlay.Faces, 1)
	assert.Equal(t, domain.UnknownIdentity, overlay.Faces[0].Name)
	assert.Empty(t, overlay.Faces[0].IdentityID)

	require.Len(t, overlay.People, 1)
	assert.Equal(t, uint64(1), overlay.People[0].TrackID)
	assert.Equal(t, activity.LabelPending, overlay.People[0].Label)
	assert.Equal(t, string(activity.StateInsufficientHistory), overlay.People[0].State)

	attendance, alerts := h.sink.counts()
	assert.Zero(t, attendance)
	assert.Zero(t, alerts)
}

func TestPipeline_ProcessesEveryNthFrame(t *testing.T) {
	faces := &countingFaces{inner: mock.New()}
	h := newHarness(t, Config{ProcessEveryN: 3}, faces, nil)

	h.pipeline.Watch(camera)
	for i := 1; i <= 6; i++ {
		h.publish(t, frame(i))
	}

	assert.Equal(t, uint64(1), h.nextOverlay(t).Seq)
	assert.Equal(t, uint64(4), h.nextOverlay(t).Seq)
	skipped := h.metrics.FramesProcessed.WithLabelValues(camera, outcomeSkipped)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(skipped) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(6), atomic.LoadInt32(&h.evidence.added))
	assert.Equal(t, int32(2), atomic.LoadInt32(&faces.calls))
}

func TestPipeline_DeadlineMeansNoDetections(t *testing.T) {
	h := newHarness(t, Config{ProcessEveryN: 1, FrameDeadline: 30 * time.Millisecond}, stuckFaces{}, mock.New())

	h.pipeline.Watch(camera)
	h.publish(t, frame(1))
	overlay := h.nextOverlay(t)

	assert.True(t, overlay.TimedOut)
	assert.Empty(t, overlay.Faces)
	assert.Empty(t, overlay.People)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FramesProcessed.WithLabelValues(camera, outcomeTimeout)))
}

func TestPipeline_ClassifiesAfterFullWindow(t *testing.T) {
	p := mock.New()
	h := newHarness(t, Config{ProcessEveryN: 1, Tracker: tracker.Config{PoseWindow: 3}}, nil, p)

	h.pipeline.Watch(camera)
	var last domain.Overlay
	for i := 1; i <= 3; i++ {
		h.publish(t, frame(i))
		last = h.nextOverlay(t)
		require.Len(t, last.People, 1)
		assert.Equal(t, uint64(1), last.People[0].TrackID, "same body keeps its track")
		if i < 3 {
			assert.Equal(t, activity.LabelPending, last.People[0].Label)
		}
	}

	person := last.People[0]
	assert.Equal(t, string(activity.StateClassified), person.State)
	assert.NotEqual(t, activity.LabelPending, person.Label)

	_, alerts := h.sink.counts()
	if activity.IsNormal(person.Label) {
		assert.Zero(t, alerts)
	} else {
		assert.Equal(t, 1, alerts)
	}
}

func TestPipeline_OfflineCameraReleasesTracks(t *testing.T) {
	p := mock.New()
	h := newHarness(t, Config{ProcessEveryN: 1}, nil, p)

	h.pipeline.Watch(camera)
	h.publish(t, frame(1))
	require.Len(t, h.nextOverlay(t).People, 1)

	h.hub.MarkOffline(camera)

	assert.Eventually(t, func() bool { return len(h.pipeline.Cameras()) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{1}, h.recorder.forgottenTracks())
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.evidence.forgotten))

	// back online: the first publish starts a new worker with fresh tracks
	h.publish(t, frame(2))
	assert.Eventually(t, func() bool { return len(h.pipeline.Cameras()) == 1 }, time.Second, 5*time.Millisecond)
	h.publish(t, frame(3))

	overlay := h.nextOverlay(t)
	assert.Equal(t, uint64(3), overlay.Seq)
	require.Len(t, overlay.People, 1)
	assert.Equal(t, uint64(1), overlay.People[0].TrackID)
}

func TestPipeline_StopIsFinal(t *testing.T) {
	h := newHarness(t, Config{ProcessEveryN: 1}, mock.New(), nil)
	h.pipeline.Watch(camera)
	require.Len(t, h.pipeline.Cameras(), 1)

	h.pipeline.Stop()

	assert.Empty(t, h.pipeline.Cameras())
	h.pipeline.Watch(camera)
	assert.Empty(t, h.pipeline.Cameras())
}

func TestFaceInside(t *testing.T) {
	faces := []matchedFace{
		{box: domain.BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}, identityID: "far"},
		{box: domain.BoundingBox{X: 300, Y: 80, Width: 40, Height: 40}, identityID: "alice"},
	}

	assert.Equal(t, "alice", faceInside(domain.BoundingBox{X: 250, Y: 40, Width: 150, Height: 300}, faces))
	assert.Empty(t, faceInside(domain.BoundingBox{X: 500, Y: 500, Width: 10, Height: 10}, faces))
}
