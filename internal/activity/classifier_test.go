package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
)

const window = 30

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeSequence struct {
	dist  Distribution
	err   error
	calls int
	got   Sequence
}

func (f *fakeSequence) Classify(ctx context.Context, seq Sequence) (Distribution, error) {
	f.calls++
	f.got = seq
	return f.dist, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setKP(p *domain.Pose, i int, x, y, conf float64) {
	p[i] = domain.Keypoint{X: x, Y: y, Confidence: conf}
}

// standingPose is an upright body with straight legs and arms down.
func standingPose(dx float64) (domain.Pose, domain.BoundingBox) {
	var p domain.Pose
	setKP(&p, domain.KeypointNose, 100+dx, 50, 0.9)
	setKP(&p, domain.KeypointLeftEye, 95+dx, 45, 0.9)
	setKP(&p, domain.KeypointRightEye, 105+dx, 45, 0.9)
	setKP(&p, domain.KeypointLeftEar, 90+dx, 50, 0.9)
	setKP(&p, domain.KeypointRightEar, 110+dx, 50, 0.9)
	setKP(&p, domain.KeypointLeftShoulder, 80+dx, 100, 0.9)
	setKP(&p, domain.KeypointRightShoulder, 120+dx, 100, 0.9)
	setKP(&p, domain.KeypointLeftElbow, 75+dx, 150, 0.9)
	setKP(&p, domain.KeypointRightElbow, 125+dx, 150, 0.9)
	setKP(&p, domain.KeypointLeftWrist, 75+dx, 200, 0.9)
	setKP(&p, domain.KeypointRightWrist, 125+dx, 200, 0.9)
	setKP(&p, domain.KeypointLeftHip, 85+dx, 200, 0.9)
	setKP(&p, domain.KeypointRightHip, 115+dx, 200, 0.9)
	setKP(&p, domain.KeypointLeftKnee, 85+dx, 300, 0.9)
	setKP(&p, domain.KeypointRightKnee, 115+dx, 300, 0.9)
	setKP(&p, domain.KeypointLeftAnkle, 85+dx, 400, 0.9)
	setKP(&p, domain.KeypointRightAnkle, 115+dx, 400, 0.9)
	return p, domain.BoundingBox{X: 60 + dx, Y: 40, Width: 80, Height: 380}
}

func handRaisedPose() (domain.Pose, domain.BoundingBox) {
	p, box := standingPose(0)
	setKP(&p, domain.KeypointLeftWrist, 75, 20, 0.9)
	return p, box
}

func sittingPose() (domain.Pose, domain.BoundingBox) {
	p, box := standingPose(0)
	setKP(&p, domain.KeypointLeftKnee, 160, 200, 0.9)
	setKP(&p, domain.KeypointRightKnee, 190, 200, 0.9)
	setKP(&p, domain.KeypointLeftAnkle, 160, 300, 0.9)
	setKP(&p, domain.KeypointRightAnkle, 190, 300, 0.9)
	return p, box
}

// fallenPose is a body lying horizontally.
func fallenPose() (domain.Pose, domain.BoundingBox) {
	var p domain.Pose
	setKP(&p, domain.KeypointNose, 50, 310, 0.9)
	setKP(&p, domain.KeypointLeftShoulder, 100, 300, 0.9)
	setKP(&p, domain.KeypointRightShoulder, 100, 320, 0.9)
	setKP(&p, domain.KeypointLeftHip, 200, 300, 0.9)
	setKP(&p, domain.KeypointRightHip, 200, 320, 0.9)
	setKP(&p, domain.KeypointLeftKnee, 300, 300, 0.9)
	setKP(&p, domain.KeypointRightKnee, 300, 320, 0.9)
	setKP(&p, domain.KeypointLeftAnkle, 400, 300, 0.9)
	setKP(&p, domain.KeypointRightAnkle, 400, 320, 0.9)
	return p, domain.BoundingBox{X: 40, Y: 260, Width: 400, Height: 100}
}

// unreliablePose has every keypoint below the confidence floor.
func unreliablePose() (domain.Pose, domain.BoundingBox) {
	p, box := standingPose(0)
	for i := range p {
		p[i].Confidence = 0.1
	}
	return p, box
}

func hideLegs(p *domain.Pose) {
	for _, i := range []int{domain.KeypointLeftKnee, domain.KeypointRightKnee, domain.KeypointLeftAnkle, domain.KeypointRightAnkle} {
		p[i].Confidence = 0.1
	}
}

func buildTrack(t *testing.T, n int, step time.Duration, at func(i int) (domain.Pose, domain.BoundingBox)) *tracker.Track {
	t.Helper()
	tr := tracker.New("gate", tracker.Config{PoseWindow: window, Grace: time.Hour})

	var track *tracker.Track
	for i := 0; i < n; i++ {
		pose, box := at(i)
		res := tr.Update(start.Add(time.Duration(i)*step), []domain.PersonDetection{{Box: box, Confidence: 0.9, Pose: &pose}})
		require.Len(t, res.Associations, 1)
		track = res.Associations[0].Track
	}
	require.Equal(t, uint64(1), track.ID)
	return track
}

func constant(f func() (domain.Pose, domain.BoundingBox)) func(int) (domain.Pose, domain.BoundingBox) {
	return func(int) (domain.Pose, domain.BoundingBox) { return f() }
}

func lastAt(n int, step time.Duration) time.Time {
	return start.Add(time.Duration(n-1) * step)
}

func TestClassifier_PendingUntilWindowFull(t *testing.T) {
	seq := &fakeSequence{dist: Distribution{"fighting": 0.99}}
	c := NewClassifier(DefaultConfig(), seq, discardLogger())

	track := buildTrack(t, window-1, 100*time.Millisecond, constant(fallenPose))
	v := c.Classify(context.Background(), track, lastAt(window-1, 100*time.Millisecond))

	assert.Equal(t, LabelPending, v.Label)
	assert.Equal(t, StateInsufficientHistory, v.State)
	assert.Equal(t, domain.SeverityLow, v.Severity)
	assert.Zero(t, seq.calls)

	track = buildTrack(t, window, 100*time.Millisecond, constant(fallenPose))
	v = c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

	assert.Equal(t, StateClassified, v.State)
	assert.Equal(t, "fighting", v.Label)
	assert.Equal(t, domain.SeverityHigh, v.Severity)
	assert.Equal(t, SourceSequence, v.Source)
	assert.Equal(t, "gate", v.CameraID)
	assert.Equal(t, uint64(1), v.TrackID)

	require.Len(t, seq.got, window)
	assert.Len(t, seq.got[0], FeaturesPerPose)
}

func TestClassifier_HandRaiseOverridesSequence(t *testing.T) {
	tests := []struct {
		name       string
		ruleFloor  float64
		wantLabel  string
		wantSource string
	}{
		{"rule floor met", 0.5, LabelHandRaise, SourceRule},
		{"rule floor not met", 0.95, LabelStanding, SourceSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RuleFloor = tt.ruleFloor
			seq := &fakeSequence{dist: Distribution{LabelHandRaise: 0.2, LabelStanding: 0.75}}
			c := NewClassifier(cfg, seq, discardLogger())

			track := buildTrack(t, window, 100*time.Millisecond, constant(handRaisedPose))
			v := c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

			assert.Equal(t, tt.wantLabel, v.Label)
			assert.Equal(t, tt.wantSource, v.Source)
			assert.False(t, v.LowConfidence)
		})
	}
}

func TestClassifier_PostureRules(t *testing.T) {
	tests := []struct {
		name string
		pose func() (domain.Pose, domain.BoundingBox)
		want string
	}{
		{"standing", func() (domain.Pose, domain.BoundingBox) { return standingPose(0) }, LabelStanding},
		{"sitting", sittingPose, LabelSitting},
		{"hand raise", handRaisedPose, LabelHandRaise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(DefaultConfig(), nil, discardLogger())
			track := buildTrack(t, window, 100*time.Millisecond, constant(tt.pose))

			v := c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

			assert.Equal(t, tt.want, v.Label)
			assert.Equal(t, SourceRule, v.Source)
			assert.Equal(t, domain.SeverityLow, v.Severity)
		})
	}
}

func TestClassifier_SequenceBelowFloorIsLowConfidenceNormal(t *testing.T) {
	seq := &fakeSequence{dist: Distribution{LabelFighting: 0.4, LabelNormal: 0.35, LabelRunning: 0.25}}
	c := NewClassifier(DefaultConfig(), seq, discardLogger())

	track := buildTrack(t, window, 100*time.Millisecond, constant(unreliablePose))
	v := c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

	assert.Equal(t, LabelNormal, v.Label)
	assert.True(t, v.LowConfidence)
	assert.InDelta(t, 0.4, v.Confidence, 1e-9)
	assert.Equal(t, StateClassified, v.State)
}

func TestClassifier_SequenceErrorFallsBackToRules(t *testing.T) {
	seq := &fakeSequence{err: errors.New("sidecar unavailable")}
	c := NewClassifier(DefaultConfig(), seq, discardLogger())

	track := buildTrack(t, window, 100*time.Millisecond, constant(fallenPose))
	v := c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

	assert.Equal(t, 1, seq.calls)
	assert.Equal(t, LabelFalling, v.Label)
	assert.Equal(t, domain.SeverityHigh, v.Severity)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
}

func TestClassifier_ConfidentNormalSequenceBeatsMotionRules(t *testing.T) {
	seq := &fakeSequence{dist: Distribution{LabelNormal: 0.9, LabelFalling: 0.1}}
	c := NewClassifier(DefaultConfig(), seq, discardLogger())

	track := buildTrack(t, window, 100*time.Millisecond, constant(fallenPose))
	v := c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

	assert.Equal(t, LabelNormal, v.Label)
	assert.Equal(t, SourceSequence, v.Source)
	assert.False(t, v.LowConfidence)
}

func TestClassifier_NothingFiresIsNormal(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil, discardLogger())

	track := buildTrack(t, window, 100*time.Millisecond, constant(unreliablePose))
	v := c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

	assert.Equal(t, LabelNormal, v.Label)
	assert.Equal(t, SourceNone, v.Source)
	assert.False(t, v.LowConfidence)
	assert.Zero(t, v.Confidence)
}

func TestClassifier_Running(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil, discardLogger())

	// 300px per 100ms is 3000 px/s
	track := buildTrack(t, window, 100*time.Millisecond, func(i int) (domain.Pose, domain.BoundingBox) {
		p, _ := standingPose(float64(i) * 300)
		hideLegs(&p)
		return p, domain.BoundingBox{X: float64(i) * 300, Y: 40, Width: 1000, Height: 380}
	})
	v := c.Classify(context.Background(), track, lastAt(window, 100*time.Millisecond))

	assert.Equal(t, LabelRunning, v.Label)
	assert.Equal(t, domain.SeverityMedium, v.Severity)
	assert.InDelta(t, 3000.0/4400.0, v.Confidence, 1e-6)
}

func TestClassifier_Loitering(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil, discardLogger())

	track := buildTrack(t, window, 3*time.Second, func(i int) (domain.Pose, domain.BoundingBox) {
		p, box := standingPose(float64(i % 3))
		hideLegs(&p)
		return p, box
	})
	now := start.Add(90 * time.Second)
	v := c.Classify(context.Background(), track, now)

	assert.Equal(t, LabelLoitering, v.Label)
	assert.Equal(t, domain.SeverityLow, v.Severity)
	assert.InDelta(t, 0.75, v.Confidence, 1e-9)
}

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		label string
		want  domain.Severity
	}{
		{LabelFighting, domain.SeverityHigh},
		{LabelFalling, domain.SeverityHigh},
		{LabelRunning, domain.SeverityMedium},
		{LabelLoitering, domain.SeverityLow},
		{LabelHandRaise, domain.SeverityLow},
		{"phone_use", domain.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityOf(tt.label))
		})
	}
}

func TestIsNormal(t *testing.T) {
	assert.True(t, IsNormal(LabelNormal))
	assert.True(t, IsNormal(LabelPending))
	assert.False(t, IsNormal(LabelHandRaise))
	assert.False(t, IsNormal(LabelFalling))
}
