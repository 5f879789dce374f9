package activity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

func TestDistribution_Argmax(t *testing.T) {
	label, p := Distribution{"running": 0.3, "fighting": 0.5, "normal": 0.2}.Argmax()
	assert.Equal(t, "fighting", label)
	assert.Equal(t, 0.5, p)

	label, _ = Distribution{"running": 0.5, "fighting": 0.5}.Argmax()
	assert.Equal(t, "fighting", label)

	label, p = Distribution{}.Argmax()
	assert.Empty(t, label)
	assert.Zero(t, p)
}

func TestDistribution_Valid(t *testing.T) {
	assert.True(t, Distribution{"normal": 0.25, "fighting": 0.75}.Valid())
	assert.True(t, Distribution{"normal": 0.3}.Valid(), "top-k output may sum below one")
	assert.True(t, Distribution{}.Valid())

	assert.False(t, Distribution{"fighting": math.NaN()}.Valid())
	assert.False(t, Distribution{"fighting": math.Inf(1)}.Valid())
	assert.False(t, Distribution{"fighting": -0.1, "normal": 1}.Valid())
	assert.False(t, Distribution{"fighting": 0.6, "normal": 0.6}.Valid())
}

func TestNormalizePose(t *testing.T) {
	p, _ := standingPose(0)

	row := NormalizePose(p)

	require.Len(t, row, FeaturesPerPose)
	// hips centre at (100, 200), shoulder width 40
	assert.InDelta(t, -0.375, row[domain.KeypointLeftHip*3], 1e-6)
	assert.InDelta(t, 0.0, row[domain.KeypointLeftHip*3+1], 1e-6)
	assert.InDelta(t, -0.5, row[domain.KeypointLeftShoulder*3], 1e-6)
	assert.InDelta(t, -2.5, row[domain.KeypointLeftShoulder*3+1], 1e-6)
	assert.InDelta(t, 0.9, row[domain.KeypointLeftShoulder*3+2], 1e-6)
}

func TestNormalizePose_NarrowShouldersUseFallbackScale(t *testing.T) {
	var p domain.Pose
	setKP(&p, domain.KeypointLeftShoulder, 100, 100, 0.9)
	setKP(&p, domain.KeypointRightShoulder, 104, 100, 0.9)
	setKP(&p, domain.KeypointLeftHip, 100, 200, 0.9)
	setKP(&p, domain.KeypointRightHip, 100, 200, 0.9)

	row := NormalizePose(p)

	assert.InDelta(t, -1.0, row[domain.KeypointLeftShoulder*3+1], 1e-6)
}

func TestSequence_Flatten(t *testing.T) {
	p, _ := standingPose(0)
	seq := Sequence{NormalizePose(p), NormalizePose(p)}

	flat := seq.Flatten()

	assert.Len(t, flat, 2*FeaturesPerPose)
	assert.Equal(t, seq[1][0], flat[FeaturesPerPose])
}

func TestSoftmax(t *testing.T) {
	dist, err := softmax([]float32{2, 1, 0}, []string{"normal", "fighting", "running"})
	require.NoError(t, err)

	var sum float64
	for _, p := range dist {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	label, _ := dist.Argmax()
	assert.Equal(t, "normal", label)

	_, err = softmax([]float32{1, 2}, []string{"normal"})
	assert.Error(t, err)
}
