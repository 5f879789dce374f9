package activity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
)

// FeaturesPerPose is the width of one normalized pose row: x, y and
// confidence for every keypoint.
const FeaturesPerPose = domain.KeypointCount * 3

// Sequence is an N×FeaturesPerPose matrix, oldest pose first.
type Sequence [][]float32

// Flatten returns the sequence as one contiguous row-major slice.
func (s Sequence) Flatten() []float32 {
	out := make([]float32, 0, len(s)*FeaturesPerPose)
	for _, row := range s {
		out = append(out, row...)
	}
	return out
}

// Distribution maps activity labels to probabilities.
type Distribution map[string]float64

// Argmax returns the most probable label. Equal probabilities resolve to
// the lexicographically lowest label.
func (d Distribution) Argmax() (string, float64) {
	labels := make([]string, 0, len(d))
	for l := range d {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	best, bestP := "", -1.0
	for _, l := range labels {
		if d[l] > bestP {
			best, bestP = l, d[l]
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestP
}

// Valid reports whether every probability is finite and within [0, 1], and
// the total does not exceed 1 beyond rounding.
func (d Distribution) Valid() bool {
	total := 0.0
	for label, p := range d {
		if label == "" || math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return false
		}
		total += p
	}
	return total <= 1+1e-3
}

// SequenceClassifier is the temporal model over a full pose window.
type SequenceClassifier interface {
	Classify(ctx context.Context, seq Sequence) (Distribution, error)
}

const minShoulderWidth = 10.0

// NormalizePose centres keypoints on the hip midpoint and scales them by the
// shoulder width, keeping confidence as is.
func NormalizePose(p domain.Pose) []float32 {
	hipX := (p[domain.KeypointLeftHip].X + p[domain.KeypointRightHip].X) / 2
	hipY := (p[domain.KeypointLeftHip].Y + p[domain.KeypointRightHip].Y) / 2

	scale := distance(kp(&p, domain.KeypointLeftShoulder), kp(&p, domain.KeypointRightShoulder))
	if scale < minShoulderWidth {
		scale = 100
	}

	row := make([]float32, FeaturesPerPose)
	for i, k := range p {
		row[i*3] = float32((k.X - hipX) / scale)
		row[i*3+1] = float32((k.Y - hipY) / scale)
		row[i*3+2] = float32(k.Confidence)
	}
	return row
}

func NormalizeSequence(samples []tracker.PoseSample) Sequence {
	seq := make(Sequence, len(samples))
	for i, s := range samples {
		seq[i] = NormalizePose(s.Pose)
	}
	return seq
}

// softmax turns model logits into a distribution over labels.
func softmax(logits []float32, labels []string) (Distribution, error) {
	if len(logits) != len(labels) {
		return nil, fmt.Errorf("model emitted %d classes, %d labels configured", len(logits), len(labels))
	}
	if len(logits) == 0 {
		return Distribution{}, nil
	}

	peak := float64(logits[0])
	for _, l := range logits[1:] {
		peak = math.Max(peak, float64(l))
	}

	var sum float64
	exps := make([]float64, len(logits))
	for i, l := range logits {
		exps[i] = math.Exp(float64(l) - peak)
		sum += exps[i]
	}

	dist := make(Distribution, len(labels))
	for i, label := range labels {
		dist[label] = exps[i] / sum
	}
	return dist, nil
}
