package tracker

import (
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// PoseSample is one buffered pose with the frame time and body box it was
// observed with.
type PoseSample struct {
	Pose domain.Pose
	Box  domain.BoundingBox
	At   time.Time
}

// PoseBuffer is a fixed-capacity ring of the most recent pose samples.
type PoseBuffer struct {
	samples []PoseSample
	head    int
	size    int
}

func NewPoseBuffer(capacity int) *PoseBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &PoseBuffer{samples: make([]PoseSample, capacity)}
}

// Push appends a sample, evicting the oldest one when full.
func (b *PoseBuffer) Push(sample PoseSample) {
	if b.size == len(b.samples) {
		b.samples[b.head] = sample
		b.head = (b.head + 1) % len(b.samples)
		return
	}
	b.samples[(b.head+b.size)%len(b.samples)] = sample
	b.size++
}

func (b *PoseBuffer) Len() int { return b.size }

func (b *PoseBuffer) Cap() int { return len(b.samples) }

func (b *PoseBuffer) Full() bool { return b.size == len(b.samples) }

// Samples returns a copy of the buffered samples, oldest first.
func (b *PoseBuffer) Samples() []PoseSample {
	out := make([]PoseSample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.samples[(b.head+i)%len(b.samples)]
	}
	return out
}

// Latest returns the newest sample.
func (b *PoseBuffer) Latest() (PoseSample, bool) {
	if b.size == 0 {
		return PoseSample{}, false
	}
	return b.samples[(b.head+b.size-1)%len(b.samples)], true
}
