package provider

import (
	"context"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// FaceAnalyzer detects faces in a frame and embeds each one.
type FaceAnalyzer interface {
	AnalyzeFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}

// PersonDetector detects bodies in a frame. Implementations that estimate
// pose fill PersonDetection.Pose.
type PersonDetector interface {
	DetectPeople(ctx context.Context, image []byte) ([]domain.PersonDetection, error)
}

// DetectedFace is one face found in a frame.
type DetectedFace struct {
	Box        domain.BoundingBox `json:"box"`
	Confidence float64            `json:"confidence"`
	Embedding  []float64          `json:"-"`
}
