// Package mock provides deterministic face and person providers for
// development and tests. No model or network is involved.
package mock

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
)

// frames shorter than this are treated as corrupted
const minImageSize = 16

// Provider implementa provider.FaceAnalyzer e provider.PersonDetector
type Provider struct {
	people int
}

// New cria um Provider que reporta uma face e uma pessoa por frame
func New() *Provider {
	return &Provider{people: 1}
}

// AnalyzeFaces returns a single centred face whose embedding is derived
// from the frame hash, so identical frames always match each other.
func (p *Provider) AnalyzeFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if len(image) < minImageSize {
		return nil, domain.ErrInvalidImage
	}

	return []provider.DetectedFace{
		{
			Box:        domain.BoundingBox{X: 280, Y: 80, Width: 80, Height: 100},
			Confidence: 0.99,
			Embedding:  EmbeddingFor(image),
		},
	}, nil
}

// DetectPeople returns standing bodies laid out left to right
func (p *Provider) DetectPeople(ctx context.Context, image []byte) ([]domain.PersonDetection, error) {
	if len(image) < minImageSize {
		return nil, domain.ErrInvalidImage
	}

	people := make([]domain.PersonDetection, 0, p.people)
	for i := 0; i < p.people; i++ {
		x := 100 + float64(i)*200
		pose := standingPose(x)
		people = append(people, domain.PersonDetection{
			Box:        domain.BoundingBox{X: x - 40, Y: 40, Width: 80, Height: 240},
			Confidence: 0.95,
			Pose:       &pose,
		})
	}
	return people, nil
}

// EmbeddingFor gera embedding determinístico baseado no hash da imagem
func EmbeddingFor(image []byte) []float64 {
	hash := sha256.Sum256(image)
	embedding := make([]float64, domain.EmbeddingDimension)

	for i := range embedding {
		embedding[i] = (float64(hash[i%len(hash)])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}

	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding
}

// standingPose is an upright body centred on x with straight legs
func standingPose(x float64) domain.Pose {
	var pose domain.Pose
	set := func(idx int, dx, y float64) {
		pose[idx] = domain.Keypoint{X: x + dx, Y: y, Confidence: 0.9}
	}

	set(domain.KeypointNose, 0, 60)
	set(domain.KeypointLeftEye, 5, 55)
	set(domain.KeypointRightEye, -5, 55)
	set(domain.KeypointLeftEar, 10, 58)
	set(domain.KeypointRightEar, -10, 58)
	set(domain.KeypointLeftShoulder, 20, 90)
	set(domain.KeypointRightShoulder, -20, 90)
	set(domain.KeypointLeftElbow, 25, 130)
	set(domain.KeypointRightElbow, -25, 130)
	set(domain.KeypointLeftWrist, 25, 165)
	set(domain.KeypointRightWrist, -25, 165)
	set(domain.KeypointLeftHip, 15, 170)
	set(domain.KeypointRightHip, -15, 170)
	set(domain.KeypointLeftKnee, 15, 220)
	set(domain.KeypointRightKnee, -15, 220)
	set(domain.KeypointLeftAnkle, 15, 270)
	set(domain.KeypointRightAnkle, -15, 270)

	return pose
}

var (
	_ provider.FaceAnalyzer   = (*Provider)(nil)
	_ provider.PersonDetector = (*Provider)(nil)
)
