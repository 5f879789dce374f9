package deepface

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.FaceAnalyzer using DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// AnalyzeFaces detects every face in the frame together with its embedding.
func (p *Provider) AnalyzeFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if len(image) == 0 {
		return nil, domain.ErrInvalidImage
	}

	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(image))
	if errors.Is(err, ErrNoFaceDetected) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("analyze faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Embedding) == 0 {
			continue
		}

		confidence := result.FaceConfidence
		if confidence <= 0 {
			confidence = calculateConfidence(float64(result.FacialArea.W * result.FacialArea.H))
		}

		faces = append(faces, provider.DetectedFace{
			Box: domain.BoundingBox{
				X:      float64(result.FacialArea.X),
				Y:      float64(result.FacialArea.Y),
				Width:  float64(result.FacialArea.W),
				Height: float64(result.FacialArea.H),
			},
			Confidence: confidence,
			Embedding:  result.Embedding,
		})
	}

	return faces, nil
}

// calculateConfidence estimates confidence based on face area for DeepFace
// builds that do not report face_confidence.
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5 // Low confidence for very small faces
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

var _ provider.FaceAnalyzer = (*Provider)(nil)
