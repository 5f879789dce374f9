package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
)

const (
	// maxImageSize is the inline image limit of DetectLabels (5MB)
	maxImageSize = 5 * 1024 * 1024

	personLabel = "Person"
)

// Detector implements provider.PersonDetector using DetectLabels "Person" instances
type Detector struct {
	client *Client
}

var _ provider.PersonDetector = (*Detector)(nil)

// NewDetector creates a detector backed by the AWS default credential chain
func NewDetector(ctx context.Context, cfg Config) (*Detector, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return &Detector{client: client}, nil
}

// DetectPeople returns person boxes in pixel coordinates. Pose is always nil.
func (d *Detector) DetectPeople(ctx context.Context, img []byte) ([]domain.PersonDetection, error) {
	if len(img) == 0 {
		return nil, domain.ErrInvalidImage
	}
	if len(img) > maxImageSize {
		return nil, ErrImageTooLarge
	}

	// Rekognition boxes are ratios of the frame size
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	labels, err := d.client.DetectLabels(ctx, img)
	if err != nil {
		return nil, err
	}

	width, height := float64(cfg.Width), float64(cfg.Height)
	var people []domain.PersonDetection
	for _, label := range labels {
		if aws.ToString(label.Name) != personLabel {
			continue
		}
		for _, inst := range label.Instances {
			if inst.BoundingBox == nil {
				continue
			}
			people = append(people, domain.PersonDetection{
				Box:        toPixels(inst.BoundingBox, width, height),
				Confidence: float64(aws.ToFloat32(inst.Confidence)) / 100,
			})
		}
	}

	return people, nil
}

func toPixels(box *types.BoundingBox, width, height float64) domain.BoundingBox {
	return domain.BoundingBox{
		X:      float64(aws.ToFloat32(box.Left)) * width,
		Y:      float64(aws.ToFloat32(box.Top)) * height,
		Width:  float64(aws.ToFloat32(box.Width)) * width,
		Height: float64(aws.ToFloat32(box.Height)) * height,
	}
}
