// Package pose talks to the pose-estimation sidecar, which runs the person
// detector with keypoints and the temporal activity model.
package pose

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/sidecar"
)

var (
	ErrPoseUnavailable = errors.New("pose service unavailable")
	ErrMalformedPose   = errors.New("malformed pose output")
)

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryCount    int
	MinConfidence float64
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:5006",
		Timeout:       10 * time.Second,
		RetryCount:    1,
		MinConfidence: 0.5,
	}
}

type Client struct {
	http   *sidecar.Client
	config Config
}

func NewClient(config Config) *Client {
	return &Client{
		http: sidecar.New(sidecar.Config{
			Service:     "pose",
			BaseURL:     config.BaseURL,
			Timeout:     config.Timeout,
			RetryCount:  config.RetryCount,
			BaseBackoff: 200 * time.Millisecond,
			Unavailable: ErrPoseUnavailable,
		}),
		config: config,
	}
}

// DetectPeople returns every body with its COCO-17 keypoints.
func (c *Client) DetectPeople(ctx context.Context, image []byte) ([]domain.PersonDetection, error) {
	if len(image) == 0 {
		return nil, domain.ErrInvalidImage
	}

	req := DetectRequest{
		Img:           base64.StdEncoding.EncodeToString(image),
		MinConfidence: c.config.MinConfidence,
	}

	var resp DetectResponse
	if err := c.http.PostJSON(ctx, "/detect", req, &resp); err != nil {
		return nil, fmt.Errorf("detect people: %w", err)
	}

	people := make([]domain.PersonDetection, 0, len(resp.People))
	for i, p := range resp.People {
		det := domain.PersonDetection{
			Box:        domain.BoundingBox{X: p.Box.X, Y: p.Box.Y, Width: p.Box.W, Height: p.Box.H},
			Confidence: p.Confidence,
		}

		switch len(p.Keypoints) {
		case 0:
		case domain.KeypointCount:
			var pose domain.Pose
			for k, kp := range p.Keypoints {
				pose[k] = domain.Keypoint{X: kp[0], Y: kp[1], Confidence: kp[2]}
			}
			det.Pose = &pose
		default:
			return nil, fmt.Errorf("%w: person %d has %d keypoints", ErrMalformedPose, i, len(p.Keypoints))
		}

		people = append(people, det)
	}

	return people, nil
}

// Classify runs the temporal model on a normalized pose sequence.
func (c *Client) Classify(ctx context.Context, seq activity.Sequence) (activity.Distribution, error) {
	for i, row := range seq {
		if len(row) != activity.FeaturesPerPose {
			return nil, fmt.Errorf("%w: row %d has %d features", ErrMalformedPose, i, len(row))
		}
	}

	var resp ClassifyResponse
	if err := c.http.PostJSON(ctx, "/classify", ClassifyRequest{Sequence: seq}, &resp); err != nil {
		return nil, fmt.Errorf("classify sequence: %w", err)
	}

	dist := activity.Distribution(resp.Probabilities)
	if !dist.Valid() {
		return nil, fmt.Errorf("%w: probabilities %v", ErrMalformedPose, resp.Probabilities)
	}
	return dist, nil
}

var (
	_ provider.PersonDetector     = (*Client)(nil)
	_ activity.SequenceClassifier = (*Client)(nil)
)
