// Package factory builds the configured face, person and sequence
// providers.
package factory

import (
	"context"
	"fmt"
	"runtime"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/config"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/pose"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/rekognition"
)

// ProviderType names a provider implementation
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace sidecar (faces)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypePose is the pose sidecar (people and sequences)
	ProviderTypePose ProviderType = "pose"
	// ProviderTypeRekognition is AWS Rekognition (people, boxes only)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeTFLite runs the sequence model in process
	ProviderTypeTFLite ProviderType = "tflite"
	// ProviderTypeMock is deterministic and model free
	ProviderTypeMock ProviderType = "mock"
	// ProviderTypeNone disables the sequence path
	ProviderTypeNone ProviderType = "none"
)

// NewFaceAnalyzer creates the face analyzer selected by FACE_PROVIDER
func NewFaceAnalyzer(cfg *config.Config) (provider.FaceAnalyzer, error) {
	switch ProviderType(cfg.FaceProvider) {
	case ProviderTypeDeepFace, "":
		dfConfig := deepface.DefaultConfig()
		if cfg.DeepFaceURL != "" {
			dfConfig.BaseURL = cfg.DeepFaceURL
		}
		return deepface.NewProvider(dfConfig), nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown face provider: %s (supported: %s, %s)",
			cfg.FaceProvider, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

// NewPersonDetector creates the person detector selected by PERSON_PROVIDER
//
// Environment variables:
//   - PERSON_PROVIDER: "pose", "rekognition" or "mock" (default: "pose")
//   - POSE_URL: pose sidecar URL
//   - AWS_REGION and the AWS SDK credential chain for Rekognition
func NewPersonDetector(ctx context.Context, cfg *config.Config) (provider.PersonDetector, error) {
	switch ProviderType(cfg.PersonProvider) {
	case ProviderTypePose, "":
		return pose.NewClient(poseConfig(cfg)), nil

	case ProviderTypeRekognition:
		rekConfig := rekognition.DefaultConfig()
		rekConfig.Region = cfg.AWSRegion
		det, err := rekognition.NewDetector(ctx, rekConfig)
		if err != nil {
			return nil, fmt.Errorf("create rekognition detector: %w", err)
		}
		return det, nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown person provider: %s (supported: %s, %s, %s)",
			cfg.PersonProvider, ProviderTypePose, ProviderTypeRekognition, ProviderTypeMock)
	}
}

// NewSequenceClassifier creates the temporal classifier selected by
// SEQUENCE_PROVIDER. A nil classifier means rules only. The returned
// cleanup func is never nil.
func NewSequenceClassifier(cfg *config.Config) (activity.SequenceClassifier, func(), error) {
	noop := func() {}

	switch ProviderType(cfg.Activity.SequenceProvider) {
	case ProviderTypeNone:
		return nil, noop, nil

	case ProviderTypePose, "":
		return pose.NewClient(poseConfig(cfg)), noop, nil

	case ProviderTypeTFLite:
		c, err := activity.NewTFLiteClassifier(cfg.Activity.SequenceModel, cfg.Activity.SequenceLabels, runtime.NumCPU())
		if err != nil {
			return nil, noop, fmt.Errorf("create tflite classifier: %w", err)
		}
		return c, c.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown sequence provider: %s (supported: %s, %s, %s)",
			cfg.Activity.SequenceProvider, ProviderTypeNone, ProviderTypePose, ProviderTypeTFLite)
	}
}

func poseConfig(cfg *config.Config) pose.Config {
	pc := pose.DefaultConfig()
	if cfg.PoseURL != "" {
		pc.BaseURL = cfg.PoseURL
	}
	return pc
}
