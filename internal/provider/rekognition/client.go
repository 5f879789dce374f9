// Package rekognition detects people in frames with AWS Rekognition.
// It returns boxes only; Rekognition has no keypoint output.
package rekognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const (
	errCodeAccessDenied     = "AccessDeniedException"
	errCodeInvalidParameter = "InvalidParameterException"
	errCodeInvalidImage     = "InvalidImageFormatException"
	errCodeImageTooLarge    = "ImageTooLargeException"
	errCodeThroughput       = "ProvisionedThroughputExceededException"
	errCodeThrottling       = "ThrottlingException"
)

// RekognitionAPI is the subset of the AWS client the detector calls
type RekognitionAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// Client wraps the AWS Rekognition client
type Client struct {
	rekognition RekognitionAPI
	config      Config
}

// NewClient creates a new Rekognition client with the provided configuration
// It uses the AWS default credential chain to authenticate
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		rekognition: rekognition.NewFromConfig(awsCfg),
		config:      cfg,
	}, nil
}

// DetectLabels runs label detection on an inline image
func (c *Client) DetectLabels(ctx context.Context, image []byte) ([]types.Label, error) {
	input := &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: image},
		MaxLabels:     aws.Int32(c.config.MaxLabels),
		MinConfidence: aws.Float32(c.config.MinConfidence),
	}

	output, err := c.rekognition.DetectLabels(ctx, input)
	if err != nil {
		return nil, parseError(err)
	}

	return output.Labels, nil
}

func parseError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied:
			return fmt.Errorf("detect labels: %w", ErrInvalidCredentials)
		case errCodeImageTooLarge:
			return fmt.Errorf("detect labels: %w", ErrImageTooLarge)
		case errCodeThroughput, errCodeThrottling:
			return fmt.Errorf("detect labels: %w", ErrThrottled)
		case errCodeInvalidParameter, errCodeInvalidImage:
			return fmt.Errorf("detect labels: %w: %s", domain.ErrInvalidImage, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("failed to detect labels: %w", err)
}
