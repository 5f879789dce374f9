package deepface

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/sidecar"
)

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Model      string
	Detector   string
	RetryCount int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:5005",
		Timeout:    10 * time.Second,
		Model:      "Facenet512",
		Detector:   "retinaface",
		RetryCount: 1,
	}
}

// Client is the HTTP client for DeepFace API
type Client struct {
	http   *sidecar.Client
	config Config
}

// NewClient creates a new DeepFace client
func NewClient(config Config) *Client {
	return &Client{
		http: sidecar.New(sidecar.Config{
			Service:     "deepface",
			BaseURL:     config.BaseURL,
			Timeout:     config.Timeout,
			RetryCount:  config.RetryCount,
			BaseBackoff: 200 * time.Millisecond,
			Unavailable: ErrDeepFaceUnavailable,
		}),
		config: config,
	}
}

// Represent calls POST /represent to detect faces and generate their
// embeddings. A frame without faces yields ErrNoFaceDetected.
func (c *Client) Represent(ctx context.Context, imageBase64 string) (*RepresentResponse, error) {
	req := RepresentRequest{
		Img:              imageBase64,
		Model:            c.config.Model,
		Detector:         c.config.Detector,
		EnforceDetection: true,
	}

	var resp RepresentResponse
	if err := c.http.PostJSON(ctx, "/represent", req, &resp); err != nil {
		if isNoFace(err) {
			return nil, ErrNoFaceDetected
		}
		return nil, err
	}

	return &resp, nil
}

// isNoFace recognises DeepFace's answer to enforce_detection on an empty frame.
func isNoFace(err error) bool {
	var se *sidecar.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(se.Body), "face could not be detected")
}
