//go:build !tflite

package activity

import (
	"context"
	"errors"
)

// ErrTFLiteUnavailable is returned when the binary was built without the
// tflite build tag.
var ErrTFLiteUnavailable = errors.New("tflite support not compiled in, rebuild with -tags tflite")

type TFLiteClassifier struct{}

func NewTFLiteClassifier(modelPath string, labels []string, threads int) (*TFLiteClassifier, error) {
	return nil, ErrTFLiteUnavailable
}

func (c *TFLiteClassifier) Classify(ctx context.Context, seq Sequence) (Distribution, error) {
	return nil, ErrTFLiteUnavailable
}

func (c *TFLiteClassifier) Close() {}
