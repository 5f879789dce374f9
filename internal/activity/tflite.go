//go:build tflite

package activity

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tphakala/go-tflite"
)

// TFLiteClassifier runs a pose-sequence model exported to TensorFlow Lite.
// The model takes a 1×N×51 float32 input and emits one logit per label.
type TFLiteClassifier struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	labels      []string
}

func NewTFLiteClassifier(modelPath string, labels []string, threads int) (*TFLiteClassifier, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read sequence model: %w", err)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(max(1, threads))

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("tensor allocation failed")
	}

	return &TFLiteClassifier{
		model:       model,
		interpreter: interpreter,
		labels:      labels,
	}, nil
}

func (c *TFLiteClassifier) Classify(ctx context.Context, seq Sequence) (Distribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	flat := seq.Flatten()
	if want := len(input.Float32s()); want != len(flat) {
		return nil, fmt.Errorf("sequence has %d values, model expects %d", len(flat), want)
	}
	copy(input.Float32s(), flat)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := c.interpreter.GetOutputTensor(0)
	logits := make([]float32, output.Dim(output.NumDims()-1))
	copy(logits, output.Float32s())

	return softmax(logits, c.labels)
}

func (c *TFLiteClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
}
