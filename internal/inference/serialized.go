package inference

import (
	"context"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
)

const (
	StageFaces    = "faces"
	StagePeople   = "people"
	StageSequence = "sequence"
)

type faceAnalyzer struct {
	exec  *Executor
	inner provider.FaceAnalyzer
}

// FaceAnalyzer routes every call of inner through the executor.
func FaceAnalyzer(e *Executor, inner provider.FaceAnalyzer) provider.FaceAnalyzer {
	return &faceAnalyzer{exec: e, inner: inner}
}

func (f *faceAnalyzer) AnalyzeFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	return Run(ctx, f.exec, StageFaces, func(ctx context.Context) ([]provider.DetectedFace, error) {
		return f.inner.AnalyzeFaces(ctx, image)
	})
}

type personDetector struct {
	exec  *Executor
	inner provider.PersonDetector
}

// PersonDetector routes every call of inner through the executor.
func PersonDetector(e *Executor, inner provider.PersonDetector) provider.PersonDetector {
	return &personDetector{exec: e, inner: inner}
}

func (p *personDetector) DetectPeople(ctx context.Context, image []byte) ([]domain.PersonDetection, error) {
	return Run(ctx, p.exec, StagePeople, func(ctx context.Context) ([]domain.PersonDetection, error) {
		return p.inner.DetectPeople(ctx, image)
	})
}

type sequenceClassifier struct {
	exec  *Executor
	inner activity.SequenceClassifier
}

// SequenceClassifier routes every call of inner through the executor.
func SequenceClassifier(e *Executor, inner activity.SequenceClassifier) activity.SequenceClassifier {
	return &sequenceClassifier{exec: e, inner: inner}
}

func (s *sequenceClassifier) Classify(ctx context.Context, seq activity.Sequence) (activity.Distribution, error) {
	return Run(ctx, s.exec, StageSequence, func(ctx context.Context) (activity.Distribution, error) {
		return s.inner.Classify(ctx, seq)
	})
}
