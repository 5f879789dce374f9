// Package activity turns a track's pose history into an activity verdict by
// fusing geometric rules with an optional temporal sequence model.
package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
)

const (
	DefaultRuleFloor       = 0.5
	DefaultConfidenceFloor = 0.45
)

const (
	SourceNone     = "none"
	SourceRule     = "rule"
	SourceSequence = "sequence"
)

type Config struct {
	// RuleFloor is the confidence a posture rule needs to override the model.
	RuleFloor float64
	// ConfidenceFloor is the minimum probability for a model or motion verdict.
	ConfidenceFloor float64
	Rules           RuleConfig
}

func DefaultConfig() Config {
	return Config{
		RuleFloor:       DefaultRuleFloor,
		ConfidenceFloor: DefaultConfidenceFloor,
		Rules:           DefaultRuleConfig(),
	}
}

// Verdict is the classification of one track at one frame.
type Verdict struct {
	CameraID      string          `json:"camera_id"`
	TrackID       uint64          `json:"track_id"`
	IdentityID    string          `json:"identity_id,omitempty"`
	Label         string          `json:"label"`
	State         State           `json:"state"`
	Confidence    float64         `json:"confidence"`
	Severity      domain.Severity `json:"severity"`
	LowConfidence bool            `json:"low_confidence"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
}

type Classifier struct {
	cfg      Config
	rules    *RuleEngine
	sequence SequenceClassifier
	logger   *slog.Logger
}

// NewClassifier builds a classifier. A nil sequence classifier leaves the
// rule engine as the only source of verdicts.
func NewClassifier(cfg Config, sequence SequenceClassifier, logger *slog.Logger) *Classifier {
	return &Classifier{
		cfg:      cfg,
		rules:    NewRuleEngine(cfg.Rules),
		sequence: sequence,
		logger:   logger,
	}
}

// Classify evaluates a track. Until its pose buffer is full the verdict is
// the pending placeholder. Otherwise precedence is fixed: a posture rule at
// or above the rule floor, then the sequence argmax at or above the
// confidence floor, then a motion rule at or above the confidence floor,
// then normal.
func (c *Classifier) Classify(ctx context.Context, track *tracker.Track, now time.Time) Verdict {
	return c.classify(ctx, track, now, nil)
}

// ClassifyFrame classifies every track seen in one frame. Each track sees the
// others' current poses, which the fighting rule needs. Verdicts are returned
// in track order.
func (c *Classifier) ClassifyFrame(ctx context.Context, tracks []*tracker.Track, now time.Time) []Verdict {
	posed := make([]Peer, 0, len(tracks))
	for _, t := range tracks {
		if s, ok := t.Poses().Latest(); ok && s.At.Equal(now) {
			posed = append(posed, Peer{TrackID: t.ID, Pose: s.Pose, Box: s.Box})
		}
	}

	verdicts := make([]Verdict, len(tracks))
	for i, t := range tracks {
		var peers []Peer
		for _, p := range posed {
			if p.TrackID != t.ID {
				peers = append(peers, p)
			}
		}
		verdicts[i] = c.classify(ctx, t, now, peers)
	}
	return verdicts
}

func (c *Classifier) classify(ctx context.Context, track *tracker.Track, now time.Time, peers []Peer) Verdict {
	v := Verdict{
		CameraID:   track.CameraID,
		TrackID:    track.ID,
		IdentityID: track.IdentityID,
		Timestamp:  now,
	}

	poses := track.Poses()
	if !poses.Full() {
		v.Label = LabelPending
		v.State = StateInsufficientHistory
		v.Severity = SeverityOf(LabelPending)
		v.Source = SourceNone
		return v
	}

	v.State = StateClassified
	obs := Observation{
		Samples:   poses.Samples(),
		FirstSeen: track.FirstSeen,
		Now:       now,
		Peers:     peers,
	}

	if cand, ok := c.rules.Posture(obs); ok && cand.Confidence >= c.cfg.RuleFloor {
		return c.finish(v, cand.Label, cand.Confidence, SourceRule)
	}

	// best rejected candidate, surfaced as a low-confidence flag
	var weak float64

	if c.sequence != nil {
		dist, err := c.sequence.Classify(ctx, NormalizeSequence(obs.Samples))
		if err != nil {
			c.logger.Warn("sequence classification failed",
				slog.String("camera_id", track.CameraID),
				slog.Uint64("track_id", track.ID),
				slog.Any("error", err),
			)
		} else if label, p := dist.Argmax(); label != "" {
			if p >= c.cfg.ConfidenceFloor {
				return c.finish(v, label, p, SourceSequence)
			}
			weak = p
		}
	}

	for _, cand := range c.rules.Motion(obs) {
		if cand.Confidence >= c.cfg.ConfidenceFloor {
			return c.finish(v, cand.Label, cand.Confidence, SourceRule)
		}
		if cand.Confidence > weak {
			weak = cand.Confidence
		}
	}

	v = c.finish(v, LabelNormal, weak, SourceNone)
	v.LowConfidence = weak > 0
	return v
}

func (c *Classifier) finish(v Verdict, label string, confidence float64, source string) Verdict {
	v.Label = label
	v.Confidence = confidence
	v.Severity = SeverityOf(label)
	v.Source = source
	return v
}
