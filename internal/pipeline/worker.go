package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
)

const (
	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeTimeout   = "timeout"
	outcomeError     = "error"
)

// worker owns one camera's subscription and tracker. Only its goroutine
// touches the tracker and its tracks.
type worker struct {
	p        *Pipeline
	cameraID string
	sub      *hub.Subscription
	tracker  *tracker.Tracker
	logger   *slog.Logger

	received uint64
	lastSeq  uint64

	// guarded by Pipeline.mu
	exiting bool
}

func newWorker(p *Pipeline, cameraID string, sub *hub.Subscription) *worker {
	return &worker{
		p:        p,
		cameraID: cameraID,
		sub:      sub,
		tracker:  tracker.New(cameraID, p.cfg.Tracker),
		logger:   p.logger.With(slog.String("camera_id", cameraID)),
	}
}

func (w *worker) run(ctx context.Context) {
	defer w.p.wg.Done()

	w.logger.Info("camera worker started")
	err := w.loop(ctx)

	w.p.markExiting(w)
	w.release(err)
	w.p.finished(w, err)
	w.logger.Info("camera worker stopped", slog.Any("reason", err))
}

func (w *worker) loop(ctx context.Context) error {
	for {
		frame, err := w.sub.Next(ctx)
		if err != nil {
			return err
		}
		if frame.Seq <= w.lastSeq {
			continue
		}
		w.lastSeq = frame.Seq

		if w.p.deps.Evidence != nil {
			w.p.deps.Evidence.Add(frame)
		}

		w.received++
		if (w.received-1)%uint64(w.p.cfg.ProcessEveryN) != 0 {
			w.p.metrics.FramesProcessed.WithLabelValues(w.cameraID, outcomeSkipped).Inc()
			continue
		}

		w.process(ctx, frame)
	}
}

// release destroys the camera's tracks and drops per-camera state.
func (w *worker) release(reason error) {
	w.sub.Close()

	for _, id := range w.tracker.Reset() {
		w.p.deps.Recorder.ForgetTrack(w.cameraID, id)
	}
	w.p.metrics.ActiveTracks.DeleteLabelValues(w.cameraID)

	if w.p.deps.Evidence != nil && errors.Is(reason, domain.ErrCameraOffline) {
		w.p.deps.Evidence.Forget(w.cameraID)
	}
}

// process runs inference on one frame under the frame deadline and
// publishes the overlay. Inference faults drop the failing modality only.
func (w *worker) process(ctx context.Context, frame domain.Frame) {
	frameCtx, cancel := context.WithTimeout(ctx, w.p.cfg.FrameDeadline)
	defer cancel()

	now := w.p.now()
	overlay := domain.Overlay{
		CameraID:   frame.CameraID,
		Seq:        frame.Seq,
		CapturedAt: frame.CapturedAt,
		Faces:      []domain.FaceOverlay{},
		People:     []domain.PersonOverlay{},
	}
	outcome := outcomeProcessed

	faces, err := w.detectFaces(frameCtx, frame)
	if err != nil {
		outcome = w.fault("faces", err)
	}
	people, err := w.detectPeople(frameCtx, frame)
	if err != nil && outcome == outcomeProcessed {
		outcome = w.fault("people", err)
	}
	if frameCtx.Err() != nil {
		// out of time: the frame counts as having no detections
		faces, people = nil, nil
		outcome = outcomeTimeout
	}
	overlay.TimedOut = outcome == outcomeTimeout

	if ctx.Err() != nil {
		// camera released or shutting down, discard the result
		return
	}

	matched := w.matchFaces(ctx, frameCtx, faces, &overlay)
	w.trackPeople(ctx, frameCtx, now, people, matched, &overlay)

	w.p.metrics.FramesProcessed.WithLabelValues(w.cameraID, outcome).Inc()
	if w.p.deps.Overlays != nil {
		w.p.deps.Overlays.PublishOverlay(overlay)
	}
}

func (w *worker) detectFaces(ctx context.Context, frame domain.Frame) ([]provider.DetectedFace, error) {
	if w.p.deps.Faces == nil {
		return nil, nil
	}
	return w.p.deps.Faces.AnalyzeFaces(ctx, frame.Data)
}

func (w *worker) detectPeople(ctx context.Context, frame domain.Frame) ([]domain.PersonDetection, error) {
	if w.p.deps.People == nil {
		return nil, nil
	}
	return w.p.deps.People.DetectPeople(ctx, frame.Data)
}

func (w *worker) fault(stage string, err error) string {
	if errors.Is(err, domain.ErrInferenceTimeout) || errors.Is(err, context.DeadlineExceeded) {
		w.logger.Warn("frame deadline exceeded", slog.String("stage", stage))
		return outcomeTimeout
	}
	if !errors.Is(err, context.Canceled) {
		w.logger.Error("inference failed", slog.String("stage", stage), slog.Any("error", err))
	}
	return outcomeError
}

type matchedFace struct {
	box        domain.BoundingBox
	identityID string
}

// matchFaces resolves faces to identities. Display names are looked up
// under the frame deadline and fall back to the identity ID.
func (w *worker) matchFaces(ctx, frameCtx context.Context, faces []provider.DetectedFace, overlay *domain.Overlay) []matchedFace {
	var matched []matchedFace
	for _, face := range faces {
		match, ok := w.p.deps.Matcher.Match(face.Embedding)
		fo := domain.FaceOverlay{
			Box:   face.Box,
			Name:  domain.UnknownIdentity,
			Score: match.Score,
		}

		if !ok {
			w.p.metrics.FaceMatches.WithLabelValues("unknown").Inc()
			// a near miss is surfaced, never promoted to a match
			fo.LowConfidence = match.Score > 0
			overlay.Faces = append(overlay.Faces, fo)
			continue
		}

		w.p.metrics.FaceMatches.WithLabelValues("matched").Inc()
		fo.IdentityID = match.IdentityID
		fo.Name = match.IdentityID
		if w.p.deps.Names != nil {
			fo.Name = w.p.deps.Names.Name(frameCtx, match.IdentityID)
		}
		overlay.Faces = append(overlay.Faces, fo)
		matched = append(matched, matchedFace{box: face.Box, identityID: match.IdentityID})

		w.p.deps.Recorder.RecordMatch(ctx, w.cameraID, match)
	}
	return matched
}

func (w *worker) trackPeople(ctx, frameCtx context.Context, now time.Time, people []domain.PersonDetection, faces []matchedFace, overlay *domain.Overlay) {
	result := w.tracker.Update(now, people)
	for _, id := range result.Expired {
		w.p.deps.Recorder.ForgetTrack(w.cameraID, id)
	}
	w.p.metrics.ActiveTracks.WithLabelValues(w.cameraID).Set(float64(w.tracker.Len()))

	tracks := make([]*tracker.Track, len(result.Associations))
	for i, assoc := range result.Associations {
		tracks[i] = assoc.Track
		if id := faceInside(assoc.Track.Box, faces); id != "" {
			assoc.Track.IdentityID = id
		}
	}

	var verdicts []activity.Verdict
	if w.p.deps.Classifier != nil {
		verdicts = w.p.deps.Classifier.ClassifyFrame(frameCtx, tracks, now)
	} else {
		verdicts = make([]activity.Verdict, len(tracks))
		for i, track := range tracks {
			verdicts[i] = activity.Verdict{
				CameraID: track.CameraID,
				TrackID:  track.ID,
				Label:    activity.LabelPending,
				State:    activity.StateInsufficientHistory,
				Severity: activity.SeverityOf(activity.LabelPending),
			}
		}
	}

	for i, track := range tracks {
		verdict := verdicts[i]
		track.Label = verdict.Label
		track.LabelConfidence = verdict.Confidence

		w.p.deps.Recorder.RecordActivity(ctx, verdict)

		overlay.People = append(overlay.People, domain.PersonOverlay{
			Box:           track.Box,
			TrackID:       track.ID,
			Label:         verdict.Label,
			State:         string(verdict.State),
			Confidence:    verdict.Confidence,
			Severity:      verdict.Severity,
			LowConfidence: verdict.LowConfidence,
		})
	}
}

// faceInside returns the identity of the first matched face whose centre
// lies in box.
func faceInside(box domain.BoundingBox, faces []matchedFace) string {
	for _, f := range faces {
		cx, cy := f.box.Center()
		if cx >= box.X && cx <= box.X+box.Width && cy >= box.Y && cy <= box.Y+box.Height {
			return f.identityID
		}
	}
	return ""
}
