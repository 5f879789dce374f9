// Package tracker associates per-frame person detections into persistent
// per-camera tracks by bounding-box overlap.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const (
	DefaultIoUThreshold = 0.3
	DefaultGrace        = 3 * time.Second
	DefaultPoseWindow   = 30
)

type Config struct {
	// IoUThreshold is the minimum overlap for a detection to continue a track.
	IoUThreshold float64
	// Grace is how long a track survives without a matching detection.
	Grace time.Duration
	// PoseWindow is the pose ring buffer capacity.
	PoseWindow int
}

func DefaultConfig() Config {
	return Config{
		IoUThreshold: DefaultIoUThreshold,
		Grace:        DefaultGrace,
		PoseWindow:   DefaultPoseWindow,
	}
}

// Track is a camera-local identity for one body. It is owned by the Tracker
// and must only be touched from the goroutine driving Update.
type Track struct {
	ID         uint64
	CameraID   string
	Box        domain.BoundingBox
	Confidence float64
	FirstSeen  time.Time
	LastSeen   time.Time
	Hits       int

	// IdentityID is set when a recognised face falls inside the track box.
	IdentityID string

	// Label and LabelConfidence hold the latest activity verdict.
	Label           string
	LabelConfidence float64

	poses   *PoseBuffer
	history []BoxSample
	maxHist int
}

// BoxSample is one observed body box.
type BoxSample struct {
	Box domain.BoundingBox
	At  time.Time
}

func (t *Track) Poses() *PoseBuffer { return t.poses }

// History returns the bounded bounding-box history, oldest first.
func (t *Track) History() []BoxSample {
	out := make([]BoxSample, len(t.history))
	copy(out, t.history)
	return out
}

// Age is how long the track has existed at now.
func (t *Track) Age(now time.Time) time.Duration { return now.Sub(t.FirstSeen) }

// Association pairs a track with the detection that updated or created it.
type Association struct {
	Track     *Track
	Detection domain.PersonDetection
	New       bool
}

// Result is the outcome of one Update call.
type Result struct {
	Associations []Association
	// Expired lists tracks destroyed because their grace period elapsed.
	Expired []uint64
}

type Tracker struct {
	cameraID string
	cfg      Config

	mu     sync.Mutex
	tracks map[uint64]*Track
	nextID uint64
}

func New(cameraID string, cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = def.IoUThreshold
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.PoseWindow < 1 {
		cfg.PoseWindow = def.PoseWindow
	}
	return &Tracker{
		cameraID: cameraID,
		cfg:      cfg,
		tracks:   make(map[uint64]*Track),
	}
}

type candidate struct {
	track *Track
	det   int
	iou   float64
}

// Update destroys tracks unseen for longer than the grace period, then
// associates detections with the remaining tracks greedily by IoU, highest
// overlap first. Unmatched detections open new tracks.
func (t *Tracker) Update(now time.Time, detections []domain.PersonDetection) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result Result
	result.Expired = t.expireLocked(now)

	tracks := t.sortedTracks()

	var candidates []candidate
	for _, tr := range tracks {
		for di, det := range detections {
			iou := tr.Box.IoU(det.Box)
			if iou >= t.cfg.IoUThreshold {
				candidates = append(candidates, candidate{track: tr, det: di, iou: iou})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].iou != candidates[j].iou {
			return candidates[i].iou > candidates[j].iou
		}
		if candidates[i].track.ID != candidates[j].track.ID {
			return candidates[i].track.ID < candidates[j].track.ID
		}
		return candidates[i].det < candidates[j].det
	})

	trackUsed := make(map[uint64]bool, len(tracks))
	detUsed := make([]bool, len(detections))

	for _, c := range candidates {
		if trackUsed[c.track.ID] || detUsed[c.det] {
			continue
		}
		trackUsed[c.track.ID] = true
		detUsed[c.det] = true

		t.apply(c.track, detections[c.det], now)
		result.Associations = append(result.Associations, Association{
			Track:     c.track,
			Detection: detections[c.det],
		})
	}

	for di, det := range detections {
		if detUsed[di] {
			continue
		}
		t.nextID++
		tr := &Track{
			ID:        t.nextID,
			CameraID:  t.cameraID,
			FirstSeen: now,
			poses:     NewPoseBuffer(t.cfg.PoseWindow),
			maxHist:   t.cfg.PoseWindow,
		}
		t.apply(tr, det, now)
		t.tracks[tr.ID] = tr

		result.Associations = append(result.Associations, Association{
			Track:     tr,
			Detection: det,
			New:       true,
		})
	}

	return result
}

func (t *Tracker) apply(tr *Track, det domain.PersonDetection, now time.Time) {
	tr.Box = det.Box
	tr.Confidence = det.Confidence
	tr.LastSeen = now
	tr.Hits++
	tr.history = append(tr.history, BoxSample{Box: det.Box, At: now})
	if len(tr.history) > tr.maxHist {
		tr.history = tr.history[len(tr.history)-tr.maxHist:]
	}
	if det.Pose != nil {
		tr.poses.Push(PoseSample{Pose: *det.Pose, Box: det.Box, At: now})
	}
}

// Expire destroys tracks whose grace period has elapsed at now.
func (t *Tracker) Expire(now time.Time) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expireLocked(now)
}

func (t *Tracker) expireLocked(now time.Time) []uint64 {
	var expired []uint64
	for id, tr := range t.tracks {
		if now.Sub(tr.LastSeen) > t.cfg.Grace {
			expired = append(expired, id)
			delete(t.tracks, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// Reset destroys every track and returns their IDs.
func (t *Tracker) Reset() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	t.tracks = make(map[uint64]*Track)
	return ids
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// Get returns a live track by ID.
func (t *Tracker) Get(id uint64) (*Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracks[id]
	return tr, ok
}

func (t *Tracker) sortedTracks() []*Track {
	tracks := make([]*Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		tracks = append(tracks, tr)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	return tracks
}
