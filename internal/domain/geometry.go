package domain

import "math"

// BoundingBox is an axis-aligned box in pixel coordinates, origin top-left.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

func (b BoundingBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
func (b BoundingBox) IoU(o BoundingBox) float64 {
	x1 := math.Max(b.X, o.X)
	y1 := math.Max(b.Y, o.Y)
	x2 := math.Min(b.X+b.Width, o.X+o.Width)
	y2 := math.Min(b.Y+b.Height, o.Y+o.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// KeypointCount is the number of COCO body keypoints produced by the pose model.
const KeypointCount = 17

// COCO-17 keypoint indices.
const (
	KeypointNose = iota
	KeypointLeftEye
	KeypointRightEye
	KeypointLeftEar
	KeypointRightEar
	KeypointLeftShoulder
	KeypointRightShoulder
	KeypointLeftElbow
	KeypointRightElbow
	KeypointLeftWrist
	KeypointRightWrist
	KeypointLeftHip
	KeypointRightHip
	KeypointLeftKnee
	KeypointRightKnee
	KeypointLeftAnkle
	KeypointRightAnkle
)

type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Pose is one set of body keypoints for a single person in a single frame.
type Pose [KeypointCount]Keypoint

// PersonDetection is the output of the person detector / pose estimator for
// one body. Pose is nil when the detector does not estimate keypoints.
type PersonDetection struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
	Pose       *Pose       `json:"pose,omitempty"`
}
