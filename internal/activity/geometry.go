package activity

import (
	"math"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type point struct{ x, y float64 }

func kp(p *domain.Pose, i int) point {
	return point{p[i].X, p[i].Y}
}

func midpoint(p *domain.Pose, a, b int) point {
	return point{(p[a].X + p[b].X) / 2, (p[a].Y + p[b].Y) / 2}
}

func distance(a, b point) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

func valid(p *domain.Pose, minConf float64, indices ...int) bool {
	for _, i := range indices {
		if p[i].Confidence < minConf {
			return false
		}
	}
	return true
}

// jointAngle returns the angle at b formed by a-b-c, in degrees.
func jointAngle(a, b, c point) float64 {
	bax, bay := a.x-b.x, a.y-b.y
	bcx, bcy := c.x-b.x, c.y-b.y
	norm := math.Hypot(bax, bay)*math.Hypot(bcx, bcy) + 1e-6
	cos := (bax*bcx + bay*bcy) / norm
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// torsoAngle is the shoulder-to-hip line angle from vertical, in degrees.
// 0 is upright, 90 is horizontal.
func torsoAngle(p *domain.Pose) float64 {
	shoulders := midpoint(p, domain.KeypointLeftShoulder, domain.KeypointRightShoulder)
	hips := midpoint(p, domain.KeypointLeftHip, domain.KeypointRightHip)
	dx := math.Abs(hips.x - shoulders.x)
	dy := math.Abs(hips.y - shoulders.y)
	return math.Atan2(dx, dy+1e-6) * 180 / math.Pi
}

// kneeAngles returns the hip-knee-ankle angle of every side whose keypoints
// are reliable.
func kneeAngles(p *domain.Pose, minConf float64) []float64 {
	sides := [2][3]int{
		{domain.KeypointLeftHip, domain.KeypointLeftKnee, domain.KeypointLeftAnkle},
		{domain.KeypointRightHip, domain.KeypointRightKnee, domain.KeypointRightAnkle},
	}
	var angles []float64
	for _, s := range sides {
		if valid(p, minConf, s[0], s[1], s[2]) {
			angles = append(angles, jointAngle(kp(p, s[0]), kp(p, s[1]), kp(p, s[2])))
		}
	}
	return angles
}

// bodyCentre is the hip midpoint, or the box centre when the hips are unreliable.
func bodyCentre(p *domain.Pose, box domain.BoundingBox, minConf float64) point {
	if valid(p, minConf, domain.KeypointLeftHip, domain.KeypointRightHip) {
		return midpoint(p, domain.KeypointLeftHip, domain.KeypointRightHip)
	}
	x, y := box.Center()
	return point{x, y}
}

func overlaps(a, b domain.BoundingBox) bool {
	dx := math.Min(a.X+a.Width, b.X+b.Width) - math.Max(a.X, b.X)
	dy := math.Min(a.Y+a.Height, b.Y+b.Height) - math.Max(a.Y, b.Y)
	return dx > 0 && dy > 0
}
