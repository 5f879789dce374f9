package activity

import (
	"math"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
)

// RuleConfig holds the geometric thresholds. Values are tuned for a fixed
// classroom or hallway camera.
type RuleConfig struct {
	MinKeypointConfidence float64

	// Posture rules
	UprightAngle        float64
	StandingKneeAngle   float64
	SittingKneeAngle    float64
	HandRaiseConfidence float64
	StandingConfidence  float64
	SittingConfidence   float64

	// Falling
	FallingAngle         float64
	FallingAspectRatio   float64
	FallingMaxConfidence float64
	// HipDrop is how far (px) the hips must sit below the knees to count as
	// a body on the ground.
	HipDrop          float64
	GroundConfidence float64

	// Fighting
	FightingProximity  float64
	FightingCloseRatio float64
	FightingConfidence float64

	// Running
	RunningVelocity  float64
	RunningSamples   int
	WalkingKneeAngle float64

	// Loitering
	LoiterDuration   time.Duration
	LoiterSpread     float64
	LoiterMinSamples int
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		MinKeypointConfidence: 0.3,

		UprightAngle:        30,
		StandingKneeAngle:   160,
		SittingKneeAngle:    120,
		HandRaiseConfidence: 0.9,
		StandingConfidence:  0.75,
		SittingConfidence:   0.7,

		FallingAngle:         75,
		FallingAspectRatio:   1.3,
		FallingMaxConfidence: 0.95,
		HipDrop:              20,
		GroundConfidence:     0.7,

		FightingProximity:  100,
		FightingCloseRatio: 0.6,
		FightingConfidence: 0.75,

		RunningVelocity:  2200,
		RunningSamples:   6,
		WalkingKneeAngle: 150,

		LoiterDuration:   60 * time.Second,
		LoiterSpread:     150,
		LoiterMinSamples: 10,
	}
}

// Observation is what a rule sees of one track.
type Observation struct {
	// Samples are the buffered poses, oldest first. The last one is current.
	Samples   []tracker.PoseSample
	FirstSeen time.Time
	Now       time.Time
	// Peers are the other bodies posed in the same frame.
	Peers []Peer
}

// Peer is another track's pose in the current frame.
type Peer struct {
	TrackID uint64
	Pose    domain.Pose
	Box     domain.BoundingBox
}

func (o Observation) current() (*domain.Pose, domain.BoundingBox, bool) {
	if len(o.Samples) == 0 {
		return nil, domain.BoundingBox{}, false
	}
	last := o.Samples[len(o.Samples)-1]
	return &last.Pose, last.Box, true
}

// Candidate is a label proposed by one rule.
type Candidate struct {
	Label      string
	Confidence float64
}

type Rule interface {
	Evaluate(obs Observation) (Candidate, bool)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(obs Observation) (Candidate, bool)

func (f RuleFunc) Evaluate(obs Observation) (Candidate, bool) { return f(obs) }

// RuleEngine evaluates two ordered rule groups. Posture rules look only at
// the current pose and describe geometrically unambiguous activities. Motion
// rules may look at the whole buffer and are ordered by priority.
type RuleEngine struct {
	posture []Rule
	motion  []Rule
}

func NewRuleEngine(cfg RuleConfig) *RuleEngine {
	return &RuleEngine{
		posture: []Rule{
			RuleFunc(cfg.handRaise),
			RuleFunc(cfg.sitting),
			RuleFunc(cfg.standing),
		},
		motion: []Rule{
			RuleFunc(cfg.fighting),
			RuleFunc(cfg.falling),
			RuleFunc(cfg.running),
			RuleFunc(cfg.loitering),
		},
	}
}

// Posture returns the first posture rule that fires.
func (e *RuleEngine) Posture(obs Observation) (Candidate, bool) {
	return first(e.posture, obs)
}

// Motion returns every motion rule that fires, highest priority first.
func (e *RuleEngine) Motion(obs Observation) []Candidate {
	var out []Candidate
	for _, r := range e.motion {
		if c, ok := r.Evaluate(obs); ok {
			out = append(out, c)
		}
	}
	return out
}

func first(rules []Rule, obs Observation) (Candidate, bool) {
	for _, r := range rules {
		if c, ok := r.Evaluate(obs); ok {
			return c, true
		}
	}
	return Candidate{}, false
}

func (cfg RuleConfig) upright(p *domain.Pose, maxAngle float64) bool {
	if !valid(p, cfg.MinKeypointConfidence,
		domain.KeypointLeftShoulder, domain.KeypointRightShoulder,
		domain.KeypointLeftHip, domain.KeypointRightHip) {
		return false
	}
	return torsoAngle(p) < maxAngle
}

// handRaise fires when either wrist is above its shoulder on an upright body.
// Image y grows downward.
func (cfg RuleConfig) handRaise(obs Observation) (Candidate, bool) {
	p, _, ok := obs.current()
	if !ok || !cfg.upright(p, cfg.UprightAngle) {
		return Candidate{}, false
	}
	pairs := [2][2]int{
		{domain.KeypointLeftWrist, domain.KeypointLeftShoulder},
		{domain.KeypointRightWrist, domain.KeypointRightShoulder},
	}
	for _, pair := range pairs {
		if valid(p, cfg.MinKeypointConfidence, pair[0], pair[1]) && p[pair[0]].Y < p[pair[1]].Y {
			return Candidate{Label: LabelHandRaise, Confidence: cfg.HandRaiseConfidence}, true
		}
	}
	return Candidate{}, false
}

func (cfg RuleConfig) standing(obs Observation) (Candidate, bool) {
	p, _, ok := obs.current()
	if !ok || !cfg.upright(p, cfg.UprightAngle) {
		return Candidate{}, false
	}
	angles := kneeAngles(p, cfg.MinKeypointConfidence)
	if len(angles) == 0 {
		return Candidate{}, false
	}
	for _, a := range angles {
		if a < cfg.StandingKneeAngle {
			return Candidate{}, false
		}
	}
	return Candidate{Label: LabelStanding, Confidence: cfg.StandingConfidence}, true
}

func (cfg RuleConfig) sitting(obs Observation) (Candidate, bool) {
	p, _, ok := obs.current()
	if !ok || !cfg.upright(p, cfg.UprightAngle*1.5) {
		return Candidate{}, false
	}
	angles := kneeAngles(p, cfg.MinKeypointConfidence)
	if len(angles) == 0 {
		return Candidate{}, false
	}
	for _, a := range angles {
		if a > cfg.SittingKneeAngle {
			return Candidate{}, false
		}
	}
	return Candidate{Label: LabelSitting, Confidence: cfg.SittingConfidence}, true
}

// falling fires on a nearly horizontal torso inside a box wider than tall,
// or on hips that dropped below the knees.
func (cfg RuleConfig) falling(obs Observation) (Candidate, bool) {
	p, box, ok := obs.current()
	if !ok {
		return Candidate{}, false
	}
	if !valid(p, cfg.MinKeypointConfidence,
		domain.KeypointLeftShoulder, domain.KeypointRightShoulder,
		domain.KeypointLeftHip, domain.KeypointRightHip) {
		return Candidate{}, false
	}

	angle := torsoAngle(p)
	wide := box.Height <= 0 || box.Width/box.Height > cfg.FallingAspectRatio
	if angle > cfg.FallingAngle && wide {
		return Candidate{Label: LabelFalling, Confidence: math.Min(cfg.FallingMaxConfidence, angle/90)}, true
	}

	if valid(p, cfg.MinKeypointConfidence, domain.KeypointLeftKnee, domain.KeypointRightKnee) {
		hips := midpoint(p, domain.KeypointLeftHip, domain.KeypointRightHip)
		knees := midpoint(p, domain.KeypointLeftKnee, domain.KeypointRightKnee)
		// image y grows downward
		if hips.y > knees.y+cfg.HipDrop {
			return Candidate{Label: LabelFalling, Confidence: cfg.GroundConfidence}, true
		}
	}
	return Candidate{}, false
}

// fighting fires when another body is within reach: hips closer than the
// proximity and either overlapping boxes or hips very close.
func (cfg RuleConfig) fighting(obs Observation) (Candidate, bool) {
	if len(obs.Peers) == 0 || len(obs.Samples) == 0 {
		return Candidate{}, false
	}
	last := obs.Samples[len(obs.Samples)-1]
	if !last.At.Equal(obs.Now) {
		// no pose for this track in the current frame
		return Candidate{}, false
	}
	if !valid(&last.Pose, cfg.MinKeypointConfidence, domain.KeypointLeftHip, domain.KeypointRightHip) {
		return Candidate{}, false
	}
	hips := midpoint(&last.Pose, domain.KeypointLeftHip, domain.KeypointRightHip)

	for _, peer := range obs.Peers {
		if !valid(&peer.Pose, cfg.MinKeypointConfidence, domain.KeypointLeftHip, domain.KeypointRightHip) {
			continue
		}
		d := distance(hips, midpoint(&peer.Pose, domain.KeypointLeftHip, domain.KeypointRightHip))
		if d > cfg.FightingProximity {
			continue
		}
		if overlaps(last.Box, peer.Box) || d < cfg.FightingProximity*cfg.FightingCloseRatio {
			return Candidate{Label: LabelFighting, Confidence: cfg.FightingConfidence}, true
		}
	}
	return Candidate{}, false
}

// running measures body-centre speed over the most recent samples.
func (cfg RuleConfig) running(obs Observation) (Candidate, bool) {
	n := cfg.RunningSamples
	if n < 2 {
		n = 2
	}
	if len(obs.Samples) < 2 {
		return Candidate{}, false
	}
	recent := obs.Samples
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	oldest, newest := recent[0], recent[len(recent)-1]
	dt := newest.At.Sub(oldest.At).Seconds()
	if dt <= 0 {
		return Candidate{}, false
	}

	from := bodyCentre(&oldest.Pose, oldest.Box, cfg.MinKeypointConfidence)
	to := bodyCentre(&newest.Pose, newest.Box, cfg.MinKeypointConfidence)
	velocity := distance(from, to) / dt
	if velocity < cfg.RunningVelocity {
		return Candidate{}, false
	}

	conf := math.Min(0.85, velocity/(cfg.RunningVelocity*2))
	if angles := kneeAngles(&newest.Pose, cfg.MinKeypointConfidence); len(angles) > 0 {
		maxAngle := 0.0
		for _, a := range angles {
			maxAngle = math.Max(maxAngle, a)
		}
		// bent knees at speed look like a fast walk
		if maxAngle < cfg.WalkingKneeAngle {
			conf *= 0.5
		}
	}
	return Candidate{Label: LabelRunning, Confidence: conf}, true
}

func (cfg RuleConfig) loitering(obs Observation) (Candidate, bool) {
	age := obs.Now.Sub(obs.FirstSeen)
	if age < cfg.LoiterDuration || len(obs.Samples) < cfg.LoiterMinSamples {
		return Candidate{}, false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range obs.Samples {
		c := bodyCentre(&s.Pose, s.Box, cfg.MinKeypointConfidence)
		minX, maxX = math.Min(minX, c.x), math.Max(maxX, c.x)
		minY, maxY = math.Min(minY, c.y), math.Max(maxY, c.y)
	}
	spread := math.Max(maxX-minX, maxY-minY)
	if spread >= cfg.LoiterSpread {
		return Candidate{}, false
	}

	conf := math.Min(0.8, age.Seconds()/(2*cfg.LoiterDuration.Seconds()))
	return Candidate{Label: LabelLoitering, Confidence: conf}, true
}
