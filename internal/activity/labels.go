package activity

import "github.com/saturnino-fabrica-de-software/vigia/internal/domain"

const (
	LabelPending   = "pending"
	LabelNormal    = "normal"
	LabelHandRaise = "hand_raise"
	LabelStanding  = "standing"
	LabelSitting   = "sitting"
	LabelFalling   = "falling"
	LabelRunning   = "running"
	LabelLoitering = "loitering"
	LabelFighting  = "fighting"
)

// State is the per-track classification state.
type State string

const (
	StateInsufficientHistory State = "INSUFFICIENT_HISTORY"
	StateClassified          State = "CLASSIFIED"
)

var severities = map[string]domain.Severity{
	LabelFighting:  domain.SeverityHigh,
	LabelFalling:   domain.SeverityHigh,
	LabelRunning:   domain.SeverityMedium,
	LabelLoitering: domain.SeverityLow,
}

// SeverityOf maps a label to its fixed severity. Unknown labels are low.
func SeverityOf(label string) domain.Severity {
	if s, ok := severities[label]; ok {
		return s
	}
	return domain.SeverityLow
}

// IsNormal reports whether a label describes no reportable activity.
func IsNormal(label string) bool {
	return label == LabelNormal || label == LabelPending || label == ""
}
