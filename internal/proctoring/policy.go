// Package proctoring decides when a stream of violations locks a session.
package proctoring

import (
	"fmt"
	"strings"

	"github.com/kicc/cbt-backend/internal/model"
)

const (
	TypeTabSwitch          = "tab_switch"
	TypeScreenShareStopped = "screen_share_stopped"
	TypeExcessiveTalking   = "excessive_talking"
	TypeSustainedTalking   = "sustained_talking"
	TypeFaceNotVisible     = "face_not_visible"
	TypeMultipleFaces      = "multiple_faces"

	// LockedPrefix marks a violation the client already treats as locking.
	LockedPrefix = "LOCKED:"

	DefaultTalkingThreshold = 5
)

// Decision is the result of evaluating the violation list.
type Decision struct {
	Lock   bool
	Reason string
}

// Policy holds the tunable thresholds.
type Policy struct {
	TalkingThreshold int
}

// NewPolicy returns a policy, falling back to the default talking threshold.
func NewPolicy(talkingThreshold int) Policy {
	if talkingThreshold <= 0 {
		talkingThreshold = DefaultTalkingThreshold
	}
	return Policy{TalkingThreshold: talkingThreshold}
}

// Evaluate decides whether latest, the newest entry of violations, locks the
// session. Counts are derived from the full list, so re-evaluating the same
// list always yields the same decision.
func (p Policy) Evaluate(violations []model.Violation, latest model.Violation) Decision {
	t := latest.Type

	switch {
	case strings.HasPrefix(t, LockedPrefix):
		reason := strings.TrimSpace(strings.TrimPrefix(t, LockedPrefix))
		if reason == "" {
			reason = t
		}
		return Decision{Lock: true, Reason: reason}

	case t == TypeScreenShareStopped:
		return Decision{Lock: true, Reason: t}

	case t == TypeTabSwitch:
		return Decision{Lock: true, Reason: "Tab switch detected - exam locked"}

	case IsTalking(t):
		n := 0
		for _, v := range violations {
			if IsTalking(v.Type) {
				n++
			}
		}
		if n >= p.TalkingThreshold {
			return Decision{Lock: true, Reason: fmt.Sprintf("Excessive talking - %d violations detected", n)}
		}
	}

	return Decision{}
}

// IsTalking reports whether t is one of the audio talking violations.
func IsTalking(t string) bool {
	return t == TypeExcessiveTalking || t == TypeSustainedTalking
}

// IsCritical reports whether t is shown as critical on the teacher monitor.
func IsCritical(t string) bool {
	return t == TypeFaceNotVisible || t == TypeMultipleFaces || t == TypeExcessiveTalking
}

// Severity ranks a violation for the audit trail.
func Severity(t string) model.Severity {
	if strings.HasPrefix(t, LockedPrefix) {
		return model.SeverityCritical
	}
	return model.SeverityHigh
}
