package proctoring

import (
	"testing"
	"time"

	"github.com/kicc/cbt-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func violations(types ...string) []model.Violation {
	out := make([]model.Violation, len(types))
	for i, t := range types {
		out[i] = model.Violation{Type: t, Timestamp: time.Unix(int64(i), 0)}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	p := NewPolicy(0)

	tests := []struct {
		name       string
		list       []model.Violation
		wantLock   bool
		wantReason string
	}{
		{"tab switch locks", violations(TypeTabSwitch), true, "Tab switch detected - exam locked"},
		{"screen share stopped locks", violations(TypeScreenShareStopped), true, TypeScreenShareStopped},
		{"locked prefix uses suffix", violations("LOCKED: Multiple people"), true, "Multiple people"},
		{"bare locked prefix falls back to type", violations("LOCKED:"), true, "LOCKED:"},
		{"four talking events", violations(TypeExcessiveTalking, TypeSustainedTalking, TypeExcessiveTalking, TypeSustainedTalking), false, ""},
		{"fifth talking event locks", violations(TypeExcessiveTalking, TypeSustainedTalking, TypeExcessiveTalking, TypeSustainedTalking, TypeExcessiveTalking), true, "Excessive talking - 5 violations detected"},
		{"talking count ignores other types", violations(TypeExcessiveTalking, TypeFaceNotVisible, TypeExcessiveTalking, TypeFaceNotVisible, TypeExcessiveTalking), false, ""},
		{"face not visible does not lock", violations(TypeFaceNotVisible), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Evaluate(tt.list, tt.list[len(tt.list)-1])
			assert.Equal(t, tt.wantLock, d.Lock)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestEvaluate_IsRepeatable(t *testing.T) {
	p := NewPolicy(3)
	list := violations(TypeSustainedTalking, TypeSustainedTalking, TypeSustainedTalking)

	first := p.Evaluate(list, list[2])
	second := p.Evaluate(list, list[2])

	assert.Equal(t, first, second)
	assert.True(t, first.Lock)
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, model.SeverityCritical, Severity("LOCKED: x"))
	assert.Equal(t, model.SeverityHigh, Severity(TypeTabSwitch))
	assert.True(t, IsCritical(TypeMultipleFaces))
	assert.False(t, IsCritical(TypeTabSwitch))
}
