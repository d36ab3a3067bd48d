package types

import "fmt"

// DecisionType is the decision intent of an event.
type DecisionType string

const (
	DecisionTriage     DecisionType = "Triage"
	DecisionEscalation DecisionType = "Escalation"
	DecisionResolution DecisionType = "Resolution"
	DecisionDiscussion DecisionType = "Discussion"
)

// AllDecisionTypes returns all valid decision types
func AllDecisionTypes() []DecisionType {
	return []DecisionType{
		DecisionTriage,
		DecisionEscalation,
		DecisionResolution,
		DecisionDiscussion,
	}
}

// IsValid checks if the decision type is valid
func (d DecisionType) IsValid() bool {
	switch d {
	case DecisionTriage, DecisionEscalation, DecisionResolution, DecisionDiscussion:
		return true
	default:
		return false
	}
}

func (d DecisionType) String() string {
	return string(d)
}

// ParseDecisionType parses a string into a DecisionType
func ParseDecisionType(s string) (DecisionType, error) {
	d := DecisionType(s)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid decision type: %s", s)
	}
	return d, nil
}
