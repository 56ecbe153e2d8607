package domain

import "fmt"

// AgentType is the logical role a request is made on behalf of. The set is
// closed: routes are provisioned per agent type at startup, so an unknown
// value is a configuration bug rather than a runtime condition.
type AgentType string

const (
	AgentResearcher AgentType = "researcher"
	AgentAnalysis   AgentType = "analysis"
	AgentWriting    AgentType = "writing"
	AgentEditing    AgentType = "editing"
	AgentFormatting AgentType = "formatting"
)

// AllAgentTypes lists every agent type the routing table must cover.
var AllAgentTypes = []AgentType{
	AgentResearcher,
	AgentAnalysis,
	AgentWriting,
	AgentEditing,
	AgentFormatting,
}

// Valid reports whether a is one of the known agent types.
func (a AgentType) Valid() bool {
	for _, known := range AllAgentTypes {
		if a == known {
			return true
		}
	}
	return false
}

// ParseAgentType converts a string into an AgentType, rejecting unknown values.
func ParseAgentType(s string) (AgentType, error) {
	a := AgentType(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown agent type %q", s)
	}
	return a, nil
}
