// Package agent runs the bounded tool loop that turns a user message plus a
// resolved tool set into the agent's reply.
package agent

// Decision is the outcome of one decide step. It is a sealed union: the
// only implementations are FinalText and ToolUse, so the loop's control
// flow is an exhaustive type switch.
type Decision interface {
	sealedDecision()
}

// FinalText ends the loop with the agent's answer.
type FinalText struct {
	Text string
}

func (FinalText) sealedDecision() {}

// ToolUse selects exactly one tool to invoke with a structured input.
type ToolUse struct {
	ToolID string
	Input  map[string]any
}

func (ToolUse) sealedDecision() {}

// Observation is one entry in the loop's working context: the user's text,
// or a tool invocation's structured outcome fed back for the next decide
// step.
type Observation struct {
	Kind    string         `json:"kind"` // "user" | "tool_result" | "tool_error"
	ToolID  string         `json:"tool_id,omitempty"`
	Content string         `json:"content,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Observation kinds
const (
	ObservationUser       = "user"
	ObservationToolResult = "tool_result"
	ObservationToolError  = "tool_error"
)
