package agent

import "encoding/json"

// Event is the closed set of agent stream events. Each variant carries a
// stable type string for wire compatibility.
type Event interface {
	EventType() string
}

// ToolAction asks the caller to run a tool and report the observation.
type ToolAction struct {
	Thought   string `json:"thought"`
	Tool      string `json:"tool"`
	ToolInput string `json:"tool_input"`
}

func (ToolAction) EventType() string { return "action" }

// FinalAnswerDelta is one increment of the agent's final answer.
type FinalAnswerDelta struct {
	Text string `json:"text"`
}

func (FinalAnswerDelta) EventType() string { return "final_answer_delta" }

// UnknownAction carries raw model output that matched neither grammar arm.
type UnknownAction struct {
	Text string `json:"text"`
}

func (UnknownAction) EventType() string { return "unknown" }

// ErrorEvent is an in-band agent failure. Retryable is true for
// overload-class errors only.
type ErrorEvent struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (ErrorEvent) EventType() string { return "error" }

// MarshalEvent serializes an event into the {type, data} wire envelope.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data Event  `json:"data"`
	}{Type: e.EventType(), Data: e})
}
