package agent

import (
	"regexp"
	"strings"
)

// The ReAct output grammar. The model is expected to emit either a tool
// action:
//
//	Thought: <free text>
//	Action: <tool_name>
//	Action Input: <free text>
//
// or a final answer:
//
//	Thought: <free text>
//	Final Answer: <free text>
//
// Anything else is an unknown action. The assistant template seeds the model
// with "Thought:", so a buffer may also arrive without the leading marker.
var (
	actionRe = regexp.MustCompile(`(?s)(?:Thought:)?\s*(.*?)\s*\nAction:[ \t]*([^\n]+?)[ \t]*\nAction Input:[ \t]?(.*)`)
	finalRe  = regexp.MustCompile(`(?s)(?:Thought:)?\s*(.*?)\s*\nFinal Answer:[ \t]?(.*)`)
)

// FinalAnswer is the parser-internal result for a complete answer. The
// streaming layer slices it into FinalAnswerDelta events.
type FinalAnswer struct {
	Thought string
	Text    string
}

// Parse matches the accumulated buffer against the grammar. It returns
// *ToolAction, *FinalAnswer, or nil when neither arm matches yet.
func Parse(buffer string) any {
	if m := actionRe.FindStringSubmatch(buffer); m != nil {
		return &ToolAction{
			Thought:   strings.TrimSpace(m[1]),
			Tool:      m[2],
			ToolInput: strings.TrimRight(m[3], "\n"),
		}
	}
	if m := finalRe.FindStringSubmatch(buffer); m != nil {
		return &FinalAnswer{
			Thought: strings.TrimSpace(m[1]),
			Text:    m[2],
		}
	}
	return nil
}
