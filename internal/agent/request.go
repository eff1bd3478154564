package agent

import (
	"strings"

	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// Step is one prior turn of the tool-calling loop, supplied by the client in
// the agent scratchpad.
type Step struct {
	Thought     string `json:"thought"`
	Tool        string `json:"tool"`
	ToolInput   string `json:"tool_input"`
	Observation string `json:"observation"`
}

// Request is everything one agent turn needs.
type Request struct {
	Question          string
	ChatHistory       []types.Message
	Context           *types.ChatContext
	CurrentFile       *types.CurrentFile
	AdditionalContext []types.AdditionalContext
	Scratchpad        []Step
	ModelMetadata     *types.ModelMetadata
}

// inputs flattens the request into the template variable map the chat agent
// prompt renders from.
func (r *Request) inputs(tools []Tool) map[string]any {
	in := map[string]any{
		"question":     r.Question,
		"tools":        renderTools(tools),
		"scratchpad":   renderScratchpad(r.Scratchpad),
		"chat_history": renderHistory(r.ChatHistory),
	}
	if r.Context != nil {
		in["context_type"] = r.Context.Type
		in["context_content"] = r.Context.Content
	}
	if r.CurrentFile != nil {
		in["current_file_path"] = r.CurrentFile.FileName
		in["current_file_content"] = r.CurrentFile.ContentAboveCursor + r.CurrentFile.ContentBelowCursor
	}
	if len(r.AdditionalContext) > 0 {
		var b strings.Builder
		for _, ac := range r.AdditionalContext {
			b.WriteString("<" + ac.Category + ">\n")
			b.WriteString(ac.Content)
			b.WriteString("\n</" + ac.Category + ">\n")
		}
		in["additional_context"] = b.String()
	}
	return in
}

func renderTools(tools []Tool) string {
	var b strings.Builder
	for _, t := range tools {
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
		if t.Example != "" {
			b.WriteString(" Example: ")
			b.WriteString(t.Example)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderScratchpad(steps []Step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString("Thought: " + s.Thought + "\n")
		b.WriteString("Action: " + s.Tool + "\n")
		b.WriteString("Action Input: " + s.ToolInput + "\n")
		b.WriteString("Observation: " + s.Observation + "\n")
	}
	return b.String()
}

func renderHistory(history []types.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(string(m.Role) + ": " + m.Content + "\n")
	}
	return b.String()
}
