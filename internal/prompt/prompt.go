package prompt

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// Class distinguishes plain prompts from agent prompts. The registry assigns
// classes through its override map; everything else is ClassBase.
type Class string

const (
	ClassBase       Class = "base"
	ClassReActAgent Class = "react_agent"
)

// roleOrder fixes message ordering when rendering role templates.
var roleOrder = []types.Role{types.RoleSystem, types.RoleUser, types.RoleAssistant}

// Prompt is a bound prompt: a named template set composed with a concrete
// model client and call parameters.
type Prompt struct {
	Name           string
	ID             string
	Class          Class
	UnitPrimitives []auth.UnitPrimitive

	client    model.Client
	templates map[types.Role]*template.Template
	callOpts  *model.Options
}

// Model exposes the bound client, mostly for instrumentation labels.
func (p *Prompt) Model() model.Client { return p.client }

// Messages renders the role templates with inputs into chat messages, in
// system/user/assistant order. Roles without a template are skipped.
func (p *Prompt) Messages(inputs map[string]any) ([]types.Message, error) {
	var messages []types.Message
	for _, role := range roleOrder {
		tmpl, ok := p.templates[role]
		if !ok {
			continue
		}
		var b strings.Builder
		if err := tmpl.Execute(&b, inputs); err != nil {
			return nil, fmt.Errorf("render %s template for %s: %w", role, p.ID, err)
		}
		messages = append(messages, types.Message{Role: role, Content: b.String()})
	}
	return messages, nil
}

// Invoke renders the prompt and runs a buffered chat completion.
func (p *Prompt) Invoke(ctx context.Context, inputs map[string]any) (string, error) {
	messages, err := p.Messages(inputs)
	if err != nil {
		return "", err
	}
	output, err := p.client.Chat(ctx, messages, p.callOpts)
	if err != nil {
		return "", err
	}
	return output.Text, nil
}

// Stream renders the prompt and returns the model's chunk stream.
func (p *Prompt) Stream(ctx context.Context, inputs map[string]any) (<-chan model.StreamEvent, error) {
	messages, err := p.Messages(inputs)
	if err != nil {
		return nil, err
	}
	return p.client.ChatStream(ctx, messages, p.callOpts)
}
