package agent

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
)

// ChatPromptID is the registry id of the Duo Chat ReAct agent prompt.
const ChatPromptID = "chat/react"

// ErrUnauthorized means the caller's capability set resolves to no tools or
// misses a primitive the agent prompt requires.
var ErrUnauthorized = errors.New("user is not authorized to use the chat agent")

// Executor binds the agent prompt factory and the tools registry.
type Executor struct {
	prompts *prompt.Registry
	tools   *ToolRegistry
	watcher *model.Watcher
	metrics *telemetry.Metrics
}

func NewExecutor(prompts *prompt.Registry, tools *ToolRegistry, watcher *model.Watcher, metrics *telemetry.Metrics) *Executor {
	return &Executor{prompts: prompts, tools: tools, watcher: watcher, metrics: metrics}
}

// OnBehalf resolves the tool set a user may drive. Debug users get every
// tool; everyone else gets the capability-filtered set, further narrowed by
// the instance version.
func (e *Executor) OnBehalf(user *auth.User, glVersion string) (*BoundExecutor, error) {
	var tools []Tool
	if user.IsDebug {
		tools = e.tools.All()
	} else {
		tools = e.tools.ForCapabilities(user.UnitPrimitives())
		if len(tools) == 0 {
			return nil, ErrUnauthorized
		}
	}

	if glVersion != "" {
		filtered := tools[:0:0]
		for _, t := range tools {
			if t.MinRequiredGitLabVersion == "" || versionAtLeast(glVersion, t.MinRequiredGitLabVersion) {
				filtered = append(filtered, t)
			}
		}
		tools = filtered
	}

	return &BoundExecutor{executor: e, user: user, tools: tools}, nil
}

// BoundExecutor is an executor fixed to one caller's resolved tool set.
type BoundExecutor struct {
	executor *Executor
	user     *auth.User
	tools    []Tool
}

// Tools returns the resolved tool set.
func (b *BoundExecutor) Tools() []Tool { return b.tools }

// Stream runs one agent turn: resolves the prompt, verifies the caller holds
// every primitive it requires, then consumes the ReAct event stream while
// validating tool actions against the resolved set.
func (b *BoundExecutor) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	p, err := b.executor.prompts.Get(ctx, ChatPromptID, req.ModelMetadata)
	if err != nil {
		return nil, err
	}

	if len(p.UnitPrimitives) == 0 {
		return nil, fmt.Errorf("%w: prompt %s declares no unit primitives", ErrUnauthorized, p.ID)
	}
	for _, required := range p.UnitPrimitives {
		if !b.user.Can(required) {
			return nil, fmt.Errorf("%w: missing %s", ErrUnauthorized, required)
		}
	}

	client := p.Model()
	scope, err := b.executor.watcher.Watch(ctx, client.Engine(), client.Name(), true)
	if err != nil {
		return nil, err
	}

	upstream, err := NewReActAgent(p).Stream(ctx, req.inputs(b.tools))
	if err != nil {
		scope.Finish(err)
		return nil, err
	}

	allowed := make(map[string]struct{}, len(b.tools))
	for _, t := range b.tools {
		allowed[t.Name] = struct{}{}
	}
	byName := make(map[string]Tool, len(b.tools))
	for _, t := range b.tools {
		byName[t.Name] = t
	}

	out := make(chan Event)
	go func() {
		defer close(out)

		var streamErr error
		defer func() { scope.Finish(streamErr) }()

		firstAction := true
		for ev := range upstream {
			scope.ObserveFirstResponse()
			b.executor.metrics.AgentEventTotal.WithLabelValues(ev.EventType()).Inc()

			if action, ok := ev.(*ToolAction); ok {
				if _, ok := allowed[action.Tool]; !ok {
					streamErr = fmt.Errorf("agent requested unauthorized tool %q", action.Tool)
					forward(ctx, out, &ErrorEvent{
						Message:   fmt.Sprintf("tool not available: %s", action.Tool),
						Retryable: false,
					})
					return
				}
				if firstAction {
					firstAction = false
					b.executor.metrics.AgentToolUsageTotal.
						WithLabelValues(string(byName[action.Tool].UnitPrimitive)).Inc()
				}
			}
			if errEv, ok := ev.(*ErrorEvent); ok {
				streamErr = errors.New(errEv.Message)
			}

			if !forward(ctx, out, ev) {
				streamErr = ctx.Err()
				return
			}
		}
	}()
	return out, nil
}

func forward(ctx context.Context, out chan<- Event, e Event) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
