package agent

import (
	"context"
	"strings"

	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
)

// ReActAgent drives one reason-act turn over a chat model's output stream:
// a streaming parser plus a small amount of emission state.
type ReActAgent struct {
	prompt *prompt.Prompt
}

func NewReActAgent(p *prompt.Prompt) *ReActAgent {
	return &ReActAgent{prompt: p}
}

// Prompt exposes the bound prompt for capability checks and model labels.
func (a *ReActAgent) Prompt() *prompt.Prompt { return a.prompt }

// Stream renders the prompt, consumes the model's chunk stream, and yields
// typed events. A ToolAction is emitted once, at stream end; a FinalAnswer
// streams as deltas; a buffer that never parses becomes one UnknownAction.
// Model errors surface as a single ErrorEvent and end the stream.
func (a *ReActAgent) Stream(ctx context.Context, inputs map[string]any) (<-chan Event, error) {
	upstream, err := a.prompt.Stream(ctx, inputs)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)

		var buf strings.Builder
		var pending *ToolAction
		emittedAnswer := 0

		emit := func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for ev := range upstream {
			if ev.Err != nil {
				apiErr := model.WrapError(ev.Err)
				emit(&ErrorEvent{Message: apiErr.Message, Retryable: apiErr.Retryable()})
				return
			}
			if ctx.Err() != nil {
				return
			}

			buf.WriteString(ev.Chunk.Text)
			switch parsed := Parse(buf.String()).(type) {
			case *ToolAction:
				// Remember the latest parse; emit once the stream settles.
				pending = parsed
			case *FinalAnswer:
				if len(parsed.Text) > emittedAnswer {
					if !emit(&FinalAnswerDelta{Text: parsed.Text[emittedAnswer:]}) {
						return
					}
					emittedAnswer = len(parsed.Text)
				}
			}
		}

		if ctx.Err() != nil {
			return
		}
		switch {
		case pending != nil:
			emit(pending)
		case emittedAnswer == 0:
			emit(&UnknownAction{Text: buf.String()})
		}
	}()
	return events, nil
}
