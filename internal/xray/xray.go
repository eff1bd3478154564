package xray

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// PromptID locates the dependency-description definition.
const PromptID = "x_ray/libraries"

// ComponentType is the only payload kind the endpoint understands.
const ComponentType = "x_ray_package_file_prompt"

// ErrBadComponent rejects requests without exactly one known component.
var ErrBadComponent = errors.New(
	"x-ray: request needs exactly one prompt component of type " + ComponentType)

type ComponentPayload struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type PromptComponent struct {
	Type     string            `json:"type"`
	Payload  ComponentPayload  `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Request struct {
	PromptComponents []PromptComponent `json:"prompt_components"`
}

type Response struct {
	Response string `json:"response"`
}

// Service turns a package file into a natural-language library inventory by
// running the caller-supplied prompt through the registry model.
type Service struct {
	prompts *prompt.Registry
	watcher *model.Watcher
}

func NewService(prompts *prompt.Registry, watcher *model.Watcher) *Service {
	return &Service{prompts: prompts, watcher: watcher}
}

func (s *Service) DescribeLibraries(ctx context.Context, req *Request) (*Response, error) {
	if len(req.PromptComponents) != 1 || req.PromptComponents[0].Type != ComponentType {
		return nil, ErrBadComponent
	}
	payload := req.PromptComponents[0].Payload
	if payload.Prompt == "" {
		return nil, ErrBadComponent
	}

	var meta *types.ModelMetadata
	if payload.Model != "" {
		meta = &types.ModelMetadata{Name: payload.Model, Provider: payload.Provider}
	}

	p, err := s.prompts.Get(ctx, PromptID, meta)
	if err != nil {
		return nil, err
	}

	scope, err := s.watcher.Watch(ctx, p.Model().Engine(), p.Model().Name(), false)
	if err != nil {
		return nil, err
	}
	text, err := p.Invoke(ctx, map[string]any{"prompt": payload.Prompt})
	scope.Finish(err)
	if err != nil {
		return nil, fmt.Errorf("x-ray: %w", err)
	}
	return &Response{Response: text}, nil
}
