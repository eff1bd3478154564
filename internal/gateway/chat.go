package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"gitlab.com/gitlab-org/ai-gateway/internal/agent"
	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/httputil"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

type chatAgentRequest struct {
	Prompt        string               `json:"prompt"`
	Options       chatAgentOptions     `json:"options"`
	ModelMetadata *types.ModelMetadata `json:"model_metadata,omitempty"`
}

type chatAgentOptions struct {
	ChatHistory       []types.Message           `json:"chat_history,omitempty"`
	Context           *types.ChatContext        `json:"context,omitempty"`
	CurrentFile       *types.CurrentFile        `json:"current_file,omitempty"`
	AgentScratchpad   agentScratchpad           `json:"agent_scratchpad"`
	AdditionalContext []types.AdditionalContext `json:"additional_context,omitempty"`
}

type agentScratchpad struct {
	Steps []agent.Step `json:"steps,omitempty"`
}

func (s *Server) handleChatAgent(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "No authenticated user")
		return
	}

	var body chatAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteUnprocessableError(w, reqID, "Invalid request body")
		return
	}
	if body.Prompt == "" {
		httputil.WriteUnprocessableError(w, reqID, "prompt is required")
		return
	}

	glVersion := ""
	if ec, ok := telemetry.EventFromContext(r.Context()); ok {
		glVersion = ec.InstanceVersion
	}

	bound, err := s.executor.OnBehalf(user, glVersion)
	if err != nil {
		httputil.WriteForbiddenError(w, reqID, "Unauthorized to access duo chat")
		return
	}

	events, err := bound.Stream(r.Context(), &agent.Request{
		Question:          body.Prompt,
		ChatHistory:       body.Options.ChatHistory,
		Context:           body.Options.Context,
		CurrentFile:       body.Options.CurrentFile,
		AdditionalContext: body.Options.AdditionalContext,
		Scratchpad:        body.Options.AgentScratchpad.Steps,
		ModelMetadata:     body.ModelMetadata,
	})
	if err != nil {
		s.writePromptError(w, reqID, err)
		return
	}

	es, ok := newEventStream(w, reqID)
	if !ok {
		return
	}
	for ev := range events {
		if !es.send(ev) {
			return
		}
	}
	// A request that produced no events still commits the stream headers.
	es.start()
}

// writePromptError maps registry, authorization, and model failures onto the
// error table.
func (s *Server) writePromptError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, prompt.ErrNotFound):
		httputil.WriteNotFoundError(w, reqID, err.Error())
	case errors.Is(err, prompt.ErrPolicyDenied):
		httputil.WritePolicyDeniedError(w, reqID, "Customer model endpoints require the custom_models_enabled flag")
	case errors.Is(err, agent.ErrUnauthorized):
		httputil.WriteForbiddenError(w, reqID, "Missing required unit primitive")
	default:
		writeModelError(w, reqID, err)
	}
}
