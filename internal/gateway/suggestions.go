package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/httputil"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/postprocess"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// GenerationsPromptID locates the code-generation definition.
const GenerationsPromptID = "code/generations"

const defaultCompletionModel = "code-gecko@002"

func (s *Server) handleCodeCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	req, ok := s.decodeSuggestionRequest(w, r, auth.UnitPrimitiveCompleteCode)
	if !ok {
		return
	}

	assembled := s.assembler.Assemble(req.CurrentFile)
	client := s.completionClient(req.ModelProvider, req.ModelName)
	lang := strings.ToLower(req.CurrentFile.LanguageIdentifier)

	scope, err := s.watcher.Watch(r.Context(), client.Engine(), client.Name(), req.Stream)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Request cancelled while waiting for model capacity")
		return
	}

	if req.Stream {
		stream, err := client.GenerateStream(r.Context(), assembled.Prefix, assembled.Suffix, nil)
		if err != nil {
			scope.Finish(err)
			writeModelError(w, reqID, err)
			return
		}
		s.streamText(w, r, scope, stream)
		return
	}

	output, err := client.Generate(r.Context(), assembled.Prefix, assembled.Suffix, nil)
	scope.Finish(err)
	if err != nil {
		writeModelError(w, reqID, err)
		return
	}

	text := s.pipeline.Apply(output.Text, postprocess.Context{
		Lang:   lang,
		Prefix: req.CurrentFile.ContentAboveCursor,
		Suffix: req.CurrentFile.ContentBelowCursor,
	})
	writeSuggestionResponse(w, client, lang, text)
}

func (s *Server) handleCodeGenerations(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	req, ok := s.decodeSuggestionRequest(w, r, auth.UnitPrimitiveGenerateCode)
	if !ok {
		return
	}

	var meta *types.ModelMetadata
	if req.ModelName != "" {
		meta = &types.ModelMetadata{Name: req.ModelName, Provider: req.ModelProvider}
	}

	p, err := s.prompts.Get(r.Context(), GenerationsPromptID, meta)
	if err != nil {
		s.writePromptError(w, reqID, err)
		return
	}

	inputs := map[string]any{
		"prefix":           req.CurrentFile.ContentAboveCursor,
		"suffix":           req.CurrentFile.ContentBelowCursor,
		"file_name":        req.CurrentFile.FileName,
		"language":         req.CurrentFile.LanguageIdentifier,
		"user_instruction": req.UserInstruction,
	}
	// prompt_version 2 carries a client-built prompt that wins over the
	// server-side template inputs.
	if req.PromptVersion == 2 && req.Prompt != "" {
		inputs["prefix"] = req.Prompt
	}

	client := p.Model()
	lang := strings.ToLower(req.CurrentFile.LanguageIdentifier)

	scope, err := s.watcher.Watch(r.Context(), client.Engine(), client.Name(), req.Stream)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Request cancelled while waiting for model capacity")
		return
	}

	if req.Stream {
		stream, err := p.Stream(r.Context(), inputs)
		if err != nil {
			scope.Finish(err)
			s.writePromptError(w, reqID, err)
			return
		}
		s.streamText(w, r, scope, stream)
		return
	}

	text, err := p.Invoke(r.Context(), inputs)
	scope.Finish(err)
	if err != nil {
		s.writePromptError(w, reqID, err)
		return
	}

	text = s.pipeline.Apply(text, postprocess.Context{
		Lang:   lang,
		Prefix: req.CurrentFile.ContentAboveCursor,
		Suffix: req.CurrentFile.ContentBelowCursor,
	})
	writeSuggestionResponse(w, client, lang, text)
}

// decodeSuggestionRequest authenticates, decodes, and size-caps a suggestion
// request body.
func (s *Server) decodeSuggestionRequest(w http.ResponseWriter, r *http.Request, required auth.UnitPrimitive) (*types.CodeSuggestionRequest, bool) {
	reqID := RequestIDFromContext(r.Context())
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "No authenticated user")
		return nil, false
	}
	if !user.Can(required) && !user.Can(auth.UnitPrimitiveCodeSuggestions) {
		httputil.WriteForbiddenError(w, reqID, "Unauthorized to access code suggestions")
		return nil, false
	}

	var req types.CodeSuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteUnprocessableError(w, reqID, "Invalid request body")
		return nil, false
	}
	if req.CurrentFile.FileName == "" && req.CurrentFile.ContentAboveCursor == "" {
		httputil.WriteUnprocessableError(w, reqID, "current_file is required")
		return nil, false
	}

	// CPU-bound assembly work runs inline; cap the inputs at the edge.
	if max := s.cfg.Server.MaxFileSection; max > 0 {
		if len(req.CurrentFile.ContentAboveCursor) > max {
			req.CurrentFile.ContentAboveCursor = req.CurrentFile.ContentAboveCursor[len(req.CurrentFile.ContentAboveCursor)-max:]
		}
		if len(req.CurrentFile.ContentBelowCursor) > max {
			req.CurrentFile.ContentBelowCursor = req.CurrentFile.ContentBelowCursor[:max]
		}
	}
	return &req, true
}

// completionClient picks the fill-in-the-middle model for a completion call.
func (s *Server) completionClient(provider, name string) model.Client {
	switch provider {
	case "anthropic":
		if name == "" {
			name = "claude-3-5-sonnet-20240620"
		}
		return model.NewAnthropicClient(s.cfg.Models.Anthropic, name)
	default:
		if name == "" {
			name = defaultCompletionModel
		}
		return model.NewVertexClient(s.cfg.Models.Vertex, name)
	}
}

// streamText relays raw text chunks as an event stream. The watch scope is
// finished when the model stream ends or the client goes away.
func (s *Server) streamText(w http.ResponseWriter, r *http.Request, scope *model.Scope, stream <-chan model.StreamEvent) {
	reqID := RequestIDFromContext(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		scope.Finish(nil)
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var streamErr error
	defer func() { scope.Finish(streamErr) }()

	for ev := range stream {
		if ev.Err != nil {
			// Headers are committed; the error can only end the stream.
			streamErr = ev.Err
			return
		}
		scope.ObserveFirstResponse()
		if _, err := w.Write([]byte(ev.Chunk.Text)); err != nil {
			streamErr = r.Context().Err()
			return
		}
		flusher.Flush()
	}
}

func writeSuggestionResponse(w http.ResponseWriter, client model.Client, lang, text string) {
	finish := "length"
	if text == "" {
		finish = "stop"
	}
	resp := types.CodeSuggestionResponse{
		ID:    "id-" + uuid.NewString(),
		Model: types.SuggestionModel{Engine: client.Engine(), Name: client.Name(), Lang: lang},
		Choices: []types.SuggestionChoice{
			{Text: text, Index: 0, FinishReason: finish},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
