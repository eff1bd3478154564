package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/httputil"
	"gitlab.com/gitlab-org/ai-gateway/internal/proxy"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
	"gitlab.com/gitlab-org/ai-gateway/internal/xray"
)

type invokePromptRequest struct {
	Inputs        map[string]any       `json:"inputs"`
	ModelMetadata *types.ModelMetadata `json:"model_metadata,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
}

func (s *Server) handleInvokePrompt(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "No authenticated user")
		return
	}

	promptID := chi.URLParam(r, "*")
	if promptID == "" {
		httputil.WriteNotFoundError(w, reqID, "No prompt id given")
		return
	}

	var body invokePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteUnprocessableError(w, reqID, "Invalid request body")
		return
	}

	p, err := s.prompts.Get(r.Context(), promptID, body.ModelMetadata)
	if err != nil {
		s.writePromptError(w, reqID, err)
		return
	}
	for _, required := range p.UnitPrimitives {
		if !user.Can(required) {
			httputil.WriteForbiddenError(w, reqID, "Unauthorized to access "+string(required))
			return
		}
	}

	client := p.Model()
	scope, err := s.watcher.Watch(r.Context(), client.Engine(), client.Name(), body.Stream)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Request cancelled while waiting for model capacity")
		return
	}

	if body.Stream {
		stream, err := p.Stream(r.Context(), body.Inputs)
		if err != nil {
			scope.Finish(err)
			s.writePromptError(w, reqID, err)
			return
		}
		s.streamText(w, r, scope, stream)
		return
	}

	text, err := p.Invoke(r.Context(), body.Inputs)
	scope.Finish(err)
	if err != nil {
		s.writePromptError(w, reqID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"response": text})
}

type userAccessTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *Server) handleUserAccessToken(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "No authenticated user")
		return
	}

	var globalUserID, realm string
	if ec, ok := telemetry.EventFromContext(r.Context()); ok {
		globalUserID, realm = ec.GlobalUserID, ec.Realm
	}
	if globalUserID == "" {
		httputil.WriteMissingHeaderError(w, reqID, "X-Gitlab-Global-User-Id header is missing")
		return
	}
	if realm == "" {
		httputil.WriteMissingHeaderError(w, reqID, "X-Gitlab-Realm header is missing")
		return
	}

	// Gateway-minted tokens must not be exchangeable for fresh ones.
	if !user.Can(auth.UnitPrimitiveCodeSuggestions, auth.SelfIssuer) {
		httputil.WriteForbiddenError(w, reqID, "Unauthorized to create user access token")
		return
	}

	token, expiresAt, err := s.authority.Encode(globalUserID, realm,
		[]auth.UnitPrimitive{auth.UnitPrimitiveCodeSuggestions})
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Token generation failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userAccessTokenResponse{Token: token, ExpiresAt: expiresAt.Unix()})
}

func (s *Server) handleXRayLibraries(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "No authenticated user")
		return
	}
	if !user.Can(auth.UnitPrimitiveCodeSuggestions) {
		httputil.WriteForbiddenError(w, reqID, "Unauthorized to access X-Ray")
		return
	}

	var req xray.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteUnprocessableError(w, reqID, "Invalid request body")
		return
	}

	resp, err := s.xray.DescribeLibraries(r.Context(), &req)
	if err != nil {
		if errors.Is(err, xray.ErrBadComponent) {
			httputil.WriteUnprocessableError(w, reqID, err.Error())
			return
		}
		s.writePromptError(w, reqID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type searchDocsRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchDocsResponse struct {
	Results []searchDocResult `json:"results"`
}

type searchDocResult struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Metadata docMeta `json:"metadata"`
}

type docMeta struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

func (s *Server) handleSearchDocs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "No authenticated user")
		return
	}
	if !user.Can(auth.UnitPrimitiveDocumentationSearch) {
		httputil.WriteForbiddenError(w, reqID, "Unauthorized to search documentation")
		return
	}
	if s.docs == nil {
		httputil.WriteNotFoundError(w, reqID, "Documentation search is not available")
		return
	}

	var req searchDocsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		httputil.WriteUnprocessableError(w, reqID, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	results, err := s.docs.Search(ctx, req.Query, req.Limit)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Documentation search failed")
		return
	}

	resp := searchDocsResponse{Results: []searchDocResult{}}
	for _, res := range results {
		resp.Results = append(resp.Results, searchDocResult{
			ID:       res.URL,
			Content:  res.Content,
			Metadata: docMeta{Title: res.Title, URL: res.URL, Score: res.Score},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleProxyAnthropic(w http.ResponseWriter, r *http.Request) {
	s.forwardProxy(w, r, s.anthropicRW, "")
}

func (s *Server) handleProxyVertex(w http.ResponseWriter, r *http.Request) {
	s.forwardProxy(w, r, s.vertexRW, chi.URLParam(r, "*"))
}

func (s *Server) forwardProxy(w http.ResponseWriter, r *http.Request, rw proxy.Rewriter, path string) {
	reqID := RequestIDFromContext(r.Context())
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "No authenticated user")
		return
	}

	primitiveHeader := r.Header.Get("X-Gitlab-Unit-Primitive")
	if primitiveHeader == "" {
		httputil.WriteMissingHeaderError(w, reqID, "X-Gitlab-Unit-Primitive header is missing")
		return
	}
	primitive, known := auth.ParseUnitPrimitive(primitiveHeader)
	if !known || !user.Can(primitive) {
		httputil.WriteForbiddenError(w, reqID, "Unauthorized to access "+primitiveHeader)
		return
	}

	if err := s.proxyClient.Forward(w, r, rw, path); err != nil {
		var pathErr *proxy.ErrPathNotAllowed
		if errors.As(err, &pathErr) {
			httputil.WriteBadRequestError(w, reqID, pathErr.Error())
			return
		}
		writeModelError(w, reqID, err)
	}
}
