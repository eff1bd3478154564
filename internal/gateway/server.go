package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gitlab.com/gitlab-org/ai-gateway/internal/agent"
	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/config"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/postprocess"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
	"gitlab.com/gitlab-org/ai-gateway/internal/proxy"
	"gitlab.com/gitlab-org/ai-gateway/internal/search"
	"gitlab.com/gitlab-org/ai-gateway/internal/suggestions"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/xray"
)

// Server wires the HTTP surface to the gateway internals.
type Server struct {
	cfg           *config.Config
	metrics       *telemetry.Metrics
	flags         *telemetry.FlagSet
	authenticator *auth.Authenticator
	authority     *auth.TokenAuthority
	prompts       *prompt.Registry
	executor      *agent.Executor
	watcher       *model.Watcher
	assembler     *suggestions.Assembler
	pipeline      *postprocess.Pipeline
	proxyClient   *proxy.Client
	anthropicRW   *proxy.AnthropicRewriter
	vertexRW      *proxy.VertexRewriter
	xray          *xray.Service
	docs          *search.Index
}

// Deps carries everything main assembles for the server.
type Deps struct {
	Config        *config.Config
	Metrics       *telemetry.Metrics
	Flags         *telemetry.FlagSet
	Authenticator *auth.Authenticator
	Authority     *auth.TokenAuthority
	Prompts       *prompt.Registry
	Executor      *agent.Executor
	Watcher       *model.Watcher
	Assembler     *suggestions.Assembler
	Pipeline      *postprocess.Pipeline
	ProxyClient   *proxy.Client
	XRay          *xray.Service
	Docs          *search.Index
}

func NewServer(deps Deps) *Server {
	return &Server{
		cfg:           deps.Config,
		metrics:       deps.Metrics,
		flags:         deps.Flags,
		authenticator: deps.Authenticator,
		authority:     deps.Authority,
		prompts:       deps.Prompts,
		executor:      deps.Executor,
		watcher:       deps.Watcher,
		assembler:     deps.Assembler,
		pipeline:      deps.Pipeline,
		proxyClient:   deps.ProxyClient,
		anthropicRW:   proxy.NewAnthropicRewriter(deps.Config.Models.Anthropic),
		vertexRW:      proxy.NewVertexRewriter(deps.Config.Models.Vertex),
		xray:          deps.XRay,
		docs:          deps.Docs,
	}
}

// Router assembles the full HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(s.recordMetrics)

	r.Get("/monitoring/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(telemetry.EventContextMiddleware(s.cfg.Telemetry.Environment, s.flags))
		r.Use(auth.Middleware(s.authenticator, s.cfg.Auth.Bypass))

		r.Post("/v1/chat/agent", s.handleChatAgent)
		r.Post("/v2/code/completions", s.handleCodeCompletions)
		r.Post("/v2/code/generations", s.handleCodeGenerations)
		r.Post("/v1/prompts/*", s.handleInvokePrompt)
		r.Post("/v1/x-ray/libraries", s.handleXRayLibraries)
		r.Post("/v1/search/gitlab-docs", s.handleSearchDocs)
		r.Post("/v1/code/user_access_token", s.handleUserAccessToken)
		r.Post("/v1/proxy/anthropic", s.handleProxyAnthropic)
		r.Post("/v1/proxy/vertex-ai/*", s.handleProxyVertex)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
