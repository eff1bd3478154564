package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/gitlab-org/ai-gateway/internal/agent"
	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/config"
	"gitlab.com/gitlab-org/ai-gateway/internal/gateway"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/postprocess"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
	"gitlab.com/gitlab-org/ai-gateway/internal/proxy"
	"gitlab.com/gitlab-org/ai-gateway/internal/search"
	"gitlab.com/gitlab-org/ai-gateway/internal/suggestions"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/xray"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	cfg := loader.Config()

	if lvl := parseLogLevel(cfg.Telemetry.LogLevel); lvl != slog.LevelInfo {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	flagSet := telemetry.NewFlagSet(cfg.Flags.Enabled...)
	if cfg.Prompts.CustomModelsEnabled {
		flagSet.Set(prompt.FlagCustomModels, true)
	}
	loader.OnReload(func() {
		for _, f := range loader.Config().Flags.Enabled {
			flagSet.Set(f, true)
		}
	})

	// Auth: composite JWKS over the configured issuers, optional x5c roots,
	// and the gateway's own signing key for derived tokens.
	var authority *auth.TokenAuthority
	providers := make([]auth.KeyProvider, 0, len(cfg.Auth.JWKSEndpoints)+1)
	for _, ep := range cfg.Auth.JWKSEndpoints {
		providers = append(providers, auth.NewRemoteProvider(ep.Name, ep.URL, nil))
	}
	if cfg.Auth.SigningKeyFile != "" {
		key, err := auth.LoadSigningKey(cfg.Auth.SigningKeyFile)
		if err != nil {
			logger.Error("failed to load signing key", "error", err)
			os.Exit(1)
		}
		authority = auth.NewTokenAuthority(key, cfg.Auth.SigningKeyID)
		providers = append(providers, auth.NewLocalProvider("self", authority.Key()))
	}

	var certVerifier *auth.CertChainVerifier
	if cfg.Auth.RootCertsFile != "" {
		pool, err := auth.LoadCertPool(cfg.Auth.RootCertsFile)
		if err != nil {
			logger.Error("failed to load root certificates", "error", err)
			os.Exit(1)
		}
		certVerifier = auth.NewCertChainVerifier(pool)
	}

	keys := auth.NewCompositeProvider(cfg.Auth.JWKSCacheTTL, providers...)
	authenticator := auth.NewAuthenticator(keys, certVerifier)

	// Prompt registry over the definitions tree.
	prompts := prompt.NewRegistry(prompt.DefaultFactories(cfg.Models), flagSet)
	prompts.SetClass(agent.ChatPromptID, prompt.ClassReActAgent)
	if err := prompts.Load(cfg.Prompts.DefinitionsDir); err != nil {
		logger.Error("failed to load prompt definitions", "error", err)
		os.Exit(1)
	}
	if err := prompts.Watch(cfg.Prompts.DefinitionsDir); err != nil {
		logger.Warn("failed to watch prompt definitions", "error", err)
	}

	watcher := model.NewWatcher(metrics, cfg.Models.ConcurrencyLimits)
	executor := agent.NewExecutor(prompts, agent.DefaultToolRegistry(), watcher, metrics)
	assembler := suggestions.NewAssembler(suggestions.NewTokenizer(), cfg.Models.MaxModelLen, metrics)
	pipeline := postprocess.NewPipeline(metrics)
	proxyClient := proxy.NewClient(cfg.Models.Anthropic.Timeout, proxy.NewAbuseDetector())
	xrayService := xray.NewService(prompts, watcher)

	var docs *search.Index
	if cfg.Search.Enabled {
		idx, err := search.Open(cfg.Search.IndexPath)
		if err != nil {
			logger.Warn("documentation index unavailable", "path", cfg.Search.IndexPath, "error", err)
		} else {
			docs = idx
			defer docs.Close()
		}
	}

	server := gateway.NewServer(gateway.Deps{
		Config:        cfg,
		Metrics:       metrics,
		Flags:         flagSet,
		Authenticator: authenticator,
		Authority:     authority,
		Prompts:       prompts,
		Executor:      executor,
		Watcher:       watcher,
		Assembler:     assembler,
		Pipeline:      pipeline,
		ProxyClient:   proxyClient,
		XRay:          xrayService,
		Docs:          docs,
	})

	router := server.Router()
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ai gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ai gateway stopped")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
