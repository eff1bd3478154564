package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/config"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// FlagCustomModels gates caller-supplied model endpoints.
const FlagCustomModels = "custom_models_enabled"

var (
	// ErrNotFound means no definition exists for (prompt_id, variant).
	ErrNotFound = errors.New("prompt not found")
	// ErrPolicyDenied means a customer endpoint was supplied while the
	// custom-models flag is off.
	ErrPolicyDenied = errors.New("customer model endpoints are disabled")
)

// ModelFactory builds a client for a loaded definition. meta is non-nil only
// for customer-supplied models; factories must then bind the late values
// (model name, api_base, api_key, provider).
type ModelFactory func(cfg *PromptConfig, meta *types.ModelMetadata) (model.Client, error)

// definition is one parsed YAML file plus its precompiled templates.
type definition struct {
	cfg       *PromptConfig
	templates map[types.Role]*template.Template
}

// Registry loads prompt definitions from a directory tree and resolves
// (prompt_id, model_metadata) to bound prompts.
type Registry struct {
	factories map[string]ModelFactory
	classes   map[string]Class
	flags     *telemetry.FlagSet

	mu   sync.RWMutex
	defs map[string]*definition
}

func NewRegistry(factories map[string]ModelFactory, flags *telemetry.FlagSet) *Registry {
	return &Registry{
		factories: factories,
		classes:   make(map[string]Class),
		flags:     flags,
		defs:      make(map[string]*definition),
	}
}

// SetClass registers a class override for a prompt id; Get stamps it on the
// returned prompt so callers can wrap agent prompts appropriately.
func (r *Registry) SetClass(promptID string, class Class) {
	r.classes[promptID] = class
}

// Load walks dir and parses every <prompt_id>/<variant>.yml into a
// definition keyed by "<prompt_id>/<variant>". Malformed files fail the load.
func (r *Registry) Load(dir string) error {
	defs := make(map[string]*definition)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || (!strings.HasSuffix(path, ".yml") && !strings.HasSuffix(path, ".yaml")) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		variant := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(rel), ".yml"), ".yaml")
		promptID := filepath.ToSlash(filepath.Dir(rel))
		key := promptID + "/" + variant

		cfg := &PromptConfig{}
		if err := config.LoadFile(path, cfg); err != nil {
			return fmt.Errorf("load prompt definition %s: %w", key, err)
		}

		templates, err := compileTemplates(key, cfg.PromptTemplate)
		if err != nil {
			return err
		}

		defs[key] = &definition{cfg: cfg, templates: templates}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk definitions dir %s: %w", dir, err)
	}

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()

	slog.Info("prompt definitions loaded", "dir", dir, "count", len(defs))
	return nil
}

// Watch reloads the definitions tree when it changes. Reload failures keep
// the previous definitions.
func (r *Registry) Watch(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch definitions dir %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
					if err := r.Load(dir); err != nil {
						slog.Error("prompt definitions reload failed", "error", err)
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func compileTemplates(key string, raw map[string]string) (map[types.Role]*template.Template, error) {
	templates := make(map[types.Role]*template.Template, len(raw))
	for role, text := range raw {
		switch types.Role(role) {
		case types.RoleSystem, types.RoleUser, types.RoleAssistant:
		default:
			return nil, fmt.Errorf("prompt %s: unknown template role %q", key, role)
		}
		tmpl, err := template.New(key + "/" + role).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: parse %s template: %w", key, role, err)
		}
		templates[types.Role(role)] = tmpl
	}
	return templates, nil
}

// Get resolves a prompt id plus optional customer model metadata into a
// bound Prompt. The variant is the metadata model name when present, else
// "base".
func (r *Registry) Get(ctx context.Context, promptID string, meta *types.ModelMetadata) (*Prompt, error) {
	if meta != nil && meta.Endpoint != "" && !r.flags.IsEnabled(ctx, FlagCustomModels) {
		return nil, ErrPolicyDenied
	}

	variant := "base"
	if meta != nil && meta.Name != "" {
		variant = meta.Name
	}

	r.mu.RLock()
	def, ok := r.defs[promptID+"/"+variant]
	if !ok && variant != "base" {
		// Customer models fall back to the base variant definition.
		def, ok = r.defs[promptID+"/base"]
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, promptID)
	}

	factory, ok := r.factories[def.cfg.Model.Params.ModelClassProvider]
	if !ok {
		return nil, fmt.Errorf("%w: no model class provider %q for %s",
			ErrNotFound, def.cfg.Model.Params.ModelClassProvider, promptID)
	}
	client, err := factory(def.cfg, meta)
	if err != nil {
		return nil, fmt.Errorf("build model client for %s: %w", promptID, err)
	}

	var primitives []auth.UnitPrimitive
	for _, s := range def.cfg.UnitPrimitives {
		if p, ok := auth.ParseUnitPrimitive(s); ok {
			primitives = append(primitives, p)
		}
	}

	callOpts := &model.Options{
		MaxOutputTokens: def.cfg.Model.Params.MaxTokens,
		Temperature:     def.cfg.Model.Params.Temperature,
		TopP:            def.cfg.Model.Params.TopP,
		TopK:            def.cfg.Model.Params.TopK,
	}
	if def.cfg.Params != nil {
		callOpts.StopSequences = def.cfg.Params.Stop
		if def.cfg.Params.Timeout > 0 {
			timeout := def.cfg.Params.Timeout
			callOpts.Timeout = &timeout
		}
	}

	class := ClassBase
	if c, ok := r.classes[promptID]; ok {
		class = c
	}

	return &Prompt{
		Name:           def.cfg.Name,
		ID:             promptID,
		Class:          class,
		UnitPrimitives: primitives,
		client:         client,
		templates:      def.templates,
		callOpts:       callOpts,
	}, nil
}

// requestedModel picks the model a provider client is bound to. When the
// caller names a model and no variant definition exists for it, Get serves
// the base definition but the named model still wins over the definition
// default.
func requestedModel(pc *PromptConfig, meta *types.ModelMetadata) string {
	if meta != nil && meta.Name != "" {
		return meta.Name
	}
	return pc.Model.Name
}

// DefaultFactories wires the provider clients the gateway ships with.
func DefaultFactories(cfg config.ModelsConfig) map[string]ModelFactory {
	customClient := func(defName string, meta *types.ModelMetadata) model.Client {
		name := meta.Name
		if name == "" {
			name = defName
		}
		return model.NewOpenAICompatClient(meta.Endpoint, meta.APIKey, meta.Provider, name, 0)
	}

	return map[string]ModelFactory{
		"anthropic": func(pc *PromptConfig, meta *types.ModelMetadata) (model.Client, error) {
			if meta != nil && meta.Endpoint != "" {
				return customClient(pc.Model.Name, meta), nil
			}
			return model.NewAnthropicClient(cfg.Anthropic, requestedModel(pc, meta)), nil
		},
		"vertex-ai": func(pc *PromptConfig, meta *types.ModelMetadata) (model.Client, error) {
			if meta != nil && meta.Endpoint != "" {
				return customClient(pc.Model.Name, meta), nil
			}
			vcfg := cfg.Vertex
			if pc.Params != nil && pc.Params.VertexLocation != "" {
				vcfg.Location = pc.Params.VertexLocation
			}
			return model.NewVertexClient(vcfg, requestedModel(pc, meta)), nil
		},
		"litellm": func(pc *PromptConfig, meta *types.ModelMetadata) (model.Client, error) {
			if meta == nil || meta.Endpoint == "" {
				return nil, errors.New("litellm prompts require customer model metadata")
			}
			return customClient(pc.Model.Name, meta), nil
		},
	}
}
