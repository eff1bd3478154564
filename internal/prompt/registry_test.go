package prompt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/config"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

type nullClient struct{ name string }

func (c *nullClient) Engine() string { return "null" }
func (c *nullClient) Name() string   { return c.name }

func (c *nullClient) Generate(ctx context.Context, prefix, suffix string, opts *model.Options) (*model.Output, error) {
	return &model.Output{}, nil
}

func (c *nullClient) GenerateStream(ctx context.Context, prefix, suffix string, opts *model.Options) (<-chan model.StreamEvent, error) {
	ch := make(chan model.StreamEvent)
	close(ch)
	return ch, nil
}

func (c *nullClient) Chat(ctx context.Context, messages []types.Message, opts *model.Options) (*model.Output, error) {
	return &model.Output{}, nil
}

func (c *nullClient) ChatStream(ctx context.Context, messages []types.Message, opts *model.Options) (<-chan model.StreamEvent, error) {
	ch := make(chan model.StreamEvent)
	close(ch)
	return ch, nil
}

func writeDefinition(t *testing.T, dir, promptID, variant, body string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(promptID))
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, variant+".yml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

const explainDef = `name: Explain code
model:
  name: test-model
  params:
    model_class_provider: "null"
    temperature: 0.2
unit_primitives:
  - explain_code
prompt_template:
  system: "You explain code."
  user: "{{.snippet}}"
params:
  stop:
    - "Human:"
`

func newTestRegistry(t *testing.T, flags *telemetry.FlagSet) *Registry {
	t.Helper()
	if flags == nil {
		flags = telemetry.NewFlagSet()
	}
	dir := t.TempDir()
	writeDefinition(t, dir, "explain_code", "base", explainDef)

	factories := map[string]ModelFactory{
		"null": func(cfg *PromptConfig, meta *types.ModelMetadata) (model.Client, error) {
			return &nullClient{name: cfg.Model.Name}, nil
		},
	}
	r := NewRegistry(factories, flags)
	if err := r.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

func TestGetBaseVariant(t *testing.T) {
	r := newTestRegistry(t, nil)

	p, err := r.Get(context.Background(), "explain_code", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Name != "Explain code" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.ID != "explain_code" {
		t.Errorf("ID = %q", p.ID)
	}
	if p.Class != ClassBase {
		t.Errorf("Class = %q, want %q", p.Class, ClassBase)
	}
	if len(p.UnitPrimitives) != 1 || p.UnitPrimitives[0] != auth.UnitPrimitiveExplainCode {
		t.Errorf("UnitPrimitives = %v", p.UnitPrimitives)
	}
	if p.callOpts.Temperature == nil || *p.callOpts.Temperature != 0.2 {
		t.Errorf("Temperature = %v", p.callOpts.Temperature)
	}
	if len(p.callOpts.StopSequences) != 1 || p.callOpts.StopSequences[0] != "Human:" {
		t.Errorf("StopSequences = %v", p.callOpts.StopSequences)
	}
}

func TestGetNotFound(t *testing.T) {
	r := newTestRegistry(t, nil)

	if _, err := r.Get(context.Background(), "no/such/prompt", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetVariantFallsBackToBase(t *testing.T) {
	r := newTestRegistry(t, nil)

	p, err := r.Get(context.Background(), "explain_code", &types.ModelMetadata{Name: "mistral-7b"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.ID != "explain_code" {
		t.Errorf("ID = %q", p.ID)
	}
}

const anthropicDef = `name: Code generation
model:
  name: claude-3-5-sonnet-20240620
  params:
    model_class_provider: anthropic
unit_primitives:
  - generate_code
prompt_template:
  user: "{{.prefix}}"
`

func TestGetBindsRequestedModelName(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "code/generations", "base", anthropicDef)

	r := NewRegistry(DefaultFactories(config.DefaultConfig().Models), telemetry.NewFlagSet())
	if err := r.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// A named model with no matching variant is served from the base
	// definition, but the client must still target the requested model.
	p, err := r.Get(context.Background(), "code/generations", &types.ModelMetadata{Name: "claude-3-opus"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := p.Model().Name(); got != "claude-3-opus" {
		t.Errorf("model name = %q, want %q", got, "claude-3-opus")
	}

	// Without metadata the definition default applies.
	p, err = r.Get(context.Background(), "code/generations", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := p.Model().Name(); got != "claude-3-5-sonnet-20240620" {
		t.Errorf("model name = %q, want definition default", got)
	}
}

func TestGetCustomEndpointRequiresFlag(t *testing.T) {
	meta := &types.ModelMetadata{
		Name:     "mistral-7b",
		Provider: "litellm",
		Endpoint: "https://models.example.com/v1",
	}

	r := newTestRegistry(t, telemetry.NewFlagSet())
	if _, err := r.Get(context.Background(), "explain_code", meta); !errors.Is(err, ErrPolicyDenied) {
		t.Errorf("err = %v, want ErrPolicyDenied", err)
	}

	r = newTestRegistry(t, telemetry.NewFlagSet(FlagCustomModels))
	if _, err := r.Get(context.Background(), "explain_code", meta); err != nil {
		t.Errorf("Get with flag enabled: %v", err)
	}
}

func TestGetNamedModelWithoutEndpointPassesGate(t *testing.T) {
	r := newTestRegistry(t, telemetry.NewFlagSet())

	// Only caller-supplied endpoints are gated; a bare model name is not.
	if _, err := r.Get(context.Background(), "explain_code", &types.ModelMetadata{Name: "mistral-7b"}); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestSetClass(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.SetClass("explain_code", ClassReActAgent)

	p, err := r.Get(context.Background(), "explain_code", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Class != ClassReActAgent {
		t.Errorf("Class = %q", p.Class)
	}
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "bad", "base", `name: Bad
model:
  name: m
  params:
    model_class_provider: "null"
prompt_template:
  narrator: "once upon a time"
`)
	r := NewRegistry(nil, telemetry.NewFlagSet())
	if err := r.Load(dir); err == nil {
		t.Error("Load should reject unknown template roles")
	}
}

func TestMessagesOrder(t *testing.T) {
	dir := t.TempDir()
	// Assistant listed first in the file; rendering order is fixed anyway.
	writeDefinition(t, dir, "ordered", "base", `name: Ordered
model:
  name: m
  params:
    model_class_provider: "null"
prompt_template:
  assistant: "A"
  user: "U {{.q}}"
  system: "S"
`)
	factories := map[string]ModelFactory{
		"null": func(cfg *PromptConfig, meta *types.ModelMetadata) (model.Client, error) {
			return &nullClient{}, nil
		},
	}
	r := NewRegistry(factories, telemetry.NewFlagSet())
	if err := r.Load(dir); err != nil {
		t.Fatal(err)
	}

	p, err := r.Get(context.Background(), "ordered", nil)
	if err != nil {
		t.Fatal(err)
	}
	messages, err := p.Messages(map[string]any{"q": "hi"})
	if err != nil {
		t.Fatal(err)
	}

	wantRoles := []types.Role{types.RoleSystem, types.RoleUser, types.RoleAssistant}
	if len(messages) != len(wantRoles) {
		t.Fatalf("got %d messages", len(messages))
	}
	for i, role := range wantRoles {
		if messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, messages[i].Role, role)
		}
	}
	if messages[1].Content != "U hi" {
		t.Errorf("user content = %q", messages[1].Content)
	}
}
