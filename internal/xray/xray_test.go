package xray

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

type fakeClient struct {
	gotMessages []types.Message
	reply       string
}

func (f *fakeClient) Engine() string { return "fake" }
func (f *fakeClient) Name() string   { return "fake-model" }

func (f *fakeClient) Generate(ctx context.Context, prefix, suffix string, opts *model.Options) (*model.Output, error) {
	return &model.Output{Text: f.reply}, nil
}

func (f *fakeClient) GenerateStream(ctx context.Context, prefix, suffix string, opts *model.Options) (<-chan model.StreamEvent, error) {
	ch := make(chan model.StreamEvent)
	close(ch)
	return ch, nil
}

func (f *fakeClient) Chat(ctx context.Context, messages []types.Message, opts *model.Options) (*model.Output, error) {
	f.gotMessages = messages
	return &model.Output{Text: f.reply}, nil
}

func (f *fakeClient) ChatStream(ctx context.Context, messages []types.Message, opts *model.Options) (<-chan model.StreamEvent, error) {
	ch := make(chan model.StreamEvent)
	close(ch)
	return ch, nil
}

func newTestService(t *testing.T, client model.Client) *Service {
	t.Helper()

	dir := t.TempDir()
	defPath := filepath.Join(dir, "x_ray", "libraries")
	if err := os.MkdirAll(defPath, 0o755); err != nil {
		t.Fatal(err)
	}
	def := `name: X-Ray libraries
model:
  name: fake-model
  params:
    model_class_provider: fake
unit_primitives:
  - code_suggestions
prompt_template:
  system: "Describe the libraries in this dependency file."
  user: "{{.prompt}}"
`
	if err := os.WriteFile(filepath.Join(defPath, "base.yml"), []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}

	factories := map[string]prompt.ModelFactory{
		"fake": func(cfg *prompt.PromptConfig, meta *types.ModelMetadata) (model.Client, error) {
			return client, nil
		},
	}
	registry := prompt.NewRegistry(factories, telemetry.NewFlagSet())
	if err := registry.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	watcher := model.NewWatcher(metrics, nil)
	return NewService(registry, watcher)
}

func TestDescribeLibraries(t *testing.T) {
	client := &fakeClient{reply: "This project uses requests and flask."}
	svc := newTestService(t, client)

	resp, err := svc.DescribeLibraries(context.Background(), &Request{
		PromptComponents: []PromptComponent{{
			Type:    ComponentType,
			Payload: ComponentPayload{Prompt: "requirements.txt:\nrequests==2.31\nflask==3.0"},
		}},
	})
	if err != nil {
		t.Fatalf("DescribeLibraries: %v", err)
	}
	if resp.Response != client.reply {
		t.Errorf("Response = %q, want %q", resp.Response, client.reply)
	}

	var userMsg string
	for _, m := range client.gotMessages {
		if m.Role == types.RoleUser {
			userMsg = m.Content
		}
	}
	if userMsg == "" || userMsg != "requirements.txt:\nrequests==2.31\nflask==3.0" {
		t.Errorf("user message = %q", userMsg)
	}
}

func TestDescribeLibrariesBadComponent(t *testing.T) {
	svc := newTestService(t, &fakeClient{})

	tests := []struct {
		name string
		req  *Request
	}{
		{"empty", &Request{}},
		{"wrong type", &Request{PromptComponents: []PromptComponent{{Type: "other"}}}},
		{"empty prompt", &Request{PromptComponents: []PromptComponent{{Type: ComponentType}}}},
		{"two components", &Request{PromptComponents: []PromptComponent{
			{Type: ComponentType, Payload: ComponentPayload{Prompt: "a"}},
			{Type: ComponentType, Payload: ComponentPayload{Prompt: "b"}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.DescribeLibraries(context.Background(), tt.req); !errors.Is(err, ErrBadComponent) {
				t.Errorf("err = %v, want ErrBadComponent", err)
			}
		})
	}
}
