package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
	"gitlab.com/gitlab-org/ai-gateway/internal/prompt"
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// streamClient replays a fixed chunk sequence, optionally ending with an
// in-band error.
type streamClient struct {
	chunks      []string
	err         error
	gotMessages []types.Message
}

func (c *streamClient) Engine() string { return "fake" }
func (c *streamClient) Name() string   { return "fake-model" }

func (c *streamClient) Generate(ctx context.Context, prefix, suffix string, opts *model.Options) (*model.Output, error) {
	return &model.Output{}, nil
}

func (c *streamClient) GenerateStream(ctx context.Context, prefix, suffix string, opts *model.Options) (<-chan model.StreamEvent, error) {
	ch := make(chan model.StreamEvent)
	close(ch)
	return ch, nil
}

func (c *streamClient) Chat(ctx context.Context, messages []types.Message, opts *model.Options) (*model.Output, error) {
	return &model.Output{}, nil
}

func (c *streamClient) ChatStream(ctx context.Context, messages []types.Message, opts *model.Options) (<-chan model.StreamEvent, error) {
	c.gotMessages = messages
	ch := make(chan model.StreamEvent)
	go func() {
		defer close(ch)
		for _, chunk := range c.chunks {
			ch <- model.StreamEvent{Chunk: model.Chunk{Text: chunk}}
		}
		if c.err != nil {
			ch <- model.StreamEvent{Err: c.err}
		}
	}()
	return ch, nil
}

func newTestExecutor(t *testing.T, client model.Client) *Executor {
	t.Helper()

	dir := t.TempDir()
	defPath := filepath.Join(dir, "chat", "react")
	if err := os.MkdirAll(defPath, 0o755); err != nil {
		t.Fatal(err)
	}
	def := `name: Duo Chat ReAct agent
model:
  name: fake-model
  params:
    model_class_provider: fake
unit_primitives:
  - duo_chat
prompt_template:
  system: "Answer using the tools below.\n{{.tools}}"
  user: "{{.question}}"
  assistant: "{{if .scratchpad}}{{.scratchpad}}{{end}}Thought:"
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
	registry.SetClass(ChatPromptID, prompt.ClassReActAgent)
	if err := registry.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	watcher := model.NewWatcher(metrics, nil)
	return NewExecutor(registry, DefaultToolRegistry(), watcher, metrics)
}

func chatUser(scopes ...auth.UnitPrimitive) *auth.User {
	return &auth.User{
		Authenticated: true,
		Claims:        auth.UserClaims{Scopes: scopes, Subject: "test-user"},
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestStreamEmitsSingleToolAction(t *testing.T) {
	client := &streamClient{chunks: []string{
		"Thought: I'm thin",
		"king...\nAction: issue_reader\n",
		"Action Input: 123",
	}}
	e := newTestExecutor(t, client)

	bound, err := e.OnBehalf(chatUser(auth.UnitPrimitiveDuoChat), "")
	if err != nil {
		t.Fatalf("OnBehalf: %v", err)
	}
	events, err := bound.Stream(context.Background(), &Request{Question: "what is in issue 123?"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(got), got)
	}
	action, ok := got[0].(*ToolAction)
	if !ok {
		t.Fatalf("event = %T, want *ToolAction", got[0])
	}
	want := ToolAction{Thought: "I'm thinking...", Tool: "issue_reader", ToolInput: "123"}
	if *action != want {
		t.Errorf("action = %+v, want %+v", *action, want)
	}
}

func TestStreamFinalAnswerDeltas(t *testing.T) {
	client := &streamClient{chunks: []string{
		"Thought: easy one\nFinal Answer: It's",
		" Paris",
	}}
	e := newTestExecutor(t, client)

	bound, err := e.OnBehalf(chatUser(auth.UnitPrimitiveDuoChat), "")
	if err != nil {
		t.Fatalf("OnBehalf: %v", err)
	}
	events, err := bound.Stream(context.Background(), &Request{Question: "capital of France?"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var deltas []string
	for _, ev := range collect(t, events) {
		delta, ok := ev.(*FinalAnswerDelta)
		if !ok {
			t.Fatalf("event = %T, want *FinalAnswerDelta", ev)
		}
		deltas = append(deltas, delta.Text)
	}
	if len(deltas) != 2 || deltas[0] != "It's" || deltas[1] != " Paris" {
		t.Errorf("deltas = %q, want [It's,  Paris]", deltas)
	}
}

func TestStreamUnauthorizedTool(t *testing.T) {
	client := &streamClient{chunks: []string{
		"Thought: search the docs\nAction: gitlab_documentation\nAction Input: how to set up CI",
	}}
	e := newTestExecutor(t, client)

	bound, err := e.OnBehalf(chatUser(auth.UnitPrimitiveDuoChat), "")
	if err != nil {
		t.Fatalf("OnBehalf: %v", err)
	}
	for _, tool := range bound.Tools() {
		if tool.Name == "gitlab_documentation" {
			t.Fatal("gitlab_documentation should not resolve for duo_chat scope")
		}
	}

	events, err := bound.Stream(context.Background(), &Request{Question: "how do I set up CI?"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(got), got)
	}
	errEv, ok := got[0].(*ErrorEvent)
	if !ok {
		t.Fatalf("event = %T, want *ErrorEvent", got[0])
	}
	if errEv.Retryable {
		t.Error("unauthorized tool error must not be retryable")
	}
}

func TestStreamUnknownAction(t *testing.T) {
	client := &streamClient{chunks: []string{"I refuse to follow the format."}}
	e := newTestExecutor(t, client)

	bound, err := e.OnBehalf(chatUser(auth.UnitPrimitiveDuoChat), "")
	if err != nil {
		t.Fatalf("OnBehalf: %v", err)
	}
	events, err := bound.Stream(context.Background(), &Request{Question: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(got), got)
	}
	unknown, ok := got[0].(*UnknownAction)
	if !ok {
		t.Fatalf("event = %T, want *UnknownAction", got[0])
	}
	if unknown.Text != "I refuse to follow the format." {
		t.Errorf("Text = %q", unknown.Text)
	}
}

func TestStreamModelError(t *testing.T) {
	client := &streamClient{
		chunks: []string{"Thought: let me"},
		err:    model.StatusError(529, "overloaded"),
	}
	e := newTestExecutor(t, client)

	bound, err := e.OnBehalf(chatUser(auth.UnitPrimitiveDuoChat), "")
	if err != nil {
		t.Fatalf("OnBehalf: %v", err)
	}
	events, err := bound.Stream(context.Background(), &Request{Question: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collect(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(got), got)
	}
	errEv, ok := got[0].(*ErrorEvent)
	if !ok {
		t.Fatalf("event = %T, want *ErrorEvent", got[0])
	}
	if !errEv.Retryable {
		t.Error("overload error should be retryable")
	}
}

func TestOnBehalfRequiresCapability(t *testing.T) {
	e := newTestExecutor(t, &streamClient{})

	if _, err := e.OnBehalf(chatUser(auth.UnitPrimitiveCodeSuggestions), ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestOnBehalfDebugUserGetsAllTools(t *testing.T) {
	e := newTestExecutor(t, &streamClient{})

	bound, err := e.OnBehalf(&auth.User{IsDebug: true}, "")
	if err != nil {
		t.Fatalf("OnBehalf: %v", err)
	}
	if len(bound.Tools()) != len(DefaultToolRegistry().All()) {
		t.Errorf("debug user got %d tools, want %d", len(bound.Tools()), len(DefaultToolRegistry().All()))
	}
}

func TestOnBehalfVersionFilter(t *testing.T) {
	e := newTestExecutor(t, &streamClient{})

	bound, err := e.OnBehalf(chatUser(auth.UnitPrimitiveDuoChat, auth.UnitPrimitiveAnalyzeCIJobFailure), "16.0.0")
	if err != nil {
		t.Fatalf("OnBehalf: %v", err)
	}
	for _, tool := range bound.Tools() {
		if tool.MinRequiredGitLabVersion != "" && !versionAtLeast("16.0.0", tool.MinRequiredGitLabVersion) {
			t.Errorf("tool %s should be filtered out for 16.0.0", tool.Name)
		}
	}
}
