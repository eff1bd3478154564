package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gitlab.com/gitlab-org/ai-gateway/internal/config"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// VertexClient talks to Vertex AI code model predict endpoints.
type VertexClient struct {
	cfg      config.ProviderConfig
	client   *http.Client
	model    string
	defaults Options
}

func NewVertexClient(cfg config.ProviderConfig, modelName string) *VertexClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &VertexClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		model:  modelName,
		defaults: Options{
			Model:           ptr(modelName),
			MaxOutputTokens: ptr(64),
			Temperature:     ptr(0.2),
			TopP:            ptr(0.95),
			TopK:            ptr(40),
		},
	}
}

func (c *VertexClient) Engine() string { return "vertex-ai" }
func (c *VertexClient) Name() string   { return c.model }

type vertexInstance struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix,omitempty"`
}

type vertexParameters struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type vertexPredictResponse struct {
	Predictions []struct {
		Content          string         `json:"content"`
		Score            float64        `json:"score"`
		SafetyAttributes map[string]any `json:"safetyAttributes"`
	} `json:"predictions"`
}

func (c *VertexClient) endpoint(modelName string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.cfg.BaseURL, c.cfg.Project, c.cfg.Location, modelName)
}

func (c *VertexClient) Generate(ctx context.Context, prefix, suffix string, opts *Options) (*Output, error) {
	merged := merge(c.defaults, opts)

	modelName := c.model
	if merged.Model != nil {
		modelName = *merged.Model
	}

	payload := map[string]any{
		"instances": []vertexInstance{{Prefix: prefix, Suffix: suffix}},
		"parameters": vertexParameters{
			Temperature:     merged.Temperature,
			MaxOutputTokens: merged.MaxOutputTokens,
			TopP:            merged.TopP,
			TopK:            merged.TopK,
			StopSequences:   merged.StopSequences,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal vertex request: %w", err)
	}

	if merged.Timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *merged.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(modelName), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create vertex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, WrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, StatusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(err)
	}
	var parsed vertexPredictResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapError(fmt.Errorf("unmarshal vertex response: %w", err))
	}
	if len(parsed.Predictions) == 0 {
		return &Output{}, nil
	}

	p := parsed.Predictions[0]
	return &Output{
		Text:             p.Content,
		Score:            p.Score,
		SafetyAttributes: p.SafetyAttributes,
	}, nil
}

// GenerateStream wraps the predict call: Vertex code models answer in one
// shot, so the stream carries a single chunk.
func (c *VertexClient) GenerateStream(ctx context.Context, prefix, suffix string, opts *Options) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, 1)
	go func() {
		defer close(out)
		output, err := c.Generate(ctx, prefix, suffix, opts)
		if err != nil {
			out <- StreamEvent{Err: err}
			return
		}
		out <- StreamEvent{Chunk: Chunk{Text: output.Text}}
	}()
	return out, nil
}

func (c *VertexClient) Chat(ctx context.Context, messages []types.Message, opts *Options) (*Output, error) {
	return c.Generate(ctx, flattenMessages(messages), "", opts)
}

func (c *VertexClient) ChatStream(ctx context.Context, messages []types.Message, opts *Options) (<-chan StreamEvent, error) {
	return c.GenerateStream(ctx, flattenMessages(messages), "", opts)
}

func flattenMessages(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
