package model

import (
	"bufio"
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

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	cfg      config.ProviderConfig
	client   *http.Client
	model    string
	defaults Options
}

func NewAnthropicClient(cfg config.ProviderConfig, modelName string) *AnthropicClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		model:  modelName,
		defaults: Options{
			Model:           ptr(modelName),
			MaxOutputTokens: ptr(2048),
			Temperature:     ptr(0.2),
		},
	}
}

func (c *AnthropicClient) Engine() string { return "anthropic" }
func (c *AnthropicClient) Name() string   { return c.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *AnthropicClient) body(messages []types.Message, opts Options, stream bool) anthropicRequestBody {
	var system string
	var converted []anthropicMessage
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = m.Content
			continue
		}
		converted = append(converted, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	maxTokens := 2048
	if opts.MaxOutputTokens != nil {
		maxTokens = *opts.MaxOutputTokens
	}
	modelName := c.model
	if opts.Model != nil {
		modelName = *opts.Model
	}

	return anthropicRequestBody{
		Model:       modelName,
		Messages:    converted,
		System:      system,
		MaxTokens:   maxTokens,
		Stream:      stream,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		TopK:        opts.TopK,
		Stop:        opts.StopSequences,
	}
}

func (c *AnthropicClient) send(ctx context.Context, body anthropicRequestBody, opts Options) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	if opts.Timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *opts.Timeout)
		// The response body outlives this function; tie cancel to the context
		// instead of deferring it here.
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	for k, v := range c.cfg.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, WrapError(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, StatusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []types.Message, opts *Options) (*Output, error) {
	merged := merge(c.defaults, opts)
	resp, err := c.send(ctx, c.body(messages, merged, false), merged)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(err)
	}
	var parsed anthropicResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapError(fmt.Errorf("unmarshal anthropic response: %w", err))
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	return &Output{Text: text}, nil
}

func (c *AnthropicClient) ChatStream(ctx context.Context, messages []types.Message, opts *Options) (<-chan StreamEvent, error) {
	merged := merge(c.defaults, opts)
	resp, err := c.send(ctx, c.body(messages, merged, true), merged)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Type != "text_delta" {
					continue
				}
				select {
				case out <- StreamEvent{Chunk: Chunk{Text: event.Delta.Text}}:
				case <-ctx.Done():
					return
				}
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- StreamEvent{Err: WrapError(err)}
		}
	}()
	return out, nil
}

// Generate answers completion-style calls through the Messages API by
// packing prefix/suffix into a single user turn.
func (c *AnthropicClient) Generate(ctx context.Context, prefix, suffix string, opts *Options) (*Output, error) {
	return c.Chat(ctx, completionMessages(prefix, suffix), opts)
}

func (c *AnthropicClient) GenerateStream(ctx context.Context, prefix, suffix string, opts *Options) (<-chan StreamEvent, error) {
	return c.ChatStream(ctx, completionMessages(prefix, suffix), opts)
}

func completionMessages(prefix, suffix string) []types.Message {
	content := prefix
	if suffix != "" {
		content = fmt.Sprintf("<SUF>%s</SUF>\n%s", suffix, prefix)
	}
	return []types.Message{{Role: types.RoleUser, Content: content}}
}
