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

	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// OpenAICompatClient talks to any OpenAI-compatible chat/completions
// endpoint. Customer-supplied model endpoints are bound through this client:
// the registry injects the base URL, API key, and model name at resolution
// time.
type OpenAICompatClient struct {
	baseURL  string
	apiKey   string
	provider string
	client   *http.Client
	model    string
	defaults Options
}

func NewOpenAICompatClient(baseURL, apiKey, provider, modelName string, timeout time.Duration) *OpenAICompatClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		model:    modelName,
		defaults: Options{
			Model:           ptr(modelName),
			MaxOutputTokens: ptr(2048),
			Temperature:     ptr(0.2),
		},
	}
}

func (c *OpenAICompatClient) Engine() string {
	if c.provider != "" {
		return c.provider
	}
	return "openai"
}

func (c *OpenAICompatClient) Name() string { return c.model }

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAICompatClient) send(ctx context.Context, messages []types.Message, opts Options, stream bool) (*http.Response, error) {
	converted := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	modelName := c.model
	if opts.Model != nil {
		modelName = *opts.Model
	}

	body := openAIChatRequest{
		Model:       modelName,
		Messages:    converted,
		MaxTokens:   opts.MaxOutputTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.StopSequences,
		Stream:      stream,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

func (c *OpenAICompatClient) Chat(ctx context.Context, messages []types.Message, opts *Options) (*Output, error) {
	resp, err := c.send(ctx, messages, merge(c.defaults, opts), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(err)
	}
	var parsed openAIChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapError(fmt.Errorf("unmarshal chat response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return &Output{}, nil
	}
	return &Output{Text: parsed.Choices[0].Message.Content}, nil
}

func (c *OpenAICompatClient) ChatStream(ctx context.Context, messages []types.Message, opts *Options) (<-chan StreamEvent, error) {
	resp, err := c.send(ctx, messages, merge(c.defaults, opts), true)
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
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- StreamEvent{Chunk: Chunk{Text: chunk.Choices[0].Delta.Content}}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- StreamEvent{Err: WrapError(err)}
		}
	}()
	return out, nil
}

func (c *OpenAICompatClient) Generate(ctx context.Context, prefix, suffix string, opts *Options) (*Output, error) {
	return c.Chat(ctx, completionMessages(prefix, suffix), opts)
}

func (c *OpenAICompatClient) GenerateStream(ctx context.Context, prefix, suffix string, opts *Options) (<-chan StreamEvent, error) {
	return c.ChatStream(ctx, completionMessages(prefix, suffix), opts)
}
