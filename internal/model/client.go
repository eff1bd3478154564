package model

import (
	"context"
	"time"

	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// Output is a complete (non-streaming) model response.
type Output struct {
	Text             string
	Score            float64
	SafetyAttributes map[string]any
}

// Chunk is one increment of a streaming response.
type Chunk struct {
	Text string
}

// StreamEvent carries either a chunk or an in-band error. After the first
// chunk has been delivered, errors can only travel in-band; the producer
// closes the channel when the stream ends either way.
type StreamEvent struct {
	Chunk Chunk
	Err   error
}

// Options are per-call generation parameters. Nil fields leave the client's
// defaults untouched.
type Options struct {
	Model           *string
	Timeout         *time.Duration
	MaxOutputTokens *int
	StopSequences   []string
	Temperature     *float64
	TopP            *float64
	TopK            *int
}

// merge applies per-call overrides on top of defaults, key by key.
func merge(defaults Options, opts *Options) Options {
	out := defaults
	if opts == nil {
		return out
	}
	if opts.Model != nil {
		out.Model = opts.Model
	}
	if opts.Timeout != nil {
		out.Timeout = opts.Timeout
	}
	if opts.MaxOutputTokens != nil {
		out.MaxOutputTokens = opts.MaxOutputTokens
	}
	if opts.StopSequences != nil {
		out.StopSequences = opts.StopSequences
	}
	if opts.Temperature != nil {
		out.Temperature = opts.Temperature
	}
	if opts.TopP != nil {
		out.TopP = opts.TopP
	}
	if opts.TopK != nil {
		out.TopK = opts.TopK
	}
	return out
}

// Client is the uniform contract over chat/completion/streaming backends.
// Implementations must be safe for concurrent use.
type Client interface {
	// Engine identifies the provider family ("anthropic", "vertex-ai", ...).
	Engine() string
	// Name is the concrete model served by this client.
	Name() string

	Generate(ctx context.Context, prefix, suffix string, opts *Options) (*Output, error)
	GenerateStream(ctx context.Context, prefix, suffix string, opts *Options) (<-chan StreamEvent, error)

	Chat(ctx context.Context, messages []types.Message, opts *Options) (*Output, error)
	ChatStream(ctx context.Context, messages []types.Message, opts *Options) (<-chan StreamEvent, error)
}

func ptr[T any](v T) *T { return &v }
