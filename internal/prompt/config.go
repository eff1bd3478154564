package prompt

import "time"

// PromptConfig is the on-disk shape of one definitions/<id>/<variant>.yml
// file. Immutable after load.
type PromptConfig struct {
	Name           string            `yaml:"name"`
	Model          ModelConfig       `yaml:"model"`
	UnitPrimitives []string          `yaml:"unit_primitives"`
	PromptTemplate map[string]string `yaml:"prompt_template"`
	Params         *ParamsConfig     `yaml:"params"`
}

type ModelConfig struct {
	Name   string      `yaml:"name"`
	Params ModelParams `yaml:"params"`
}

type ModelParams struct {
	// ModelClassProvider selects the client factory ("anthropic",
	// "vertex-ai", "litellm").
	ModelClassProvider string   `yaml:"model_class_provider"`
	Temperature        *float64 `yaml:"temperature"`
	MaxTokens          *int     `yaml:"max_tokens"`
	TopP               *float64 `yaml:"top_p"`
	TopK               *int     `yaml:"top_k"`
}

type ParamsConfig struct {
	Stop           []string      `yaml:"stop"`
	Timeout        time.Duration `yaml:"timeout"`
	VertexLocation string        `yaml:"vertex_location"`
}
