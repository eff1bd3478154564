package types

// CodeSuggestionRequest is the body of /v2/code/completions and
// /v2/code/generations.
type CodeSuggestionRequest struct {
	ProjectPath     string          `json:"project_path,omitempty"`
	ProjectID       int64           `json:"project_id,omitempty"`
	CurrentFile     CurrentFile     `json:"current_file"`
	Prompt          string          `json:"prompt,omitempty"`
	PromptVersion   int             `json:"prompt_version,omitempty"`
	Telemetry       []TelemetryItem `json:"telemetry,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
	ModelProvider   string          `json:"model_provider,omitempty"`
	ModelName       string          `json:"model_name,omitempty"`
	ChoicesCount    int             `json:"choices_count,omitempty"`
	UserInstruction string          `json:"user_instruction,omitempty"`
	GenerationType  string          `json:"generation_type,omitempty"`
}

// TelemetryItem is client-reported acceptance telemetry echoed by IDEs.
type TelemetryItem struct {
	ModelEngine   string `json:"model_engine,omitempty"`
	ModelName     string `json:"model_name,omitempty"`
	Lang          string `json:"lang,omitempty"`
	RequestsCount int    `json:"requests"`
	AcceptsCount  int    `json:"accepts"`
	ErrorsCount   int    `json:"errors"`
}

// CodeSuggestionResponse is the buffered (non-streaming) response shape.
type CodeSuggestionResponse struct {
	ID      string             `json:"id"`
	Model   SuggestionModel    `json:"model"`
	Choices []SuggestionChoice `json:"choices"`
}

type SuggestionModel struct {
	Engine string `json:"engine"`
	Name   string `json:"name"`
	Lang   string `json:"lang"`
}

type SuggestionChoice struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
}
