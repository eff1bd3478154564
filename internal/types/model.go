package types

// ModelMetadata is a caller-supplied model override. When present it replaces
// the default model bound in a prompt definition; gated by the
// custom_models_enabled policy flag.
type ModelMetadata struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}
