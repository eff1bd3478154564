package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Models    ModelsConfig    `yaml:"models"`
	Search    SearchConfig    `yaml:"search"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Flags     FlagsConfig     `yaml:"feature_flags"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	// MaxFileSection caps content_above_cursor / content_below_cursor bytes.
	MaxFileSection int `yaml:"max_file_section"`
}

type AuthConfig struct {
	// Bypass disables authentication entirely (local development only).
	Bypass bool `yaml:"bypass_external"`
	// JWKSEndpoints are fetched and merged, in order.
	JWKSEndpoints []JWKSEndpoint `yaml:"jwks_endpoints"`
	JWKSCacheTTL  time.Duration  `yaml:"jwks_cache_ttl"`
	// RootCertsFile holds PEM roots for x5c chain verification.
	RootCertsFile string `yaml:"root_certs_file"`
	// SigningKeyFile is the token authority's RSA private key.
	SigningKeyFile string `yaml:"signing_key_file"`
	SigningKeyID   string `yaml:"signing_key_id"`
}

type JWKSEndpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type PromptsConfig struct {
	// DefinitionsDir is the root of the definitions/<prompt_id>/<variant>.yml tree.
	DefinitionsDir string `yaml:"definitions_dir"`
	// CustomModelsEnabled gates caller-supplied model endpoints.
	CustomModelsEnabled bool `yaml:"custom_models_enabled"`
}

type ModelsConfig struct {
	// MaxModelLen is the total token budget for code-suggestion prompts.
	MaxModelLen int `yaml:"max_model_len"`
	// ConcurrencyLimits caps in-flight calls per "<engine>/<model>" pair.
	ConcurrencyLimits map[string]int `yaml:"concurrency_limits"`

	Anthropic ProviderConfig `yaml:"anthropic"`
	Vertex    ProviderConfig `yaml:"vertex"`
}

type ProviderConfig struct {
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	// Location is the Vertex AI region, ignored by other providers.
	Location string `yaml:"location"`
	Project  string `yaml:"project"`
}

type SearchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	Environment string `yaml:"environment"`
}

type FlagsConfig struct {
	Enabled []string `yaml:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             5052,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			MaxFileSection:   100 * 1024,
		},
		Auth: AuthConfig{
			JWKSCacheTTL: 24 * time.Hour,
			SigningKeyID: "gitlab-ai-gateway-signing-key",
		},
		Prompts: PromptsConfig{
			DefinitionsDir: "definitions",
		},
		Models: ModelsConfig{
			MaxModelLen: 8192,
			Anthropic: ProviderConfig{
				BaseURL: "https://api.anthropic.com/v1",
				Timeout: 60 * time.Second,
			},
			Vertex: ProviderConfig{
				BaseURL:  "https://us-central1-aiplatform.googleapis.com/v1",
				Location: "us-central1",
				Timeout:  60 * time.Second,
			},
		},
		Search: SearchConfig{
			IndexPath: "tmp/docs.db",
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			Environment: "development",
		},
	}
}
