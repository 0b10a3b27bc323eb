package completion

import (
	"log/slog"
	"time"
)

// Compatibility selects the wire format a backend speaks.
type Compatibility string

const (
	CompatibilityOpenAI    Compatibility = "OpenAI"
	CompatibilityAnthropic Compatibility = "Anthropic"
	CompatibilityVertexAI  Compatibility = "VertexAI"
	CompatibilityOllama    Compatibility = "Ollama"
)

// Config holds backend configuration.
type Config struct {
	// Connection
	APIEndpoint   string // API base URL; empty selects the backend default
	APIKey        string // API key (optional for local providers)
	Compatibility Compatibility

	// Vertex AI only
	ProjectID string
	Region    string

	// Model
	ModelID string

	// Behavior
	UseTools     bool // offer registered tools to the model
	UseStreaming bool // stream chunks; false buffers the whole reply

	// Request defaults
	MaxTokens   int
	Temperature float64

	// Timeouts
	Timeout       time.Duration
	StreamTimeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring backends.
type Option func(*Config)

// WithAPIEndpoint sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434/v1"
func WithAPIEndpoint(url string) Option {
	return func(c *Config) { c.APIEndpoint = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithCompatibility selects the backend wire format.
func WithCompatibility(compat Compatibility) Option {
	return func(c *Config) { c.Compatibility = compat }
}

// WithVertexProject sets the Vertex AI project and region.
func WithVertexProject(projectID, region string) Option {
	return func(c *Config) {
		c.ProjectID = projectID
		c.Region = region
	}
}

// WithModelID sets the model.
func WithModelID(model string) Option {
	return func(c *Config) { c.ModelID = model }
}

// WithTools enables or disables tool use.
func WithTools(enabled bool) Option {
	return func(c *Config) { c.UseTools = enabled }
}

// WithStreaming enables or disables streamed responses.
func WithStreaming(enabled bool) Option {
	return func(c *Config) { c.UseStreaming = enabled }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithStreamTimeout sets the streaming request timeout.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = d }
}

// WithRetry configures retry behavior for non-streaming requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		Compatibility: CompatibilityOpenAI,
		ModelID:       "gpt-4o-mini",
		UseTools:      true,
		UseStreaming:  true,
		MaxTokens:     1024,
		Temperature:   0.7,
		Timeout:       30 * time.Second,
		StreamTimeout: 120 * time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.Compatibility {
	case CompatibilityOpenAI, CompatibilityAnthropic, CompatibilityOllama:
		return nil
	case CompatibilityVertexAI:
		if c.ProjectID == "" || c.Region == "" {
			return ErrNoProject
		}
		return nil
	default:
		return ErrUnknownCompatibility
	}
}
