// Package completion provides a provider-agnostic chat completion service
// with streaming support. Backends translate the canonical message format
// into each provider's wire format: OpenAI-compatible endpoints (including
// Ollama), Anthropic's block-based content model, and Vertex AI's Gemini
// API with manual server-sent-event framing.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/chat"
)

// ChunkFunc receives each incremental text fragment in arrival order,
// synchronously within the streaming loop. Returning false halts stream
// consumption; no further chunks are delivered.
type ChunkFunc func(delta string) bool

// Request is a canonical completion request.
type Request struct {
	Messages []chat.Message
	Tools    []chat.Tool
}

// Service generates chat completions.
type Service interface {
	// GetStreamedMessage sends the request and streams the reply. onChunk
	// is invoked for every text delta; the returned message is the
	// complete assistant reply, which may carry tool calls. When the
	// context is cancelled or onChunk returns false, consumption stops
	// promptly and the message accumulated so far is returned.
	GetStreamedMessage(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error)

	// Close releases resources.
	Close() error
}

// NewService constructs the backend selected by the configuration.
// Unknown compatibility values fail here, before any network activity.
func NewService(opts ...Option) (Service, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ModelID == "" {
		return nil, ErrNoModel
	}

	switch cfg.Compatibility {
	case CompatibilityOpenAI:
		return newOpenAIService(cfg, "https://api.openai.com/v1"), nil
	case CompatibilityOllama:
		return newOpenAIService(cfg, "http://localhost:11434/v1"), nil
	case CompatibilityAnthropic:
		return newAnthropicService(cfg), nil
	case CompatibilityVertexAI:
		return newVertexService(cfg), nil
	default:
		return nil, ErrUnknownCompatibility
	}
}

// doWithRetry performs the request, retrying on 429 and 5xx responses.
// Streaming requests are not retried; this is for blocking calls only.
func doWithRetry(ctx context.Context, cfg *Config, client *http.Client, req *http.Request, body []byte, provider string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = WrapError(provider, err)
			cfg.Logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = parseError(provider, resp)
			resp.Body.Close()
			cfg.Logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func parseError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	// OpenAI and Anthropic both nest the message under "error".
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
		if code == "" {
			code = errResp.Error.Type
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   provider,
	}
}
