package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stippi/go-voice-assistant/internal/httpc"
	"github.com/stippi/go-voice-assistant/pkg/chat"
)

const providerOpenAI = "openai"

// openAIService speaks the OpenAI chat completions API. It also serves
// any compatible endpoint (Ollama, vLLM, Together, Groq).
type openAIService struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

var _ Service = (*openAIService)(nil)

func newOpenAIService(cfg *Config, defaultEndpoint string) *openAIService {
	baseURL := cfg.APIEndpoint
	if baseURL == "" {
		baseURL = defaultEndpoint
	}
	return &openAIService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "completion.openai"),
	}
}

func (s *openAIService) GetStreamedMessage(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	if s.config.UseStreaming {
		return s.stream(ctx, req, onChunk)
	}
	return s.complete(ctx, req, onChunk)
}

func (s *openAIService) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

// complete performs a blocking completion and delivers the full text as
// a single chunk.
func (s *openAIService) complete(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	start := time.Now()

	body, err := json.Marshal(s.buildPayload(req, false))
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := s.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := doWithRetry(ctx, s.config, s.http, httpReq, body, providerOpenAI)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(providerOpenAI, resp)
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return nil, WrapError(providerOpenAI, fmt.Errorf("no choices returned"))
	}

	choice := result.Choices[0]
	if choice.Message.Content != "" && onChunk != nil {
		onChunk(choice.Message.Content)
	}

	msg := chat.NewAssistantMessage(choice.Message.Content)
	msg.ToolCalls = convertToolCalls(choice.Message.ToolCalls)
	msg.Stats = &chat.Stats{
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
	}
	return &msg, nil
}

// stream performs a streaming completion, invoking onChunk per text delta
// and assembling tool calls from their partial fragments.
func (s *openAIService) stream(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	start := time.Now()

	body, err := json.Marshal(s.buildPayload(req, true))
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := s.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	client := httpc.NewClient(s.config.StreamTimeout)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("stream request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(providerOpenAI, resp)
	}

	var content strings.Builder
	calls := newToolCallAssembler()
	model := ""

	reader := bufio.NewReader(resp.Body)
	for {
		if ctx.Err() != nil {
			break
		}

		line, err := reader.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return nil, WrapError(providerOpenAI, fmt.Errorf("read stream: %w", err))
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Skip malformed events
			continue
		}
		if event.Model != "" {
			model = event.Model
		}
		if len(event.Choices) == 0 {
			continue
		}

		delta := event.Choices[0].Delta
		for _, tc := range delta.ToolCalls {
			calls.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onChunk != nil && !onChunk(delta.Content) {
				break
			}
		}
	}

	msg := chat.NewAssistantMessage(content.String())
	msg.ToolCalls = calls.result()
	msg.Stats = &chat.Stats{
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	return &msg, nil
}

func (s *openAIService) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := s.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	return req, nil
}

// buildPayload constructs the API request payload. The canonical message
// format passes through nearly unchanged.
func (s *openAIService) buildPayload(req *Request, stream bool) map[string]interface{} {
	messages := make([]map[string]interface{}, len(req.Messages))
	for i, msg := range req.Messages {
		m := map[string]interface{}{
			"role":    string(msg.Role),
			"content": msg.Content,
		}
		if msg.Name != "" {
			m["name"] = msg.Name
		}
		if msg.ToolCallID != "" {
			m["tool_call_id"] = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			toolCalls := make([]map[string]interface{}, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				toolCalls[j] = map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]string{
						"name":      tc.Function.Name,
						"arguments": tc.Function.Arguments,
					},
				}
			}
			m["tool_calls"] = toolCalls
		}
		messages[i] = m
	}

	payload := map[string]interface{}{
		"model":    s.config.ModelID,
		"messages": messages,
	}
	if stream {
		payload["stream"] = true
	}
	if s.config.MaxTokens > 0 {
		payload["max_tokens"] = s.config.MaxTokens
	}
	if s.config.Temperature > 0 {
		payload["temperature"] = s.config.Temperature
	}

	if s.config.UseTools && len(req.Tools) > 0 {
		tools := make([]map[string]interface{}, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = map[string]interface{}{
				"type": t.Type,
				"function": map[string]interface{}{
					"name":        t.Function.Name,
					"description": t.Function.Description,
					"parameters":  t.Function.Parameters,
				},
			}
		}
		payload["tools"] = tools
	}

	return payload
}

// toolCallAssembler collects tool call fragments which arrive spread
// across stream deltas, keyed by index.
type toolCallAssembler struct {
	order []int
	byIdx map[int]*chat.ToolCall
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIdx: make(map[int]*chat.ToolCall)}
}

func (a *toolCallAssembler) add(index int, id, name, arguments string) {
	tc, ok := a.byIdx[index]
	if !ok {
		tc = &chat.ToolCall{Type: "function"}
		a.byIdx[index] = tc
		a.order = append(a.order, index)
	}
	if id != "" {
		tc.ID = id
	}
	if name != "" {
		tc.Function.Name += name
	}
	tc.Function.Arguments += arguments
}

func (a *toolCallAssembler) result() []chat.ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]chat.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.byIdx[idx])
	}
	return out
}

// API response types
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string        `json:"role"`
			Content   string        `json:"content"`
			ToolCalls []apiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func convertToolCalls(calls []apiToolCall) []chat.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]chat.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = chat.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: chat.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}
	}
	return result
}

// streamEvent is the SSE event format.
type streamEvent struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Role      string `json:"role"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
