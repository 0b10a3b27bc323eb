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

const (
	providerAnthropic       = "anthropic"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
)

// anthropicService speaks the Anthropic Messages API. The canonical flat
// message list is translated into the block-based content model: system
// messages become a top-level field, tool calls become tool_use blocks,
// and tool replies become tool_result blocks on a user message.
type anthropicService struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

var _ Service = (*anthropicService)(nil)

func newAnthropicService(cfg *Config) *anthropicService {
	baseURL := cfg.APIEndpoint
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &anthropicService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "completion.anthropic"),
	}
}

func (s *anthropicService) GetStreamedMessage(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	if s.config.UseStreaming {
		return s.stream(ctx, req, onChunk)
	}
	return s.complete(ctx, req, onChunk)
}

func (s *anthropicService) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *anthropicService) complete(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	start := time.Now()

	body, err := json.Marshal(s.buildPayload(req, false))
	if err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := s.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := doWithRetry(ctx, s.config, s.http, httpReq, body, providerAnthropic)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(providerAnthropic, resp)
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("decode response: %w", err))
	}

	msg := s.convertResponse(&result, start)
	if msg.Content != "" && onChunk != nil {
		onChunk(msg.Content)
	}
	return msg, nil
}

func (s *anthropicService) stream(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	start := time.Now()

	body, err := json.Marshal(s.buildPayload(req, true))
	if err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := s.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	client := httpc.NewClient(s.config.StreamTimeout)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("stream request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(providerAnthropic, resp)
	}

	var content strings.Builder
	var toolCalls []chat.ToolCall
	// Index of the tool call owned by the currently open content block,
	// -1 while the open block is text.
	currentTool := -1
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
			return nil, WrapError(providerAnthropic, fmt.Errorf("read stream: %w", err))
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				model = event.Message.Model
			}
		case "content_block_start":
			currentTool = -1
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				toolCalls = append(toolCalls, chat.ToolCall{
					ID:   event.ContentBlock.ID,
					Type: "function",
					Function: chat.FunctionCall{
						Name: event.ContentBlock.Name,
					},
				})
				currentTool = len(toolCalls) - 1
			}
		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					content.WriteString(event.Delta.Text)
					if onChunk != nil && !onChunk(event.Delta.Text) {
						goto done
					}
				}
			case "input_json_delta":
				if currentTool >= 0 {
					toolCalls[currentTool].Function.Arguments += event.Delta.PartialJSON
				}
			}
		case "message_stop":
			goto done
		}
	}
done:

	msg := chat.NewAssistantMessage(content.String())
	msg.ToolCalls = toolCalls
	msg.Stats = &chat.Stats{
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	return &msg, nil
}

func (s *anthropicService) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := s.baseURL + "/messages"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	return req, nil
}

func (s *anthropicService) buildPayload(req *Request, stream bool) map[string]interface{} {
	system, messages := toAnthropicMessages(req.Messages)

	maxTokens := s.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024 // required by the API
	}

	payload := map[string]interface{}{
		"model":      s.config.ModelID,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if system != "" {
		payload["system"] = system
	}
	if stream {
		payload["stream"] = true
	}
	if s.config.Temperature > 0 {
		payload["temperature"] = s.config.Temperature
	}

	if s.config.UseTools && len(req.Tools) > 0 {
		tools := make([]map[string]interface{}, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = map[string]interface{}{
				"name":         t.Function.Name,
				"description":  t.Function.Description,
				"input_schema": t.Function.Parameters,
			}
		}
		payload["tools"] = tools
	}

	return payload
}

// toAnthropicMessages translates the canonical message list. System
// messages are extracted into the returned system string; consecutive
// tool replies merge into one user message of tool_result blocks, as the
// API requires them directly after the assistant turn that called them.
func toAnthropicMessages(messages []chat.Message) (string, []map[string]interface{}) {
	var system strings.Builder
	var out []map[string]interface{}

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)

		case chat.RoleAssistant:
			var blocks []map[string]interface{}
			if msg.Content != "" {
				blocks = append(blocks, map[string]interface{}{
					"type": "text",
					"text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Function.Name,
					"input": tc.ParseArguments(),
				})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, map[string]interface{}{
				"role":    "assistant",
				"content": blocks,
			})

		case chat.RoleTool:
			block := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": msg.ToolCallID,
				"content":     msg.Content,
			}
			if n := len(out); n > 0 && out[n-1]["role"] == "user" {
				if blocks, ok := out[n-1]["content"].([]map[string]interface{}); ok && len(blocks) > 0 && blocks[0]["type"] == "tool_result" {
					out[n-1]["content"] = append(blocks, block)
					continue
				}
			}
			out = append(out, map[string]interface{}{
				"role":    "user",
				"content": []map[string]interface{}{block},
			})

		default:
			out = append(out, map[string]interface{}{
				"role":    "user",
				"content": msg.Content,
			})
		}
	}

	return system.String(), out
}

// convertResponse reconstructs a canonical message from content blocks.
func (s *anthropicService) convertResponse(result *anthropicResponse, start time.Time) *chat.Message {
	var content strings.Builder
	var toolCalls []chat.ToolCall

	for _, block := range result.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			toolCalls = append(toolCalls, chat.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: chat.FunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		}
	}

	msg := chat.NewAssistantMessage(content.String())
	msg.ToolCalls = toolCalls
	msg.Stats = &chat.Stats{
		Model:            result.Model,
		PromptTokens:     result.Usage.InputTokens,
		CompletionTokens: result.Usage.OutputTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
	}
	return &msg
}

// API response types
type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string `json:"model"`
	} `json:"message"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}
