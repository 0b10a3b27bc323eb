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

	"github.com/google/uuid"

	"github.com/stippi/go-voice-assistant/internal/httpc"
	"github.com/stippi/go-voice-assistant/pkg/chat"
)

const providerVertex = "vertex"

// vertexService speaks the Vertex AI Gemini API. Roles map onto the
// user/model pair Gemini understands, tool traffic travels as
// functionCall/functionResponse parts, and streaming uses the
// streamGenerateContent endpoint with alt=sse, whose line-delimited
// event framing is parsed here directly.
type vertexService struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

var _ Service = (*vertexService)(nil)

func newVertexService(cfg *Config) *vertexService {
	baseURL := cfg.APIEndpoint
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models",
			cfg.Region, cfg.ProjectID, cfg.Region)
	}
	return &vertexService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "completion.vertex"),
	}
}

func (s *vertexService) GetStreamedMessage(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	if s.config.UseStreaming {
		return s.stream(ctx, req, onChunk)
	}
	return s.complete(ctx, req, onChunk)
}

func (s *vertexService) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *vertexService) complete(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	start := time.Now()

	body, err := json.Marshal(s.buildPayload(req))
	if err != nil {
		return nil, WrapError(providerVertex, fmt.Errorf("marshal payload: %w", err))
	}

	url := fmt.Sprintf("%s/%s:generateContent", s.baseURL, s.config.ModelID)
	httpReq, err := s.newRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}

	resp, err := doWithRetry(ctx, s.config, s.http, httpReq, body, providerVertex)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.parseError(resp)
	}

	var result vertexResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerVertex, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Candidates) == 0 {
		return nil, WrapError(providerVertex, fmt.Errorf("no candidates returned"))
	}

	var content strings.Builder
	var toolCalls []chat.ToolCall
	collectVertexParts(result.Candidates[0].Content.Parts, &content, &toolCalls)

	if content.Len() > 0 && onChunk != nil {
		onChunk(content.String())
	}

	msg := chat.NewAssistantMessage(content.String())
	msg.ToolCalls = toolCalls
	msg.Stats = &chat.Stats{
		Model:     s.config.ModelID,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	return &msg, nil
}

func (s *vertexService) stream(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	start := time.Now()

	body, err := json.Marshal(s.buildPayload(req))
	if err != nil {
		return nil, WrapError(providerVertex, fmt.Errorf("marshal payload: %w", err))
	}

	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse", s.baseURL, s.config.ModelID)
	httpReq, err := s.newRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}

	client := httpc.NewClient(s.config.StreamTimeout)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerVertex, fmt.Errorf("stream request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.parseError(resp)
	}

	var content strings.Builder
	var toolCalls []chat.ToolCall

	// Events arrive as "data: {json}" lines terminated by blank lines.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var data strings.Builder
	stopped := false

	flush := func() bool {
		if data.Len() == 0 {
			return true
		}
		defer data.Reset()

		var result vertexResponse
		if err := json.Unmarshal([]byte(data.String()), &result); err != nil {
			return true
		}
		if len(result.Candidates) == 0 {
			return true
		}
		var text strings.Builder
		collectVertexParts(result.Candidates[0].Content.Parts, &text, &toolCalls)
		if text.Len() > 0 {
			content.WriteString(text.String())
			if onChunk != nil && !onChunk(text.String()) {
				return false
			}
		}
		return true
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		line := scanner.Text()
		if line == "" {
			if !flush() {
				stopped = true
				break
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if !stopped {
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			return nil, WrapError(providerVertex, fmt.Errorf("read stream: %w", err))
		}
		flush()
	}

	msg := chat.NewAssistantMessage(content.String())
	msg.ToolCalls = toolCalls
	msg.Stats = &chat.Stats{
		Model:     s.config.ModelID,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	return &msg, nil
}

func (s *vertexService) newRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerVertex, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	return req, nil
}

func (s *vertexService) buildPayload(req *Request) map[string]interface{} {
	payload := map[string]interface{}{
		"contents": toVertexContents(req.Messages),
		"generationConfig": map[string]interface{}{
			"temperature":     s.config.Temperature,
			"maxOutputTokens": s.config.MaxTokens,
		},
	}

	if s.config.UseTools && len(req.Tools) > 0 {
		declarations := make([]map[string]interface{}, len(req.Tools))
		for i, t := range req.Tools {
			declarations[i] = map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  t.Function.Parameters,
			}
		}
		payload["tools"] = []map[string]interface{}{
			{"functionDeclarations": declarations},
		}
	}

	return payload
}

// toVertexContents translates the canonical message list. Gemini has no
// system role, so system text becomes a leading user/model exchange.
// Assistant maps to model, tool replies become functionResponse parts,
// everything else is user.
func toVertexContents(messages []chat.Message) []map[string]interface{} {
	var contents []map[string]interface{}

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			contents = append(contents,
				map[string]interface{}{
					"role":  "user",
					"parts": []map[string]interface{}{{"text": msg.Content}},
				},
				map[string]interface{}{
					"role":  "model",
					"parts": []map[string]interface{}{{"text": "Understood."}},
				},
			)

		case chat.RoleAssistant:
			var parts []map[string]interface{}
			if msg.Content != "" {
				parts = append(parts, map[string]interface{}{"text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, map[string]interface{}{
					"functionCall": map[string]interface{}{
						"name": tc.Function.Name,
						"args": tc.ParseArguments(),
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, map[string]interface{}{
				"role":  "model",
				"parts": parts,
			})

		case chat.RoleTool:
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			contents = append(contents, map[string]interface{}{
				"role": "function",
				"parts": []map[string]interface{}{{
					"functionResponse": map[string]interface{}{
						"name":     msg.Name,
						"response": response,
					},
				}},
			})

		default:
			contents = append(contents, map[string]interface{}{
				"role":  "user",
				"parts": []map[string]interface{}{{"text": msg.Content}},
			})
		}
	}

	return contents
}

// collectVertexParts appends text parts to content and functionCall
// parts to toolCalls. Gemini does not assign call IDs; they are
// generated here so tool replies can reference them canonically.
func collectVertexParts(parts []vertexPart, content *strings.Builder, toolCalls *[]chat.ToolCall) {
	for _, part := range parts {
		if part.Text != "" {
			content.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			*toolCalls = append(*toolCalls, chat.ToolCall{
				ID:   uuid.NewString(),
				Type: "function",
				Function: chat.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}
}

func (s *vertexService) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerVertex,
	}
}

// API response types
type vertexPart struct {
	Text         string `json:"text"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall"`
}

type vertexResponse struct {
	Candidates []struct {
		Content struct {
			Role  string       `json:"role"`
			Parts []vertexPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}
