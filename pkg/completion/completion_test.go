package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stippi/go-voice-assistant/pkg/chat"
)

func TestNewServiceCompatibility(t *testing.T) {
	t.Run("unknown compatibility fails fast", func(t *testing.T) {
		_, err := NewService(WithCompatibility("Mistral"))
		if !errors.Is(err, ErrUnknownCompatibility) {
			t.Errorf("NewService error = %v, want ErrUnknownCompatibility", err)
		}
	})

	t.Run("vertex requires project", func(t *testing.T) {
		_, err := NewService(WithCompatibility(CompatibilityVertexAI))
		if !errors.Is(err, ErrNoProject) {
			t.Errorf("NewService error = %v, want ErrNoProject", err)
		}
	})

	t.Run("known backends construct", func(t *testing.T) {
		for _, compat := range []Compatibility{
			CompatibilityOpenAI,
			CompatibilityAnthropic,
			CompatibilityOllama,
		} {
			svc, err := NewService(WithCompatibility(compat), WithModelID("test-model"))
			if err != nil {
				t.Errorf("NewService(%s): %v", compat, err)
				continue
			}
			svc.Close()
		}
	})
}

func TestOpenAIStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"model":"test-model","choices":[{"delta":{"role":"assistant","content":"Hello"}}]}`,
			`{"choices":[{"delta":{"content":" world"}}]}`,
			`{"choices":[{"delta":{"content":"!"},"finish_reason":"stop"}]}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	svc, err := NewService(
		WithCompatibility(CompatibilityOpenAI),
		WithAPIEndpoint(server.URL),
		WithModelID("test-model"),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	var chunks []string
	msg, err := svc.GetStreamedMessage(context.Background(), &Request{
		Messages: []chat.Message{chat.NewUserMessage("hi")},
	}, func(delta string) bool {
		chunks = append(chunks, delta)
		return true
	})
	if err != nil {
		t.Fatalf("GetStreamedMessage: %v", err)
	}

	if msg.Content != "Hello world!" {
		t.Errorf("Content = %q, want %q", msg.Content, "Hello world!")
	}
	if len(chunks) != 3 || chunks[0] != "Hello" || chunks[1] != " world" || chunks[2] != "!" {
		t.Errorf("chunks = %q, want [Hello,  world, !]", chunks)
	}
}

func TestOpenAIStreamingToolCallAssembly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Arguments arrive fragmented across deltas.
		events := []string{
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Berlin\"}"}}]}}]}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	svc, _ := NewService(
		WithCompatibility(CompatibilityOpenAI),
		WithAPIEndpoint(server.URL),
		WithModelID("test-model"),
	)
	defer svc.Close()

	msg, err := svc.GetStreamedMessage(context.Background(), &Request{
		Messages: []chat.Message{chat.NewUserMessage("weather?")},
	}, nil)
	if err != nil {
		t.Fatalf("GetStreamedMessage: %v", err)
	}

	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "get_weather" {
		t.Errorf("tool call = %+v, want id call_1 name get_weather", tc)
	}
	if tc.Function.Arguments != `{"city":"Berlin"}` {
		t.Errorf("arguments = %q, want %q", tc.Function.Arguments, `{"city":"Berlin"}`)
	}
}

func TestOpenAIStreamingHaltsOnChunkFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 100; i++ {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"chunk %d \"}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	svc, _ := NewService(
		WithCompatibility(CompatibilityOpenAI),
		WithAPIEndpoint(server.URL),
		WithModelID("test-model"),
	)
	defer svc.Close()

	count := 0
	msg, err := svc.GetStreamedMessage(context.Background(), &Request{
		Messages: []chat.Message{chat.NewUserMessage("go")},
	}, func(delta string) bool {
		count++
		return count < 3
	})
	if err != nil {
		t.Fatalf("GetStreamedMessage: %v", err)
	}
	if count != 3 {
		t.Errorf("onChunk invoked %d times after halt, want 3", count)
	}
	if msg == nil {
		t.Fatal("expected partial message after halt, got nil")
	}
}

func TestOpenAIErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	svc, _ := NewService(
		WithCompatibility(CompatibilityOpenAI),
		WithAPIEndpoint(server.URL),
		WithModelID("test-model"),
	)
	defer svc.Close()

	_, err := svc.GetStreamedMessage(context.Background(), &Request{
		Messages: []chat.Message{chat.NewUserMessage("hi")},
	}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.Message != "Incorrect API key provided" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestOpenAIBlockingDeliversSingleChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model":"test-model","choices":[{"message":{"role":"assistant","content":"Complete answer."},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`)
	}))
	defer server.Close()

	svc, _ := NewService(
		WithCompatibility(CompatibilityOpenAI),
		WithAPIEndpoint(server.URL),
		WithModelID("test-model"),
		WithStreaming(false),
	)
	defer svc.Close()

	var chunks []string
	msg, err := svc.GetStreamedMessage(context.Background(), &Request{
		Messages: []chat.Message{chat.NewUserMessage("hi")},
	}, func(delta string) bool {
		chunks = append(chunks, delta)
		return true
	})
	if err != nil {
		t.Fatalf("GetStreamedMessage: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "Complete answer." {
		t.Errorf("chunks = %q, want one chunk with the full text", chunks)
	}
	if msg.Stats == nil || msg.Stats.CompletionTokens != 3 {
		t.Errorf("Stats = %+v, want completion tokens 3", msg.Stats)
	}
}

func TestAnthropicMessageTranslation(t *testing.T) {
	toolCall := chat.ToolCall{
		ID:   "toolu_1",
		Type: "function",
		Function: chat.FunctionCall{
			Name:      "get_weather",
			Arguments: `{"city":"Berlin"}`,
		},
	}
	messages := []chat.Message{
		chat.NewSystemMessage("You are helpful."),
		chat.NewUserMessage("Weather in Berlin?"),
		func() chat.Message {
			m := chat.NewAssistantMessage("")
			m.ToolCalls = []chat.ToolCall{toolCall}
			return m
		}(),
		chat.NewToolMessage("toolu_1", "get_weather", `{"temp":21}`),
	}

	system, out := toAnthropicMessages(messages)

	if system != "You are helpful." {
		t.Errorf("system = %q, want extracted system text", system)
	}
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3 (user, assistant, tool results)", len(out))
	}
	if out[1]["role"] != "assistant" {
		t.Errorf("message 1 role = %v, want assistant", out[1]["role"])
	}
	blocks, ok := out[1]["content"].([]map[string]interface{})
	if !ok || len(blocks) != 1 || blocks[0]["type"] != "tool_use" {
		t.Fatalf("assistant content = %v, want one tool_use block", out[1]["content"])
	}
	if blocks[0]["id"] != "toolu_1" || blocks[0]["name"] != "get_weather" {
		t.Errorf("tool_use block = %v", blocks[0])
	}
	results, ok := out[2]["content"].([]map[string]interface{})
	if !ok || len(results) != 1 || results[0]["type"] != "tool_result" {
		t.Fatalf("tool result content = %v, want one tool_result block", out[2]["content"])
	}
	if results[0]["tool_use_id"] != "toolu_1" {
		t.Errorf("tool_use_id = %v, want toolu_1", results[0]["tool_use_id"])
	}
}

func TestAnthropicStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("anthropic-version header = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type":"message_start","message":{"model":"test-model"}}`,
			`{"type":"content_block_start","content_block":{"type":"text"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Let me check."}}`,
			`{"type":"content_block_stop"}`,
			`{"type":"content_block_start","content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`,
			`{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
			`{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"\"Berlin\"}"}}`,
			`{"type":"content_block_stop"}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", e)
		}
	}))
	defer server.Close()

	svc, _ := NewService(
		WithCompatibility(CompatibilityAnthropic),
		WithAPIEndpoint(server.URL),
		WithAPIKey("test"),
		WithModelID("test-model"),
	)
	defer svc.Close()

	var chunks []string
	msg, err := svc.GetStreamedMessage(context.Background(), &Request{
		Messages: []chat.Message{chat.NewUserMessage("weather?")},
	}, func(delta string) bool {
		chunks = append(chunks, delta)
		return true
	})
	if err != nil {
		t.Fatalf("GetStreamedMessage: %v", err)
	}

	if msg.Content != "Let me check." {
		t.Errorf("Content = %q", msg.Content)
	}
	if len(chunks) != 1 || chunks[0] != "Let me check." {
		t.Errorf("chunks = %q", chunks)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Function.Name != "get_weather" || tc.Function.Arguments != `{"city":"Berlin"}` {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestVertexContentsTranslation(t *testing.T) {
	messages := []chat.Message{
		chat.NewSystemMessage("You are helpful."),
		chat.NewUserMessage("hi"),
		chat.NewAssistantMessage("hello"),
		chat.NewToolMessage("id-1", "get_weather", `{"temp":21}`),
	}

	contents := toVertexContents(messages)

	// System becomes a user/model preamble pair.
	if len(contents) != 5 {
		t.Fatalf("got %d contents, want 5", len(contents))
	}
	wantRoles := []string{"user", "model", "user", "model", "function"}
	for i, want := range wantRoles {
		if contents[i]["role"] != want {
			t.Errorf("contents[%d] role = %v, want %s", i, contents[i]["role"], want)
		}
	}
}

func TestVertexStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("missing alt=sse query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"It is "}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"sunny."}]},"finishReason":"STOP"}]}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}))
	defer server.Close()

	svc, _ := NewService(
		WithCompatibility(CompatibilityVertexAI),
		WithVertexProject("my-project", "europe-west1"),
		WithAPIEndpoint(server.URL),
		WithModelID("gemini-pro"),
	)
	defer svc.Close()

	var chunks []string
	msg, err := svc.GetStreamedMessage(context.Background(), &Request{
		Messages: []chat.Message{chat.NewUserMessage("weather?")},
	}, func(delta string) bool {
		chunks = append(chunks, delta)
		return true
	})
	if err != nil {
		t.Fatalf("GetStreamedMessage: %v", err)
	}
	if msg.Content != "It is sunny." {
		t.Errorf("Content = %q", msg.Content)
	}
	if len(chunks) != 2 {
		t.Errorf("chunks = %q, want 2", chunks)
	}
}

func TestMockPlaysResponsesInOrder(t *testing.T) {
	mock := WithResponses(
		MockResponse{Content: "first"},
		MockResponse{Content: "second"},
	)

	for i, want := range []string{"first", "second", "second"} {
		msg, err := mock.GetStreamedMessage(context.Background(), &Request{}, nil)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if msg.Content != want {
			t.Errorf("call %d content = %q, want %q", i, msg.Content, want)
		}
	}
	if mock.CallCount() != 3 {
		t.Errorf("CallCount = %d, want 3", mock.CallCount())
	}
}
