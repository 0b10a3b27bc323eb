// Package chat defines the canonical, provider-agnostic conversation model.
//
// A conversation is an ordered, append-only sequence of Messages. The only
// permitted mutation is replacing the last message, which the assistant uses
// to publish cumulative text while a completion is still streaming. Consumers
// therefore always see either a longer list or a list whose final element
// changed, never edits in the middle.
package chat

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation.
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`

	// Role identifies the sender.
	Role Role `json:"role"`

	// Content is the text content. Empty for assistant messages that
	// consist solely of tool calls.
	Content string `json:"content"`

	// Name is optional and only set on tool messages.
	Name string `json:"name,omitempty"`

	// ToolCallID links a tool message to the assistant tool call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls are function invocations requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Stats carries optional generation metadata.
	Stats *Stats `json:"stats,omitempty"`
}

// ToolCall is a model-requested function invocation. It is answered by
// exactly one Message of role tool carrying the matching ToolCallID.
type ToolCall struct {
	// ID uniquely identifies this call within the conversation.
	ID string `json:"id"`

	// Type is always "function".
	Type string `json:"type"`

	// Function names the tool and carries its arguments.
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the tool name and its arguments as a JSON string,
// exactly as produced by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Stats records generation metadata for an assistant message.
type Stats struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	LatencyMs        int64  `json:"latency_ms,omitempty"`
}

// Tool describes a callable function offered to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one function: name, purpose, and a JSON Schema
// for its parameters.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool result message answering the given call.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		ID:         uuid.NewString(),
		Role:       RoleTool,
		Name:       name,
		ToolCallID: toolCallID,
		Content:    content,
	}
}

// NewTool creates a function tool definition.
func NewTool(name, description string, parameters map[string]any) Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// ParseArguments decodes the call's JSON argument string into a map.
// Invalid or empty argument strings decode to an empty map rather than
// failing, since models occasionally emit truncated JSON.
func (c ToolCall) ParseArguments() map[string]any {
	args := map[string]any{}
	if c.Function.Arguments != "" {
		_ = json.Unmarshal([]byte(c.Function.Arguments), &args)
	}
	return args
}

// ReplaceLast returns messages with the final element replaced. The input
// slice is not modified; callers publish the returned slice so concurrent
// readers never observe in-place mutation.
func ReplaceLast(messages []Message, msg Message) []Message {
	if len(messages) == 0 {
		return []Message{msg}
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	out[len(out)-1] = msg
	return out
}
