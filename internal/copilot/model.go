// Package copilot lets residents, guards and admins manage visitors through a chat
// assistant. A language model picks operations from a fixed tool menu; the Bridge runs
// them through the lifecycle engine as the authenticated requester.
package copilot

import (
	"context"
	"encoding/json"
)

// Message roles understood by Model implementations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a model request to run one named tool.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolSpec describes a tool to the model. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one inference call. A nil Tools slice asks for text only.
type Request struct {
	Messages []Message
	Tools    []ToolSpec
}

// Inference is the model output. Either field may be empty.
type Inference struct {
	Text      string
	ToolCalls []ToolCall
}

// Model is a chat completion backend with tool calling.
type Model interface {
	Infer(ctx context.Context, req Request) (*Inference, error)
}
