// Package modelclient adapts multimodal chat providers to the single
// request/response contract the decision loop depends on: text+image
// messages in, a DecisionBundle-shaped reply out, with the bundle's JSON
// schema pushed down to the provider when it supports structured output.
package modelclient

import (
	"context"
	"encoding/json"

	"github.com/deskagent/core/internal/toolregistry"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn. ImageBase64, when non-empty, is a base64
// JPEG attached alongside the text content.
type Message struct {
	Role        Role
	Text        string
	ImageBase64 string
}

// ChatRequest carries one round's messages, the current tool specs, and
// the response schema the provider should enforce.
type ChatRequest struct {
	System         string
	Messages       []Message
	Tools          []toolregistry.Spec
	ResponseSchema json.RawMessage
	MaxTokens      int
}

// ToolRequest is a provider-reported tool invocation.
type ToolRequest struct {
	ID     string
	Name   string
	Params json.RawMessage
}

// ChatResponse is the provider's reply: assistant text (expected to be a
// DecisionBundle) plus any tool invocations it requested instead of, or
// alongside, the text.
type ChatResponse struct {
	Text         string
	ToolRequests []ToolRequest
}

// Client is the provider-agnostic chat surface. Implementations must be
// safe to call from the decision-loop goroutine only; they are not
// required to be concurrency-safe.
type Client interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
