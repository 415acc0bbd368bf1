package model

import (
	"context"
	"iter"
)

// Role identifies message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolDefinition describes a callable tool for model planning.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model-emitted tool invocation request.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
	// ThoughtSignature carries provider-specific chain-of-thought signature
	// required by some providers (for example Gemini) to validate tool loops.
	ThoughtSignature string
}

// ToolResponse is a tool execution result returned to model context.
type ToolResponse struct {
	ID     string
	Name   string
	Result map[string]any
}

// Blob is inline binary media attached to a user turn.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Message is a single turn element in model context.
//
// A user message may carry inline media in addition to text; media parts
// precede the text part on the wire. A tool message carries the complete
// result batch for the tool calls of the preceding assistant turn, so one
// assistant turn with N calls is answered by exactly one tool message with
// N responses.
type Message struct {
	Role          Role
	Text          string
	Thought       string
	Media         []Blob
	ToolCalls     []ToolCall
	ToolResponses []ToolResponse
}

// Request is a provider-agnostic model request carrying the full transcript.
type Request struct {
	Messages []Message
	Tools    []ToolDefinition
	Stream   bool
}

// Usage reports model token usage (best-effort).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a provider-agnostic model response chunk.
type Response struct {
	Message      Message
	Partial      bool
	TurnComplete bool
	Usage        Usage
	Model        string
	Provider     string
}

// LLM is the model abstraction used by the session layer.
type LLM interface {
	Name() string
	Generate(context.Context, *Request) iter.Seq2[*Response, error]
}
