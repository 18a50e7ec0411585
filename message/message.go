package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrInvalidMessage is returned when raw input cannot be converted into a
// valid chat message.
var ErrInvalidMessage = errors.New("invalid message")

// Role identifies the author category of a message.
type Role string

const (
	// RoleSystem marks system prompts prepended before model calls.
	RoleSystem Role = "system"
	// RoleUser marks messages received from a peer or a human.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the owning agent.
	RoleAssistant Role = "assistant"
	// RoleFunction marks legacy function call results.
	RoleFunction Role = "function"
	// RoleTool marks tool call results.
	RoleTool Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction, RoleTool:
		return true
	}
	return false
}

// FunctionCall is a model requested invocation of a named function.
// Arguments holds the raw JSON text emitted by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one entry of a plural tool call request.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// ToolResponse is the result of executing a single tool or function call.
type ToolResponse struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Role       Role   `json:"role"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content"`
}

// Message returns the flat chat message representation of the response.
func (r ToolResponse) Message() Message {
	return Message{
		Content:    String(r.Content),
		Role:       r.Role,
		ToolCallID: r.ToolCallID,
		Name:       r.Name,
	}
}

// Message is the canonical conversational record.
type Message struct {
	Content       *string        `json:"content"`
	Role          Role           `json:"role,omitempty"`
	FunctionCall  *FunctionCall  `json:"function_call,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	ToolResponses []ToolResponse `json:"tool_responses,omitempty"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
	Name          string         `json:"name,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// String returns a pointer to s. Useful for the nullable Content field.
func String(s string) *string { return &s }

// Text builds a content-only message without a role; the role is assigned
// when the message is appended to a conversation.
func Text(s string) Message { return Message{Content: String(s)} }

// New builds a content message with an explicit role.
func New(role Role, content string) Message { return Message{Role: role, Content: String(content)} }

// Text returns the content or the empty string when content is null.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasCalls reports whether the message requests a function or tool execution.
func (m Message) HasCalls() bool { return m.FunctionCall != nil || len(m.ToolCalls) > 0 }

// Clone returns a deep copy so callers can mutate the result freely.
func (m Message) Clone() Message {
	c := m
	if m.Content != nil {
		c.Content = String(*m.Content)
	}
	if m.FunctionCall != nil {
		fc := *m.FunctionCall
		c.FunctionCall = &fc
	}
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(c.ToolCalls, m.ToolCalls)
	}
	if m.ToolResponses != nil {
		c.ToolResponses = make([]ToolResponse, len(m.ToolResponses))
		copy(c.ToolResponses, m.ToolResponses)
	}
	if m.Context != nil {
		c.Context = maps.Clone(m.Context)
	}
	return c
}

// Normalize converts raw input into a validated Message. Accepted inputs are
// string (wrapped as content), Message, *Message and map[string]any (decoded
// through its JSON form). The returned message never aliases the input.
func Normalize(raw any) (Message, error) {
	var m Message

	switch v := raw.(type) {
	case string:
		m = Text(v)
	case Message:
		m = v.Clone()
	case *Message:
		if v == nil {
			return Message{}, fmt.Errorf("%w: nil message", ErrInvalidMessage)
		}
		m = v.Clone()
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if err := json.Unmarshal(b, &m); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	default:
		return Message{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidMessage, raw)
	}

	for i := range m.ToolCalls {
		if m.ToolCalls[i].Type == "" {
			m.ToolCalls[i].Type = "function"
		}
	}

	if err := Validate(m); err != nil {
		return Message{}, err
	}

	return m, nil
}

// ForRole normalizes raw and applies the conversation role rules used when a
// message is appended to a log: function and tool roles are kept, any message
// carrying a function or tool call becomes an assistant message, everything
// else takes roleHint.
func ForRole(raw any, roleHint Role) (Message, error) {
	m, err := Normalize(raw)
	if err != nil {
		return Message{}, err
	}

	if m.Role != RoleFunction && m.Role != RoleTool {
		m.Role = roleHint
	}

	if m.HasCalls() {
		m.Role = RoleAssistant
	}

	return m, nil
}

// Validate checks the message invariant and its sub-records.
func Validate(m Message) error {
	if m.Content == nil && m.FunctionCall == nil && len(m.ToolCalls) == 0 {
		return fmt.Errorf("%w: either content, function_call or tool_calls must be provided", ErrInvalidMessage)
	}

	if m.Role != "" && !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
	}

	if m.FunctionCall != nil && m.FunctionCall.Name == "" {
		return fmt.Errorf("%w: function_call without name", ErrInvalidMessage)
	}

	for i, tc := range m.ToolCalls {
		if tc.ID == "" {
			return fmt.Errorf("%w: tool_calls[%d] without id", ErrInvalidMessage, i)
		}
		if tc.Function.Name == "" {
			return fmt.Errorf("%w: tool_calls[%d] without function name", ErrInvalidMessage, i)
		}
	}

	for i, tr := range m.ToolResponses {
		switch tr.Role {
		case RoleTool:
			if tr.ToolCallID == "" {
				return fmt.Errorf("%w: tool_responses[%d] without tool_call_id", ErrInvalidMessage, i)
			}
		case RoleFunction:
			if tr.Name == "" {
				return fmt.Errorf("%w: tool_responses[%d] without name", ErrInvalidMessage, i)
			}
		default:
			return fmt.Errorf("%w: tool_responses[%d] has role %q", ErrInvalidMessage, i, tr.Role)
		}
	}

	return nil
}
