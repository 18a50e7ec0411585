package testutil

import (
	"github.com/hupe1980/agentchat/message"
)

// ConversationBuilder provides a fluent helper for constructing message
// histories in tests.
// Example:
//
//	msgs := NewConversation().
//	    User("What is 2 + 3?").
//	    FunctionCall("add", `{"a": 2, "b": 3}`).
//	    FunctionResult("add", "5").
//	    Assistant("TERMINATE").
//	    Build()
type ConversationBuilder struct {
	msgs []message.Message
}

// NewConversation creates an empty builder.
func NewConversation() *ConversationBuilder { return &ConversationBuilder{} }

// Add appends an arbitrary message (chainable).
func (b *ConversationBuilder) Add(m message.Message) *ConversationBuilder {
	b.msgs = append(b.msgs, m)
	return b
}

// System appends a system message (chainable).
func (b *ConversationBuilder) System(t string) *ConversationBuilder {
	return b.Add(message.New(message.RoleSystem, t))
}

// User appends a user message (chainable).
func (b *ConversationBuilder) User(t string) *ConversationBuilder {
	return b.Add(message.New(message.RoleUser, t))
}

// Assistant appends an assistant message (chainable).
func (b *ConversationBuilder) Assistant(t string) *ConversationBuilder {
	return b.Add(message.New(message.RoleAssistant, t))
}

// FunctionCall appends an assistant message requesting the legacy single
// function call with the given JSON arguments (chainable).
func (b *ConversationBuilder) FunctionCall(name, args string) *ConversationBuilder {
	return b.Add(message.Message{
		Role:         message.RoleAssistant,
		FunctionCall: &message.FunctionCall{Name: name, Arguments: args},
	})
}

// FunctionResult appends the function role answer to a function call
// (chainable).
func (b *ConversationBuilder) FunctionResult(name, content string) *ConversationBuilder {
	return b.Add(message.Message{
		Role:    message.RoleFunction,
		Name:    name,
		Content: message.String(content),
	})
}

// ToolCalls appends an assistant message requesting the given tool calls
// (chainable). Use Call to build the entries.
func (b *ConversationBuilder) ToolCalls(calls ...message.ToolCall) *ConversationBuilder {
	return b.Add(message.Message{Role: message.RoleAssistant, ToolCalls: calls})
}

// ToolResults appends an aggregate message of role carrying the individual
// responses and content as its flat text (chainable). Use Result to build
// the entries.
func (b *ConversationBuilder) ToolResults(role message.Role, content string, responses ...message.ToolResponse) *ConversationBuilder {
	return b.Add(message.Message{
		Role:          role,
		Content:       message.String(content),
		ToolResponses: responses,
	})
}

// Build returns a copy of the accumulated messages.
func (b *ConversationBuilder) Build() []message.Message {
	out := make([]message.Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// Last returns the latest message; it panics on an empty builder.
func (b *ConversationBuilder) Last() message.Message { return b.msgs[len(b.msgs)-1] }

// Call builds a function tool call entry.
func Call(id, name, args string) message.ToolCall {
	return message.ToolCall{ID: id, Type: "function", Function: message.FunctionCall{Name: name, Arguments: args}}
}

// Result builds a tool role response entry.
func Result(id, content string) message.ToolResponse {
	return message.ToolResponse{ToolCallID: id, Role: message.RoleTool, Content: content}
}
