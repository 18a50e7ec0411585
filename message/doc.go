// Package message defines the conversational record exchanged between agents
// and the rules that turn loosely shaped input (plain strings, maps decoded
// from JSON, structs) into a canonical Message.
//
// The model mirrors the OpenAI chat completion message shape: role, nullable
// content, a legacy single function_call, plural tool_calls and the
// agent-side tool_responses aggregate. A Message is valid when at least one of
// Content, FunctionCall or ToolCalls is present.
package message
