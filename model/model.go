package model

import (
	"context"
	"errors"

	"github.com/hupe1980/agentchat/message"
)

// ErrNoResponse is returned by Complete when the model closed its stream
// without emitting a final response.
var ErrNoResponse = errors.New("model returned no final response")

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the flat OpenAI style message list sent to a model.
type Request struct {
	Messages []message.Message `json:"messages"`
	Tools    []ToolDefinition  `json:"tools,omitempty"`
	// CacheSeed enables response caching when non-nil; different seeds
	// produce independent cache entries for the same messages.
	CacheSeed *int `json:"cache_seed,omitempty"`
	Stream    bool `json:"stream,omitempty"`
}

// Usage captures token usage statistics for a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Choice is one candidate completion.
type Choice struct {
	Index        int             `json:"index"`
	Message      message.Message `json:"message"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Partial bool     `json:"partial"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
	Cost    float64  `json:"cost,omitempty"`
	Cached  bool     `json:"cached,omitempty"`
}

// Message returns the first choice's message, or false when there is none.
func (r Response) Message() (message.Message, bool) {
	if len(r.Choices) == 0 {
		return message.Message{}, false
	}
	return r.Choices[0].Message, true
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "compat", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the completion stage.
//
// Generate streams zero or more partial responses followed by one final
// response on the first channel. Failures are reported on the second channel.
// Implementations close both channels when done.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drains a Generate call and returns the final response. Partial
// chunks are handed to onPartial when it is non-nil.
func Complete(ctx context.Context, m Model, req Request, onPartial func(Response)) (*Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var final *Response

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if onPartial != nil {
					onPartial(resp)
				}
				continue
			}
			r := resp
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if final == nil {
		return nil, ErrNoResponse
	}

	return final, nil
}
