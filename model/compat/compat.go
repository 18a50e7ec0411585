// Package compat implements model.Model for OpenAI-compatible endpoints
// (local inference servers, proxies, Azure style gateways) using the
// community go-openai client, which accepts an arbitrary base URL.
package compat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
	goopenai "github.com/sashabaranov/go-openai"
)

// Options configure the compat adapter.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// Model talks to any endpoint implementing the OpenAI chat completions API.
type Model struct {
	client *goopenai.Client
	opts   Options
}

// NewModel creates a compat model. BaseURL defaults to the public OpenAI API.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       goopenai.GPT4oMini,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &Model{client: goopenai.NewClientWithConfig(cfg), opts: opts}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		creq := goopenai.ChatCompletionRequest{
			Model:       m.opts.Model,
			Messages:    toMessages(req.Messages),
			Temperature: m.opts.Temperature,
			MaxTokens:   m.opts.MaxTokens,
			Tools:       toTools(req.Tools),
		}

		if req.Stream {
			m.stream(ctx, creq, out, errCh)
			return
		}

		resp, err := m.client.CreateChatCompletion(ctx, creq)
		if err != nil {
			errCh <- fmt.Errorf("compat api error: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			errCh <- fmt.Errorf("no choices returned")
			return
		}

		choices := make([]model.Choice, 0, len(resp.Choices))
		for _, ch := range resp.Choices {
			choices = append(choices, model.Choice{
				Index:        ch.Index,
				Message:      fromMessage(ch.Message),
				FinishReason: string(ch.FinishReason),
			})
		}

		out <- model.Response{
			ID:      resp.ID,
			Model:   resp.Model,
			Choices: choices,
			Usage: &model.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
	}()

	return out, errCh
}

func (m *Model) stream(ctx context.Context, creq goopenai.ChatCompletionRequest, out chan<- model.Response, errCh chan<- error) {
	creq.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		errCh <- fmt.Errorf("compat streaming error: %w", err)
		return
	}
	defer stream.Close()

	var (
		id, finish string
		text       strings.Builder
		calls      []goopenai.ToolCall
	)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errCh <- fmt.Errorf("compat streaming error: %w", err)
			return
		}

		id = chunk.ID
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				out <- model.Response{
					ID:      chunk.ID,
					Model:   m.opts.Model,
					Partial: true,
					Choices: []model.Choice{{Message: message.New(message.RoleAssistant, ch.Delta.Content)}},
				}
			}
			calls = mergeToolCallDeltas(calls, ch.Delta.ToolCalls)
			if ch.FinishReason != "" {
				finish = string(ch.FinishReason)
			}
		}
	}

	out <- model.Response{
		ID:    id,
		Model: m.opts.Model,
		Choices: []model.Choice{{
			Message:      fromMessage(goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: text.String(), ToolCalls: calls}),
			FinishReason: finish,
		}},
	}
}

// mergeToolCallDeltas folds streamed tool call fragments into complete calls
// keyed by their index.
func mergeToolCallDeltas(calls []goopenai.ToolCall, deltas []goopenai.ToolCall) []goopenai.ToolCall {
	for _, d := range deltas {
		idx := len(calls)
		if d.Index != nil {
			idx = *d.Index
		}
		for len(calls) <= idx {
			calls = append(calls, goopenai.ToolCall{Type: goopenai.ToolTypeFunction})
		}
		if d.ID != "" {
			calls[idx].ID = d.ID
		}
		if d.Function.Name != "" {
			calls[idx].Function.Name = d.Function.Name
		}
		calls[idx].Function.Arguments += d.Function.Arguments
	}
	return calls
}

func toMessages(msgs []message.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		cm := goopenai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Text(),
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		if cm.Role == "" {
			cm.Role = goopenai.ChatMessageRoleUser
		}
		if fc := msg.FunctionCall; fc != nil {
			cm.FunctionCall = &goopenai.FunctionCall{Name: fc.Name, Arguments: fc.Arguments}
		}
		for _, tc := range msg.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, goopenai.ToolCall{
				ID:       tc.ID,
				Type:     goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
		out = append(out, cm)
	}
	return out
}

func toTools(defs []model.ToolDefinition) []goopenai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]goopenai.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return tools
}

func fromMessage(cm goopenai.ChatCompletionMessage) message.Message {
	msg := message.Message{Role: message.RoleAssistant}
	if cm.Content != "" || (len(cm.ToolCalls) == 0 && cm.FunctionCall == nil) {
		msg.Content = message.String(cm.Content)
	}
	if cm.FunctionCall != nil {
		msg.FunctionCall = &message.FunctionCall{Name: cm.FunctionCall.Name, Arguments: cm.FunctionCall.Arguments}
	}
	for _, tc := range cm.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: message.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	return msg
}

// Info returns metadata describing this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "compat",
		SupportsTools: true,
	}
}
