// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming + function/tool calling). It
// adapts agentchat's flat message list into the SDK's message params and back.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
	"github.com/openai/openai-go"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool calls when the finish reason is
// emitted.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// PricePer1KTokens, when set, is used to fill Response.Cost as
	// (prompt, completion) dollars per thousand tokens.
	PricePer1KTokens [2]float64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req.Messages))
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts the flat agentchat history into OpenAI message params.
func buildMessages(msgs []message.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		text := msg.Text()
		switch msg.Role {
		case message.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case message.RoleTool:
			messages = append(messages, openai.ToolMessage(text, msg.ToolCallID))
		case message.RoleFunction:
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfFunction: &openai.ChatCompletionFunctionMessageParam{
				Name:    msg.Name,
				Content: openai.String(text),
			}})
		case message.RoleAssistant:
			if !msg.HasCalls() {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			param := &openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
			if msg.Content != nil {
				param.Content.OfString = openai.String(text)
			}
			if msg.FunctionCall != nil {
				param.FunctionCall = openai.ChatCompletionAssistantMessageParamFunctionCall{
					Name:      msg.FunctionCall.Name,
					Arguments: msg.FunctionCall.Arguments,
				}
			}
			for _, tc := range msg.ToolCalls {
				param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: param})
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming processes streaming responses and forwards partial / final events.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var textBuilder strings.Builder
	toolAgg := map[int64]*aggCall{}
	var (
		id, finish string
		usage      *model.Usage
	)
	for stream.Next() {
		ck := stream.Current()
		id = ck.ID
		if ck.Usage.TotalTokens > 0 {
			usage = &model.Usage{
				PromptTokens:     int(ck.Usage.PromptTokens),
				CompletionTokens: int(ck.Usage.CompletionTokens),
				TotalTokens:      int(ck.Usage.TotalTokens),
			}
		}
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				out <- model.Response{
					ID:      ck.ID,
					Model:   m.opts.Model,
					Partial: true,
					Choices: []model.Choice{{Message: message.New(message.RoleAssistant, ch.Delta.Content)}},
				}
			}
			aggregateToolCallDeltas(ch, toolAgg)
			if ch.FinishReason != "" {
				finish = string(ch.FinishReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
		return
	}
	final := model.Response{
		ID:      id,
		Model:   m.opts.Model,
		Choices: []model.Choice{{Message: finalMessage(&textBuilder, toolAgg), FinishReason: finish}},
		Usage:   usage,
	}
	final.Cost = m.cost(usage)
	out <- final
}

func aggregateToolCallDeltas(ch openai.ChatCompletionChunkChoice, agg map[int64]*aggCall) {
	for _, tc := range ch.Delta.ToolCalls {
		ac, ok := agg[tc.Index]
		if !ok {
			ac = &aggCall{}
			agg[tc.Index] = ac
		}
		if tc.ID != "" {
			ac.id = tc.ID
		}
		if tc.Function.Name != "" {
			ac.name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			ac.args += tc.Function.Arguments
		}
	}
}

// finalMessage assembles the streamed text and tool calls in index order.
func finalMessage(builder *strings.Builder, toolAgg map[int64]*aggCall) message.Message {
	msg := message.Message{Role: message.RoleAssistant}
	if builder.Len() > 0 || len(toolAgg) == 0 {
		msg.Content = message.String(builder.String())
	}
	idx := make([]int64, 0, len(toolAgg))
	for i := range toolAgg {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	for _, i := range idx {
		ac := toolAgg[i]
		msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
			ID:       ac.id,
			Type:     "function",
			Function: message.FunctionCall{Name: ac.name, Arguments: ac.args},
		})
	}
	return msg
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	choices := make([]model.Choice, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		msg := message.Message{Role: message.RoleAssistant}
		if ch.Message.Content != "" || (len(ch.Message.ToolCalls) == 0 && ch.Message.FunctionCall.Name == "") {
			msg.Content = message.String(ch.Message.Content)
		}
		if ch.Message.FunctionCall.Name != "" {
			msg.FunctionCall = &message.FunctionCall{Name: ch.Message.FunctionCall.Name, Arguments: ch.Message.FunctionCall.Arguments}
		}
		for _, tc := range ch.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: message.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
		choices = append(choices, model.Choice{Index: int(ch.Index), Message: msg, FinishReason: string(ch.FinishReason)})
	}
	usage := &model.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	out <- model.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: choices,
		Usage:   usage,
		Cost:    m.cost(usage),
	}
}

func (m *Model) cost(u *model.Usage) float64 {
	if u == nil {
		return 0
	}
	return float64(u.PromptTokens)/1000*m.opts.PricePer1KTokens[0] +
		float64(u.CompletionTokens)/1000*m.opts.PricePer1KTokens[1]
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
