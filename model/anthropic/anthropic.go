// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate adapts the Anthropic Messages API (with tool use) into
// model.Response events. Streaming requests are served with a single final
// response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}

		if systemBlocks := extractSystem(req.Messages); len(systemBlocks) > 0 {
			params.System = systemBlocks
		}

		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		msg := message.Message{Role: message.RoleAssistant}
		var text string

		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.AsText().Text
			case "tool_use":
				toolBlock := block.AsToolUse()
				args := "{}"
				if len(toolBlock.Input) > 0 {
					args = string(toolBlock.Input)
				}
				msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
					ID:       toolBlock.ID,
					Type:     "function",
					Function: message.FunctionCall{Name: toolBlock.Name, Arguments: args},
				})
			}
		}

		if text != "" || len(msg.ToolCalls) == 0 {
			msg.Content = message.String(text)
		}

		finishReason := "stop"
		switch resp.StopReason {
		case "":
		case "tool_use":
			finishReason = "tool_calls"
		case "max_tokens":
			finishReason = "length"
		default:
			finishReason = string(resp.StopReason)
		}

		out <- model.Response{
			ID:      resp.ID,
			Model:   string(resp.Model),
			Choices: []model.Choice{{Message: msg, FinishReason: finishReason}},
			Usage: &model.Usage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

// turn is one alternating role entry before conversion.
type turn struct {
	user   bool
	blocks []anthropic.ContentBlockParamUnion
}

// legacyCallID builds the synthetic tool_use id for a legacy function call.
func legacyCallID(name string) string { return "fn_" + name }

// buildMessages converts the flat history into alternating user / assistant
// messages. Tool and function results become tool_result blocks on the user
// side; consecutive entries of the same side are merged.
func buildMessages(msgs []message.Message) []anthropic.MessageParam {
	var turns []turn

	push := func(user bool, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].user == user {
			turns[n-1].blocks = append(turns[n-1].blocks, blocks...)
			return
		}
		turns = append(turns, turn{user: user, blocks: blocks})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			continue
		case message.RoleTool:
			push(true, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false))
		case message.RoleFunction:
			push(true, anthropic.NewToolResultBlock(legacyCallID(msg.Name), msg.Text(), false))
		case message.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Text() != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text()))
			}
			if fc := msg.FunctionCall; fc != nil {
				blocks = append(blocks, anthropic.NewToolUseBlock(legacyCallID(fc.Name), toolInput(fc.Arguments), fc.Name))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, toolInput(tc.Function.Arguments), tc.Function.Name))
			}
			push(false, blocks...)
		default:
			if msg.Text() != "" {
				push(true, anthropic.NewTextBlock(msg.Text()))
			}
		}
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.user {
			out = append(out, anthropic.NewUserMessage(t.blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(t.blocks...))
		}
	}

	return out
}

// toolInput returns the arguments as raw JSON, falling back to an empty object.
func toolInput(args string) any {
	if args != "" && json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	return map[string]any{}
}

// extractSystem collects system messages as system blocks.
func extractSystem(msgs []message.Message) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	for _, msg := range msgs {
		if msg.Role == message.RoleSystem && msg.Text() != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Text()})
		}
	}

	return systemBlocks
}

// buildTools converts function definitions to Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			switch required := params["required"].(type) {
			case []string:
				inputSchema.Required = required
			case []any:
				for _, r := range required {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if tool.Function.Description != "" && anthropicTools[i].OfTool != nil {
			anthropicTools[i].OfTool.Description = anthropic.String(tool.Function.Description)
		}
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
