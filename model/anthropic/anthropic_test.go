package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_AlternatesAndMergesToolResults(t *testing.T) {
	msgs := []message.Message{
		message.New(message.RoleSystem, "be brief"),
		message.New(message.RoleUser, "add and multiply"),
		{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{
			{ID: "t1", Type: "function", Function: message.FunctionCall{Name: "add", Arguments: `{"a":1}`}},
			{ID: "t2", Type: "function", Function: message.FunctionCall{Name: "mul", Arguments: "not json"}},
		}},
		{Role: message.RoleTool, ToolCallID: "t1", Content: message.String("1")},
		{Role: message.RoleTool, ToolCallID: "t2", Content: message.String("2")},
		message.New(message.RoleAssistant, "done"),
	}

	out := buildMessages(msgs)
	require.Len(t, out, 4)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Len(t, out[1].Content, 2)
	assert.Equal(t, "user", string(out[2].Role))
	assert.Len(t, out[2].Content, 2, "consecutive tool results share one user turn")
	assert.Equal(t, "assistant", string(out[3].Role))

	system := extractSystem(msgs)
	require.Len(t, system, 1)
	assert.Equal(t, "be brief", system[0].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
		Name:        "add",
		Description: "Add numbers",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "number"}},
			"required":   []any{"a"},
		},
	}}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "add", tools[0].OfTool.Name)
	assert.Equal(t, []string{"a"}, tools[0].OfTool.InputSchema.Required)
}

func TestToolInput(t *testing.T) {
	assert.Equal(t, map[string]any{}, toolInput("{broken"))
	assert.Equal(t, `{"a":1}`, string(toolInput(`{"a":1}`).(json.RawMessage)))
}
