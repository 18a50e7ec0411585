package core

import (
	"fmt"
	"testing"

	"github.com/hupe1980/agentchat/message"
)

func messageFixture() message.Message { return message.New(message.RoleAssistant, "hi") }

func TestToolContext_Accessors(t *testing.T) {
	rc, _ := newRunContextForTest()
	tc := NewToolContext(rc, "call_1", "add")

	if tc.CallID() != "call_1" || tc.FunctionName() != "add" {
		t.Fatalf("unexpected call identity: %q %q", tc.CallID(), tc.FunctionName())
	}
	if tc.AgentName() != "assistant" || tc.Peer() != "user" || tc.ChatID() != "chat-1" {
		t.Fatalf("unexpected run identity")
	}
	if tc.Context() != rc.Context {
		t.Fatal("tool context must share the run context")
	}
	if tc.Logger() == nil {
		t.Fatal("logger must never be nil")
	}
}

func TestToolContext_LogAttributes(t *testing.T) {
	rc, logger := newRunContextForTest()
	NewToolContext(rc, "call_1", "add").LogDebug("tool.called")
	NewToolContext(rc, "", "legacy").LogDebug("tool.called")

	if got := fmt.Sprint(logger.args[0]); got != "[chat_id chat-1 function add tool_call_id call_1]" {
		t.Fatalf("args = %s", got)
	}
	if got := fmt.Sprint(logger.args[1]); got != "[chat_id chat-1 function legacy]" {
		t.Fatalf("args = %s", got)
	}
}

func TestToolContext_Validation(t *testing.T) {
	if (&ToolContext{}).Validate() == nil {
		t.Error("zero value should be invalid")
	}
	rc, _ := newRunContextForTest()
	if err := NewToolContext(rc, "", "legacy_fn").Validate(); err != nil {
		t.Errorf("legacy function call context should be valid: %v", err)
	}
}
