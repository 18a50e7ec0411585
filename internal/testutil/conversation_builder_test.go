package testutil

import (
	"testing"

	"github.com/hupe1980/agentchat/message"
)

func TestConversationBuilder(t *testing.T) {
	b := NewConversation().
		System("be brief").
		User("What is 2 + 3?").
		FunctionCall("add", `{"a": 2, "b": 3}`).
		FunctionResult("add", "5").
		ToolCalls(Call("c1", "add", `{}`)).
		ToolResults(message.RoleTool, "aggregate", Result("c1", "0")).
		Assistant("TERMINATE")

	msgs := b.Build()
	if len(msgs) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(msgs))
	}

	for i, m := range msgs {
		if err := message.Validate(m); err != nil {
			t.Fatalf("message %d invalid: %v", i, err)
		}
	}

	if msgs[2].FunctionCall.Name != "add" || msgs[3].Role != message.RoleFunction {
		t.Fatalf("unexpected function call round trip: %+v %+v", msgs[2], msgs[3])
	}
	if msgs[5].ToolResponses[0].ToolCallID != "c1" {
		t.Fatalf("unexpected tool response: %+v", msgs[5])
	}
	if b.Last().Text() != "TERMINATE" {
		t.Fatalf("unexpected last message %q", b.Last().Text())
	}

	msgs[0] = message.Text("mutated")
	if b.Build()[0].Text() != "be brief" {
		t.Fatal("Build must return a copy")
	}
}
