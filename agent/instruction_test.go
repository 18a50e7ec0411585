package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/logging"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*core.RunContext) (string, error) { return m.text, m.err }

func newTestRunContext() *core.RunContext {
	return core.NewRunContext(context.Background(), core.AgentInfo{Name: "TestAgent", Type: "test"}, "peer", logging.NoOpLogger{})
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	got, err := inst.Resolve(newTestRunContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "static instruction" || inst.Text() != got {
		t.Fatalf("unexpected instruction %q", got)
	}
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic"})
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(newTestRunContext())
	if err != nil || got != "dynamic" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}

	failing := NewInstructionFromProvider(mockProvider{err: errors.New("boom")})
	if _, err := failing.Resolve(newTestRunContext()); err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		return "You are talking to " + rc.Peer, nil
	})
	got, err := inst.Resolve(newTestRunContext())
	if err != nil || got != "You are talking to peer" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}
