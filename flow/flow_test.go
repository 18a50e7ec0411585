package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/session"
)

func newRequest(msgs ...message.Message) *Request {
	return &Request{
		ReplyRequested: true,
		Messages:       msgs,
		Run:            core.NewRunContext(context.Background(), core.AgentInfo{Name: "assistant"}, "user_proxy", logging.NoOpLogger{}),
	}
}

func recordStage(name string, trace *[]string) Stage {
	return StageFunc{StageName: name, Fn: func(req *Request, next Next) (Outcome, error) {
		*trace = append(*trace, name)
		return next(req)
	}}
}

func TestPipeline_OrderAndShortCircuit(t *testing.T) {
	var trace []string

	stop := StageFunc{StageName: "stop", Fn: func(_ *Request, _ Next) (Outcome, error) {
		trace = append(trace, "stop")
		return core.Reply(message.New(message.RoleAssistant, "done")), nil
	}}

	p := NewPipeline(recordStage("a", &trace), stop, recordStage("never", &trace))

	out, err := p.Run(newRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Final || out.Reply.Text() != "done" {
		t.Fatalf("expected final reply, got %+v", out)
	}
	if len(trace) != 2 || trace[0] != "a" || trace[1] != "stop" {
		t.Fatalf("unexpected trace %v", trace)
	}

	if got := p.Stages(); len(got) != 3 || got[2] != "never" {
		t.Fatalf("unexpected stages %v", got)
	}
}

func TestPipeline_EndForwards(t *testing.T) {
	var trace []string
	p := NewPipeline(recordStage("a", &trace))
	p.Append(recordStage("b", &trace))
	p.Prepend(recordStage("head", &trace))

	out, err := p.Run(newRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Final {
		t.Fatalf("expected non-final outcome")
	}
	if len(trace) != 3 || trace[0] != "head" {
		t.Fatalf("unexpected trace %v", trace)
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := newRequest()
	req.Run = req.Run.WithContext(ctx)

	_, err := NewPipeline().Run(req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, err := NewPipeline().Run(&Request{}); err == nil {
		t.Fatalf("expected error without run context")
	}
}

func TestMessageStoreStage(t *testing.T) {
	store := session.NewStore()

	var recorded []message.Message
	stage := NewMessageStoreStage(store, func(_ *core.RunContext, m message.Message, _ string) { recorded = append(recorded, m) })

	var seen []message.Message
	next := func(req *Request) (Outcome, error) {
		seen = req.Messages
		return core.Forward(), nil
	}

	t.Run("record only", func(t *testing.T) {
		req := newRequest()
		req.Incoming = "hello"
		req.ReplyRequested = false

		out, err := stage.Handle(req, next)
		if err != nil || out.Final {
			t.Fatalf("unexpected outcome %+v, %v", out, err)
		}
		if seen != nil {
			t.Fatalf("next must not run when no reply is requested")
		}
		if store.Len("user_proxy") != 1 || recorded[0].Role != message.RoleUser {
			t.Fatalf("message not recorded as user message")
		}
	})

	t.Run("reply requested loads history", func(t *testing.T) {
		req := newRequest()
		req.Incoming = map[string]any{"content": "second"}

		if _, err := stage.Handle(req, next); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seen) != 2 || seen[1].Text() != "second" {
			t.Fatalf("unexpected history %+v", seen)
		}
	})

	t.Run("invalid message leaves log untouched", func(t *testing.T) {
		req := newRequest()
		req.Incoming = map[string]any{"role": "user"}

		_, err := stage.Handle(req, next)
		if !errors.Is(err, message.ErrInvalidMessage) {
			t.Fatalf("expected ErrInvalidMessage, got %v", err)
		}
		if store.Len("user_proxy") != 2 {
			t.Fatalf("log mutated on rejection")
		}
	})
}
