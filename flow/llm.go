package flow

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
	"github.com/hupe1980/agentchat/tool"
)

// LLMOptions configure an LLMStage.
type LLMOptions struct {
	// Model is the completion backend. A nil model disables the stage.
	Model model.Model
	// SystemMessages returns the messages prepended to every request.
	SystemMessages func(run *core.RunContext) ([]message.Message, error)
	// Tools returns the function schemas advertised to the model.
	Tools func() []model.ToolDefinition
	// CacheSeed enables response caching when the model is wrapped with
	// model.WithCache.
	CacheSeed *int
	// AllowTemplate renders message content against the latest message's
	// context.
	AllowTemplate bool
	Stream        bool
	OnPartial     func(model.Response)
	// OnResponse observes every successful completion (usage accounting).
	OnResponse func(*model.Response)
	Callbacks  *CallbackManager
}

// LLMStage asks the model for the reply. It is the last stage of an agent
// pipeline.
type LLMStage struct {
	opts LLMOptions
}

// NewLLMStage creates the stage.
func NewLLMStage(optFns ...func(o *LLMOptions)) *LLMStage {
	var opts LLMOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LLMStage{opts: opts}
}

// Name implements Stage.
func (s *LLMStage) Name() string { return "llm" }

// Enabled reports whether a model is configured.
func (s *LLMStage) Enabled() bool { return s.opts.Model != nil }

type llmCallLogger interface {
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
}

// Handle implements Stage.
func (s *LLMStage) Handle(req *Request, next Next) (Outcome, error) {
	if s.opts.Model == nil {
		return next(req)
	}

	var system []message.Message
	if s.opts.SystemMessages != nil {
		var err error
		if system, err = s.opts.SystemMessages(req.Run); err != nil {
			return Outcome{}, fmt.Errorf("resolve system message: %w", err)
		}
	}

	all := make([]message.Message, 0, len(system)+len(req.Messages))
	all = append(all, system...)
	all = append(all, req.Messages...)

	msgs, err := instantiateAll(all, s.opts.AllowTemplate)
	if err != nil {
		return Outcome{}, err
	}

	mreq := model.Request{
		Messages:  FlattenToolResponses(msgs),
		CacheSeed: s.opts.CacheSeed,
		Stream:    s.opts.Stream,
	}
	if s.opts.Tools != nil {
		mreq.Tools = s.opts.Tools()
	}

	cbCtx := &CallbackContext{Run: req.Run, Peer: req.Peer(), Request: &mreq}
	if err := s.opts.Callbacks.ExecuteCallbacks(req.Run.Context, CallbackBeforeModel, cbCtx); err != nil {
		return Outcome{}, err
	}

	info := s.opts.Model.Info()
	start := time.Now()

	resp, err := model.Complete(req.Run.Context, s.opts.Model, mreq, s.opts.OnPartial)

	s.logCall(req, info.Name, resp, time.Since(start), err)

	if err != nil {
		cbCtx.Err = err
		s.opts.Callbacks.notify(req.Run, CallbackOnError, cbCtx)

		return Outcome{}, fmt.Errorf("model %s: %w", info.Name, err)
	}

	if s.opts.OnResponse != nil {
		s.opts.OnResponse(resp)
	}

	reply, ok := resp.Message()
	if !ok {
		req.Run.LogWarn("agent.llm.empty_response", "agent", req.Run.AgentName(), "model", info.Name)
		return next(req)
	}

	reply = sanitizeCalls(reply.Clone())
	if reply.Role == "" {
		reply.Role = message.RoleAssistant
	}

	cbCtx.Response = resp
	cbCtx.Message = &reply
	s.opts.Callbacks.notify(req.Run, CallbackAfterModel, cbCtx)

	return core.Reply(reply), nil
}

func (s *LLMStage) logCall(req *Request, name string, resp *model.Response, dur time.Duration, err error) {
	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}

	if l, ok := req.Run.Logger().(llmCallLogger); ok {
		l.LogLLMCall(name, tokens, dur, err == nil, err)
		return
	}

	if err != nil {
		req.Run.LogError("agent.llm.error", "agent", req.Run.AgentName(), "model", name, "error", err.Error())
		return
	}

	req.Run.LogInfo("agent.llm.completed", "agent", req.Run.AgentName(), "model", name,
		"tokens", tokens, "duration_ms", dur.Milliseconds(), "cached", resp.Cached)
}

// FlattenToolResponses expands messages carrying tool_responses into the
// flat sequence chat backends expect: the individual responses, followed by
// the parent without its tool_responses unless the parent is itself a tool
// message.
func FlattenToolResponses(msgs []message.Message) []message.Message {
	out := make([]message.Message, 0, len(msgs))

	for _, m := range msgs {
		if len(m.ToolResponses) == 0 {
			out = append(out, m)
			continue
		}

		for _, tr := range m.ToolResponses {
			out = append(out, tr.Message())
		}

		if m.Role != message.RoleTool {
			parent := m.Clone()
			parent.ToolResponses = nil
			out = append(out, parent)
		}
	}

	return out
}

// instantiateAll renders every message against the latest message's
// context and strips the context from the request.
func instantiateAll(msgs []message.Message, allowTemplate bool) ([]message.Message, error) {
	if len(msgs) == 0 {
		return msgs, nil
	}

	ctx := msgs[len(msgs)-1].Context
	out := make([]message.Message, len(msgs))

	for i, m := range msgs {
		m.Context = ctx

		inst, err := message.Instantiate(m, allowTemplate)
		if err != nil {
			return nil, err
		}

		inst.Context = nil
		out[i] = inst
	}

	return out, nil
}

func sanitizeCalls(m message.Message) message.Message {
	if m.FunctionCall != nil {
		m.FunctionCall.Name = tool.SanitizeName(m.FunctionCall.Name)
	}
	for i := range m.ToolCalls {
		m.ToolCalls[i].Function.Name = tool.SanitizeName(m.ToolCalls[i].Function.Name)
		if m.ToolCalls[i].Type == "" {
			m.ToolCalls[i].Type = "function"
		}
	}
	return m
}
