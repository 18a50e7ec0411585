// Package flow composes the reply pipeline of a conversable agent.
//
// A pipeline is an ordered list of stages connected through a continuation:
// each stage receives the current request plus a Next function invoking the
// remainder of the chain, and either returns a final outcome (short-circuit)
// or delegates to Next. Agents compose, in order, the message store, tool
// use, termination / human input and LLM completion stages so tool results
// and termination decisions are settled before paying for a model call.
package flow

import (
	"fmt"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
)

// Request is the input of one pipeline run.
type Request struct {
	// Incoming is the raw message being received, or nil when the pipeline
	// is asked to reply to the existing conversation.
	Incoming any
	// ReplyRequested is false when the incoming message should only be
	// recorded.
	ReplyRequested bool
	// Messages is the conversation with the peer. The message store stage
	// fills it from the log.
	Messages []message.Message
	// Sender is the peer the reply is generated for. It may be nil.
	Sender core.Agent
	// Run carries the context, peer name and logger of this run.
	Run *core.RunContext
}

// Last returns the latest message of the conversation.
func (r *Request) Last() (message.Message, bool) {
	if len(r.Messages) == 0 {
		return message.Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// Peer returns the name of the peer being answered.
func (r *Request) Peer() string {
	if r.Run == nil {
		return ""
	}
	return r.Run.Peer
}

// Outcome is the result of a pipeline run.
type Outcome = core.Outcome

// Next invokes the remainder of the pipeline.
type Next func(req *Request) (Outcome, error)

// Stage is one unit of reply logic.
type Stage interface {
	// Name returns the stage identifier used in logs.
	Name() string
	// Handle either short-circuits with a final outcome or calls next.
	Handle(req *Request, next Next) (Outcome, error)
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	StageName string
	Fn        func(req *Request, next Next) (Outcome, error)
}

// Name implements Stage.
func (s StageFunc) Name() string { return s.StageName }

// Handle implements Stage.
func (s StageFunc) Handle(req *Request, next Next) (Outcome, error) { return s.Fn(req, next) }

// Pipeline runs stages in order. The continuation past the last stage
// returns core.Forward().
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline from the given stages.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Prepend inserts a stage at the head of the pipeline.
func (p *Pipeline) Prepend(s Stage) {
	p.stages = append([]Stage{s}, p.stages...)
}

// Insert places a stage at index i, clamped to the pipeline bounds.
func (p *Pipeline) Insert(i int, s Stage) {
	i = max(0, min(i, len(p.stages)))
	p.stages = append(p.stages[:i], append([]Stage{s}, p.stages[i:]...)...)
}

// Append adds a stage to the tail of the pipeline.
func (p *Pipeline) Append(s Stage) {
	p.stages = append(p.stages, s)
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the pipeline.
func (p *Pipeline) Run(req *Request) (Outcome, error) {
	if req == nil || req.Run == nil {
		return Outcome{}, fmt.Errorf("flow: request without run context")
	}
	return p.next(0)(req)
}

func (p *Pipeline) next(i int) Next {
	return func(req *Request) (Outcome, error) {
		if err := req.Run.Err(); err != nil {
			return Outcome{}, err
		}

		if i >= len(p.stages) {
			return core.Forward(), nil
		}

		stage := p.stages[i]

		out, err := stage.Handle(req, p.next(i+1))
		if err != nil {
			req.Run.LogDebug("flow.stage.error", "stage", stage.Name(), "peer", req.Peer(), "error", err.Error())
			return Outcome{}, err
		}

		return out, nil
	}
}
