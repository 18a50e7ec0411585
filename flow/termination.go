package flow

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/human"
	"github.com/hupe1980/agentchat/message"
)

const (
	// DefaultMaxConsecutiveAutoReply is the global auto-reply ceiling.
	DefaultMaxConsecutiveAutoReply = 100

	exitReply = "exit"

	// UserInterrupted is the synthetic result attached to calls a human
	// reply interrupts.
	UserInterrupted = "USER INTERRUPTED"

	// NoticeNoHumanInput is reported when a prompt returned nothing.
	NoticeNoHumanInput = "NO HUMAN INPUT RECEIVED."
	// NoticeAutoReply is reported when the agent falls back to auto reply
	// in a mode that may involve a human.
	NoticeAutoReply = "USING AUTO REPLY..."
)

// IsTerminationMsg is the default termination predicate: the content is
// exactly "TERMINATE".
func IsTerminationMsg(m message.Message) bool {
	return m.Content != nil && *m.Content == "TERMINATE"
}

// TerminationOptions configure a TerminationStage.
type TerminationOptions struct {
	Mode                    core.HumanInputMode
	MaxConsecutiveAutoReply int
	IsTermination           func(m message.Message) bool
	Input                   human.Input
	// Notify receives the NO HUMAN INPUT / AUTO REPLY notices.
	Notify    func(run *core.RunContext, notice string)
	Callbacks *CallbackManager
}

// TerminationStage decides per incoming message whether the conversation
// ends, a human answers, or the agent keeps auto-replying. It owns the
// consecutive auto-reply counter of every peer.
type TerminationStage struct {
	opts TerminationOptions

	mu         sync.Mutex
	counters   map[string]int
	maxPerPeer map[string]int
}

// NewTerminationStage creates the stage. Zero options fall back to mode
// TERMINATE, a ceiling of 100 and the default predicate.
func NewTerminationStage(optFns ...func(o *TerminationOptions)) *TerminationStage {
	opts := TerminationOptions{
		Mode:                    core.HumanInputTerminate,
		MaxConsecutiveAutoReply: DefaultMaxConsecutiveAutoReply,
		IsTermination:           IsTerminationMsg,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.IsTermination == nil {
		opts.IsTermination = IsTerminationMsg
	}

	return &TerminationStage{
		opts:       opts,
		counters:   make(map[string]int),
		maxPerPeer: make(map[string]int),
	}
}

// Name implements Stage.
func (s *TerminationStage) Name() string { return "termination" }

// Mode returns the configured human input mode.
func (s *TerminationStage) Mode() core.HumanInputMode { return s.opts.Mode }

// Counter returns the consecutive auto-reply counter for peer.
func (s *TerminationStage) Counter(peer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[peer]
}

// ResetCounter zeroes the counter of peer, or of every peer when peer is "".
func (s *TerminationStage) ResetCounter(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peer == "" {
		clear(s.counters)
		return
	}
	s.counters[peer] = 0
}

// MaxConsecutiveAutoReply returns the ceiling for peer, or the global
// ceiling when peer is "" or has no override.
func (s *TerminationStage) MaxConsecutiveAutoReply(peer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ceiling(peer)
}

// SetMaxConsecutiveAutoReply overrides the ceiling for peer. With peer ""
// the global ceiling changes and every override is replaced.
func (s *TerminationStage) SetMaxConsecutiveAutoReply(n int, peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peer == "" {
		s.opts.MaxConsecutiveAutoReply = n
		for k := range s.maxPerPeer {
			s.maxPerPeer[k] = n
		}
		return
	}
	s.maxPerPeer[peer] = n
}

func (s *TerminationStage) ceiling(peer string) int {
	if n, ok := s.maxPerPeer[peer]; ok {
		return n
	}
	return s.opts.MaxConsecutiveAutoReply
}

// Handle implements Stage.
func (s *TerminationStage) Handle(req *Request, next Next) (Outcome, error) {
	last, ok := req.Last()
	if !ok {
		return next(req)
	}

	peer := req.Peer()

	s.mu.Lock()
	counter := s.counters[peer]
	ceiling := s.ceiling(peer)
	s.mu.Unlock()

	var (
		reply   string
		noInput bool
	)

	switch {
	case s.opts.Mode == core.HumanInputAlways:
		in, err := s.prompt(req, fmt.Sprintf("Provide feedback to %s. Press enter to skip and use auto-reply, or type 'exit' to end the conversation: ", peer))
		if err != nil {
			return Outcome{}, err
		}
		noInput = in == ""
		reply = in
		if in == "" && s.opts.IsTermination(last) {
			reply = exitReply
		}

	case counter >= ceiling:
		if s.opts.Mode == core.HumanInputNever {
			reply = exitReply
			break
		}

		terminate := s.opts.IsTermination(last)
		text := fmt.Sprintf("Please give feedback to %s. Press enter to skip and use auto-reply, or type 'exit' to stop the conversation: ", peer)
		if terminate {
			text = fmt.Sprintf("Please give feedback to %s. Press enter or type 'exit' to stop the conversation: ", peer)
		}

		in, err := s.prompt(req, text)
		if err != nil {
			return Outcome{}, err
		}
		noInput = in == ""
		reply = in
		if in == "" && terminate {
			reply = exitReply
		}

	case s.opts.IsTermination(last):
		if s.opts.Mode == core.HumanInputNever {
			reply = exitReply
			break
		}

		in, err := s.prompt(req, fmt.Sprintf("Please give feedback to %s. Press enter or type 'exit' to stop the conversation: ", peer))
		if err != nil {
			return Outcome{}, err
		}
		noInput = in == ""
		reply = in
		if in == "" {
			reply = exitReply
		}
	}

	if noInput {
		s.notify(req.Run, NoticeNoHumanInput)
	}

	if reply == exitReply {
		s.ResetCounter(peer)

		req.Run.LogInfo("agent.chat.terminated", "agent", req.Run.AgentName(), "peer", peer, "turns", counter)
		s.opts.Callbacks.notify(req.Run, CallbackOnTermination, &CallbackContext{Peer: peer, Message: &last})

		return core.Exit(), nil
	}

	if reply != "" || ceiling == 0 {
		s.ResetCounter(peer)
		return core.Reply(humanReply(reply, last)), nil
	}

	s.mu.Lock()
	s.counters[peer]++
	s.mu.Unlock()

	if s.opts.Mode != core.HumanInputNever {
		s.notify(req.Run, NoticeAutoReply)
	}

	return next(req)
}

func (s *TerminationStage) prompt(req *Request, text string) (string, error) {
	if s.opts.Input == nil {
		return "", nil
	}

	reply, err := s.opts.Input.Prompt(req.Run.Context, text)
	if err != nil {
		return "", fmt.Errorf("human input: %w", err)
	}

	return reply, nil
}

func (s *TerminationStage) notify(run *core.RunContext, notice string) {
	if s.opts.Notify != nil {
		s.opts.Notify(run, notice)
	}
}

// humanReply builds the user message carrying the human's answer. Calls in
// the interrupted message receive a synthetic USER INTERRUPTED result so no
// request is left unanswered.
func humanReply(content string, interrupted message.Message) message.Message {
	m := message.New(message.RoleUser, content)

	if fc := interrupted.FunctionCall; fc != nil {
		m.ToolResponses = append(m.ToolResponses, message.ToolResponse{
			Role:    message.RoleFunction,
			Name:    fc.Name,
			Content: UserInterrupted,
		})
	}

	for _, tc := range interrupted.ToolCalls {
		m.ToolResponses = append(m.ToolResponses, message.ToolResponse{
			Role:       message.RoleTool,
			ToolCallID: tc.ID,
			Content:    UserInterrupted,
		})
	}

	return m
}
