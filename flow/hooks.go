package flow

import (
	"sync"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
)

// LastMessageHook rewrites the text of the last received message before a
// reply is generated. The conversation log keeps the original.
type LastMessageHook func(run *core.RunContext, content string) (string, error)

// ProcessMessageStage applies LastMessageHooks in registration order. Call
// requests and messages without text content pass through unchanged.
type ProcessMessageStage struct {
	mu    sync.RWMutex
	hooks []LastMessageHook
}

// NewProcessMessageStage creates a stage running hooks.
func NewProcessMessageStage(hooks ...LastMessageHook) *ProcessMessageStage {
	return &ProcessMessageStage{hooks: hooks}
}

// Add appends a hook.
func (s *ProcessMessageStage) Add(h LastMessageHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Name implements Stage.
func (s *ProcessMessageStage) Name() string { return "process_last_received_message" }

// Handle implements Stage.
func (s *ProcessMessageStage) Handle(req *Request, next Next) (Outcome, error) {
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()

	n := len(req.Messages)
	if len(hooks) == 0 || n == 0 {
		return next(req)
	}

	last := req.Messages[n-1]
	if last.Content == nil || last.HasCalls() {
		return next(req)
	}

	text := *last.Content
	for _, h := range hooks {
		var err error
		if text, err = h(req.Run, text); err != nil {
			return Outcome{}, err
		}
	}

	if text == *last.Content {
		return next(req)
	}

	processed := last.Clone()
	processed.Content = message.String(text)

	msgs := make([]message.Message, n)
	copy(msgs, req.Messages)
	msgs[n-1] = processed
	req.Messages = msgs

	return next(req)
}
