package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/agentchat/message"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
//
// Replies are chosen in this order: the next queued message (Enqueue), a
// canned response keyed by the last request message's content (AddResponse),
// and finally "Mock response to: <content>".
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	queue     []message.Message
	err       error
	requests  []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends scripted replies returned before any canned response.
func (m *MockModel) Enqueue(msgs ...message.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, msgs...)
}

// SetError makes every subsequent Generate call fail with err (nil clears it).
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// next picks the reply for req under the lock.
func (m *MockModel) next(req Request) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.err != nil {
		return message.Message{}, m.err
	}

	if len(m.queue) > 0 {
		reply := m.queue[0].Clone()
		m.queue = m.queue[1:]
		if reply.Role == "" {
			reply.Role = message.RoleAssistant
		}
		return reply, nil
	}

	if len(req.Messages) == 0 {
		return message.Message{}, fmt.Errorf("no messages provided")
	}

	input := req.Messages[len(req.Messages)-1].Text()

	full := m.responses[input]
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}

	return message.New(message.RoleAssistant, full), nil
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		reply, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}

		id := uuid.NewString()

		if req.Stream {
			for _, r := range reply.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					ID:      id,
					Model:   m.info.Name,
					Partial: true,
					Choices: []Choice{{Message: message.New(message.RoleAssistant, string(r))}},
				}:
				}
			}
		}

		prompt := 0
		for _, msg := range req.Messages {
			prompt += len(strings.Fields(msg.Text()))
		}
		completion := len(strings.Fields(reply.Text()))

		finish := "stop"
		if reply.HasCalls() {
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			ID:      id,
			Model:   m.info.Name,
			Choices: []Choice{{Message: reply, FinishReason: finish}},
			Usage:   &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
		}:
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
