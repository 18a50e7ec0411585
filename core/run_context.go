package core

import (
	"context"

	"github.com/hupe1980/agentchat/logging"
)

type chatIDKey struct{}

// WithChatID returns a context carrying the identifier of the running chat.
func WithChatID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, chatIDKey{}, id)
}

// ChatIDFrom returns the chat identifier stored by WithChatID, or "".
func ChatIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(chatIDKey{}).(string)
	return id
}

type silentKey struct{}

// WithSilent returns a context that suppresses transcript printing of the
// messages received under it.
func WithSilent(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

// IsSilent reports whether ctx was marked by WithSilent.
func IsSilent(ctx context.Context) bool {
	v, _ := ctx.Value(silentKey{}).(bool)
	return v
}

// RunContext carries the execution scope of one reply generation: the ambient
// cancellation Context, the replying agent, the peer being answered and the
// logger stages should use. Records logged through it carry the chat id.
type RunContext struct {
	Context context.Context
	ChatID  string
	Agent   AgentInfo
	Peer    string

	*runLogger
}

// NewRunContext constructs a RunContext. The chat id is taken from ctx.
func NewRunContext(ctx context.Context, agent AgentInfo, peer string, logger logging.Logger) *RunContext {
	chatID := ChatIDFrom(ctx)

	return &RunContext{
		Context:   ctx,
		ChatID:    chatID,
		Agent:     agent,
		Peer:      peer,
		runLogger: newRunLogger(logger, chatID),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// AgentName returns the logical agent name for this run.
func (rc *RunContext) AgentName() string { return rc.Agent.Name }

// WithContext returns a shallow copy bound to ctx.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}
