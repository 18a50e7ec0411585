package core

import (
	"context"
	"fmt"
	"strings"
)

// Agent defines the interface every conversation participant implements.
//
// Agents exchange messages pairwise: Send records the outgoing message in the
// sender's own log and hands it to the recipient's Receive, which records it
// and, when a reply is requested, runs the recipient's reply pipeline and sends
// the result back. Messages may be given as a string, a message.Message or a
// map in the OpenAI chat shape.
//
// A nil requestReply means "use the recipient's reply-at-receive flag for this
// sender" (true unless a chat was prepared otherwise).
type Agent interface {
	Name() string
	Description() string
	Send(ctx context.Context, msg any, recipient Agent, requestReply *bool) error
	Receive(ctx context.Context, msg any, sender Agent, requestReply *bool) error
	GenerateReply(ctx context.Context, sender Agent) (Outcome, error)
	Reset()
}

// AgentInfo carries identifying details about an agent used in contexts & logs.
// Name is the external identifier; Type categorizes implementation (e.g. "conversable", "manager").
type AgentInfo struct{ Name, Type string }

// HumanInputMode controls when the termination stage consults a human.
type HumanInputMode string

const (
	// HumanInputAlways prompts the human on every incoming message.
	HumanInputAlways HumanInputMode = "ALWAYS"
	// HumanInputNever never prompts; the conversation ends on the termination
	// predicate or when the auto-reply ceiling is reached.
	HumanInputNever HumanInputMode = "NEVER"
	// HumanInputTerminate prompts only when the termination predicate matches
	// or the auto-reply ceiling is reached.
	HumanInputTerminate HumanInputMode = "TERMINATE"
)

// ParseHumanInputMode converts a case-insensitive mode name.
func ParseHumanInputMode(s string) (HumanInputMode, error) {
	switch m := HumanInputMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case HumanInputAlways, HumanInputNever, HumanInputTerminate:
		return m, nil
	}
	return "", fmt.Errorf("unknown human input mode %q", s)
}

// Bool returns a pointer to b, for the optional requestReply arguments.
func Bool(b bool) *bool { return &b }
