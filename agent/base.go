package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentchat/core"
)

// BaseAgent bundles identity helpers shared by agent implementations.
// Embed it in concrete agents.
type BaseAgent struct {
	name        string
	agentType   string
	mu          sync.RWMutex
	description string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name, agentType string) BaseAgent {
	return BaseAgent{
		name:        name,
		agentType:   agentType,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the agent's name. Names identify peers in conversation logs.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a description of the agent's purpose, used by group
// chat speaker selection.
func (b *BaseAgent) Description() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.description
}

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = desc
}

// Info returns the identity used in run contexts and logs.
func (b *BaseAgent) Info() core.AgentInfo {
	return core.AgentInfo{Name: b.name, Type: b.agentType}
}
