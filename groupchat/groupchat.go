package groupchat

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/human"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
)

var (
	// ErrNoAgents is returned when a group chat is created without agents.
	ErrNoAgents = errors.New("group chat needs at least one agent")
	// ErrDuplicateAgentName is returned when two participants share a name.
	ErrDuplicateAgentName = errors.New("duplicate agent name")
	// ErrUnknownAgent is returned for names that are not on the roster.
	ErrUnknownAgent = errors.New("unknown agent")
)

// SpeakerSelection names a speaker selection policy.
type SpeakerSelection string

const (
	RoundRobin SpeakerSelection = "round_robin"
	Random     SpeakerSelection = "random"
	Manual     SpeakerSelection = "manual"
	Auto       SpeakerSelection = "auto"
)

// DefaultMaxRound bounds group conversations that configure no limit.
const DefaultMaxRound = 10

// DefaultSelectSpeakerMessageTemplate is the system message shown to the
// selector model. {roles} expands to one "name: description" line per
// participant and {agentlist} to the bracketed list of names.
const DefaultSelectSpeakerMessageTemplate = "You are in a role play game. The following roles are available:\n{roles}.\n\nRead the following conversation.\nThen select the next role from {agentlist} to play. Only return the role."

// DefaultSelectSpeakerPromptTemplate is appended after the transcript.
const DefaultSelectSpeakerPromptTemplate = "Read the above conversation. Then select the next role from {agentlist} to play. Only return the role."

// Entry is one transcript entry.
type Entry struct {
	Speaker string          `json:"speaker"`
	Message message.Message `json:"message"`
}

// Transcript is the ordered record of a group conversation.
type Transcript []Entry

// Speakers returns the speaker of every entry in order.
func (t Transcript) Speakers() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = e.Speaker
	}
	return out
}

// Options configures a GroupChat.
type Options struct {
	MaxRound         int
	SpeakerSelection SpeakerSelection
	// AllowRepeatSpeaker lets the auto policy pick the previous speaker
	// again. Round robin and random never repeat when avoidable.
	AllowRepeatSpeaker bool

	// ManualOrder is the cyclic speaker order of the manual policy. When
	// empty, HumanInput is asked for every selection.
	ManualOrder []string
	HumanInput  human.Input

	// Selector is the model consulted by the auto policy.
	Selector                     model.Model
	SelectSpeakerMessageTemplate string
	SelectSpeakerPromptTemplate  string

	// Rand drives the random policy.
	Rand *rand.Rand

	// OnSpeakerSelected observes every selection.
	OnSpeakerSelected func(speaker string, policy SpeakerSelection)

	Logger logging.Logger
}

// GroupChat is the state of a group conversation: the roster, the shared
// transcript and the speaker selection policy.
type GroupChat struct {
	agents []core.Agent
	byName map[string]int
	opts   Options

	mu         sync.Mutex
	transcript Transcript
	manualIdx  int
}

// New creates a group chat over agents. Agent names must be unique.
func New(agents []core.Agent, optFns ...func(o *Options)) (*GroupChat, error) {
	opts := Options{
		MaxRound:                     DefaultMaxRound,
		SpeakerSelection:             RoundRobin,
		AllowRepeatSpeaker:           true,
		SelectSpeakerMessageTemplate: DefaultSelectSpeakerMessageTemplate,
		SelectSpeakerPromptTemplate:  DefaultSelectSpeakerPromptTemplate,
		Logger:                       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	if opts.MaxRound <= 0 {
		return nil, fmt.Errorf("max round must be positive, got %d", opts.MaxRound)
	}

	byName := make(map[string]int, len(agents))
	for i, a := range agents {
		if _, ok := byName[a.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAgentName, a.Name())
		}
		byName[a.Name()] = i
	}

	switch opts.SpeakerSelection {
	case RoundRobin, Random:
	case Manual:
		for _, name := range opts.ManualOrder {
			if _, ok := byName[name]; !ok {
				return nil, fmt.Errorf("manual order: %w: %s", ErrUnknownAgent, name)
			}
		}
		if len(opts.ManualOrder) == 0 && opts.HumanInput == nil {
			opts.HumanInput = human.NewConsole()
		}
	case Auto:
		if opts.Selector == nil {
			return nil, errors.New("auto speaker selection requires a selector model")
		}
	default:
		return nil, fmt.Errorf("unknown speaker selection %q", opts.SpeakerSelection)
	}

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &GroupChat{
		agents: append([]core.Agent(nil), agents...),
		byName: byName,
		opts:   opts,
	}, nil
}

// Agents returns the roster in order.
func (g *GroupChat) Agents() []core.Agent {
	return append([]core.Agent(nil), g.agents...)
}

// AgentNames returns the participant names in roster order.
func (g *GroupChat) AgentNames() []string {
	names := make([]string, len(g.agents))
	for i, a := range g.agents {
		names[i] = a.Name()
	}
	return names
}

// AgentByName looks up a participant.
func (g *GroupChat) AgentByName(name string) (core.Agent, error) {
	i, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return g.agents[i], nil
}

// MaxRound returns the round limit.
func (g *GroupChat) MaxRound() int { return g.opts.MaxRound }

// SpeakerSelection returns the configured policy.
func (g *GroupChat) SpeakerSelection() SpeakerSelection { return g.opts.SpeakerSelection }

// Append adds an entry to the transcript.
func (g *GroupChat) Append(speaker string, m message.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transcript = append(g.transcript, Entry{Speaker: speaker, Message: m.Clone()})
}

// Transcript returns a copy of the transcript.
func (g *GroupChat) Transcript() Transcript {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append(Transcript(nil), g.transcript...)
}

// Reset empties the transcript and restarts the manual order.
func (g *GroupChat) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transcript = nil
	g.manualIdx = 0
}

// NextAgent returns the round robin successor of prev. An agent that is not
// on the roster (or nil) is followed by the first participant.
func (g *GroupChat) NextAgent(prev core.Agent) core.Agent {
	if prev == nil {
		return g.agents[0]
	}

	i, ok := g.byName[prev.Name()]
	if !ok {
		return g.agents[0]
	}

	return g.agents[(i+1)%len(g.agents)]
}

func (g *GroupChat) roleList() string {
	var b []byte
	for i, a := range g.agents {
		if i > 0 {
			b = append(b, '\n')
		}
		b = fmt.Appendf(b, "%s: %s", a.Name(), a.Description())
	}
	return string(b)
}
