package config

import (
	"fmt"

	"github.com/hupe1980/agentchat/agent"
	"github.com/hupe1980/agentchat/code"
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/flow"
	"github.com/hupe1980/agentchat/groupchat"
	"github.com/hupe1980/agentchat/human"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/model"
	"github.com/hupe1980/agentchat/tool"
)

// BuildLogger creates the configured logger.
func (c *Config) BuildLogger() (logging.Logger, error) {
	level := logging.ParseLevel(c.Log.Level)

	if c.Log.Format == "zap" {
		return logging.NewProductionZapLogger(level)
	}

	return logging.NewSlogLogger(level, c.Log.Format, c.Log.AddSource), nil
}

// BuildOptions supplies the runtime pieces a file cannot describe.
type BuildOptions struct {
	Logger     logging.Logger
	HumanInput human.Input
	Printer    agent.Printer
	Callbacks  *flow.CallbackManager
	// Tools are registered with every agent named as key.
	Tools        map[string][]tool.Tool
	ToolObserver tool.Observer
	// OnSpeakerSelected observes group chat speaker selections.
	OnSpeakerSelected func(speaker string, policy groupchat.SpeakerSelection)
}

// BuildAgents creates the configured agents in configuration order.
func (c *Config) BuildAgents(optFns ...func(o *BuildOptions)) ([]*agent.ConversableAgent, error) {
	opts := BuildOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	cache := c.BuildCache()

	agents := make([]*agent.ConversableAgent, 0, len(c.Agents))

	for _, ac := range c.Agents {
		a, err := c.buildAgent(ac, cache, opts)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		agents = append(agents, a)
	}

	return agents, nil
}

func (c *Config) buildAgent(ac AgentConfig, cache model.Cache, opts BuildOptions) (*agent.ConversableAgent, error) {
	var llm model.Model

	if ac.Model != "" {
		mc, err := c.SelectModel(ac.Model)
		if err != nil {
			return nil, err
		}
		if llm, err = c.BuildModel(mc); err != nil {
			return nil, err
		}
	}

	mode := core.HumanInputTerminate
	if ac.HumanInputMode != "" {
		var err error
		if mode, err = core.ParseHumanInputMode(ac.HumanInputMode); err != nil {
			return nil, err
		}
	}

	a := agent.NewConversableAgent(ac.Name, func(o *agent.Options) {
		if ac.SystemMessage != "" {
			o.SystemMessage = ac.SystemMessage
		}
		o.Description = ac.Description
		o.Model = llm
		o.Cache = cache
		o.CacheSeed = c.Cache.Seed
		o.HumanInputMode = mode
		if ac.MaxConsecutiveAutoReply != nil {
			o.MaxConsecutiveAutoReply = *ac.MaxConsecutiveAutoReply
		}
		o.DefaultAutoReply = ac.DefaultAutoReply
		o.AllowTemplate = ac.AllowTemplate
		o.Stream = ac.Stream
		if ac.MaxParallelToolCalls > 0 {
			o.MaxParallelToolCalls = ac.MaxParallelToolCalls
		}
		if ac.CodeExecution.Enabled {
			o.CodeExecutor = code.NewLocalExecutor(func(lo *code.LocalOptions) {
				lo.WorkDir = ac.CodeExecution.WorkDir
				if ac.CodeExecution.Timeout > 0 {
					lo.Timeout = ac.CodeExecution.Timeout
				}
				lo.Logger = opts.Logger
			})
		}
		o.ToolObserver = opts.ToolObserver
		o.HumanInput = opts.HumanInput
		o.Logger = opts.Logger
		o.Printer = opts.Printer
		o.Callbacks = opts.Callbacks
	})

	for _, t := range opts.Tools[ac.Name] {
		if err := a.RegisterFunction(t); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// BuildGroupChat creates the configured group chat over agents, which must
// contain every agent the group chat names.
func (c *Config) BuildGroupChat(agents []*agent.ConversableAgent, optFns ...func(o *BuildOptions)) (*groupchat.Manager, error) {
	opts := BuildOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	byName := make(map[string]core.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}

	members := make([]core.Agent, 0, len(c.GroupChat.Agents))
	for _, name := range c.GroupChat.Agents {
		a, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("group chat: %w: %s", groupchat.ErrUnknownAgent, name)
		}
		members = append(members, a)
	}

	gc := c.GroupChat

	var selector model.Model
	if gc.SelectorModel != "" {
		mc, err := c.SelectModel(gc.SelectorModel)
		if err != nil {
			return nil, err
		}
		if selector, err = c.BuildModel(mc); err != nil {
			return nil, err
		}
	}

	chat, err := groupchat.New(members, func(o *groupchat.Options) {
		o.MaxRound = gc.MaxRound
		o.SpeakerSelection = groupchat.SpeakerSelection(gc.SpeakerSelection)
		if gc.AllowRepeatSpeaker != nil {
			o.AllowRepeatSpeaker = *gc.AllowRepeatSpeaker
		}
		o.ManualOrder = gc.ManualOrder
		o.HumanInput = opts.HumanInput
		o.Selector = selector
		o.OnSpeakerSelected = opts.OnSpeakerSelected
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return groupchat.NewManager(chat, func(o *groupchat.ManagerOptions) {
		o.Logger = opts.Logger
		o.Printer = opts.Printer
	}), nil
}
