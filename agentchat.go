// Package agentchat wires configured agents, group chat, remote server and
// metrics into one runtime. Most applications either use the packages
// directly (agent, groupchat, remote) or:
//  1. Load a config.Config (config.Load)
//  2. Create an AgentChat via New, passing tools and human input
//  3. Start conversations with InitiateChat or RunGroupChat, or expose the
//     agents to other processes through Handler
package agentchat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentchat/agent"
	"github.com/hupe1980/agentchat/config"
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/flow"
	"github.com/hupe1980/agentchat/groupchat"
	"github.com/hupe1980/agentchat/human"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/metrics"
	"github.com/hupe1980/agentchat/remote"
	"github.com/hupe1980/agentchat/tool"
)

// ErrUnknownAgent is returned for names that are neither configured agents
// nor configured peers.
var ErrUnknownAgent = errors.New("unknown agent")

// ErrNoGroupChat is returned by RunGroupChat when none is configured.
var ErrNoGroupChat = errors.New("no group chat configured")

// Options configures the AgentChat instance.
type Options struct {
	// Logger defaults to the one described by the config.
	Logger     logging.Logger
	HumanInput human.Input
	Printer    agent.Printer
	// Tools are registered with the agent named as key.
	Tools map[string][]tool.Tool
	// Callbacks receive every agent lifecycle event in addition to the
	// metrics callbacks.
	Callbacks *flow.CallbackManager
}

// AgentChat is the runtime built from a configuration.
type AgentChat struct {
	cfg     *config.Config
	logger  logging.Logger
	agents  []*agent.ConversableAgent
	byName  map[string]*agent.ConversableAgent
	manager *groupchat.Manager
	metrics *metrics.Collector
	server  *remote.Server
}

// New builds the agents, the optional group chat, the remote server and,
// when enabled, the metrics collector described by cfg.
func New(cfg *config.Config, optFns ...func(o *Options)) (*AgentChat, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		logger, err := cfg.BuildLogger()
		if err != nil {
			return nil, err
		}
		opts.Logger = logger
	}

	if opts.Callbacks == nil {
		opts.Callbacks = flow.NewCallbackManager()
	}

	c := &AgentChat{
		cfg:    cfg,
		logger: opts.Logger,
		byName: make(map[string]*agent.ConversableAgent, len(cfg.Agents)),
	}

	var (
		toolObserver      tool.Observer
		onSpeakerSelected func(string, groupchat.SpeakerSelection)
	)

	if cfg.Metrics.Enabled {
		c.metrics = metrics.NewCollector(cfg.Metrics.Namespace, opts.Logger)
		c.metrics.RegisterCallbacks(opts.Callbacks)
		toolObserver = c.metrics.ObserveTool
		onSpeakerSelected = c.metrics.ObserveSpeaker
	}

	build := func(o *config.BuildOptions) {
		o.Logger = opts.Logger
		o.HumanInput = opts.HumanInput
		o.Printer = opts.Printer
		o.Callbacks = opts.Callbacks
		o.Tools = opts.Tools
		o.ToolObserver = toolObserver
		o.OnSpeakerSelected = onSpeakerSelected
	}

	agents, err := cfg.BuildAgents(build)
	if err != nil {
		return nil, err
	}
	c.agents = agents

	runsCode := make(map[string]bool, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		runsCode[ac.Name] = ac.CodeExecution.Enabled
	}

	hosted := make([]core.Agent, 0, len(agents)+1)
	for _, a := range agents {
		c.byName[a.Name()] = a
		if runsCode[a.Name()] && !cfg.Server.ExposeCodeExecution {
			opts.Logger.Warn("agentchat.host.skipped", "agent", a.Name(), "reason", "code execution")
			continue
		}
		hosted = append(hosted, a)
	}

	if len(cfg.GroupChat.Agents) > 0 {
		if c.manager, err = cfg.BuildGroupChat(agents, build); err != nil {
			return nil, err
		}

		exposeManager := true
		for _, name := range cfg.GroupChat.Agents {
			if runsCode[name] && !cfg.Server.ExposeCodeExecution {
				exposeManager = false
			}
		}

		if exposeManager {
			hosted = append(hosted, c.manager)
		} else {
			opts.Logger.Warn("agentchat.host.skipped", "agent", c.manager.Name(), "reason", "code execution")
		}
	}

	allowed := make([]string, 0, len(cfg.Server.Peers))
	for _, p := range cfg.Server.Peers {
		allowed = append(allowed, p.BaseURL)
	}

	c.server, err = remote.NewServer(hosted, func(o *remote.ServerOptions) {
		o.BaseURL = cfg.Server.BaseURL
		o.RateLimit = rate.Limit(cfg.Server.RateLimit)
		o.Burst = cfg.Server.Burst
		o.ReceiveTimeout = cfg.Server.ReceiveTimeout
		o.AllowedReplyTo = allowed
		o.Logger = opts.Logger
		o.OnError = func(name string, err error) {
			opts.Logger.Error("agentchat.receive.error", "agent", name, "error", err.Error())
		}
	})
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("agentchat.ready", "agents", len(agents), "group_chat", c.manager != nil, "metrics", c.metrics != nil)

	return c, nil
}

// Agents returns the configured agents in configuration order.
func (c *AgentChat) Agents() []*agent.ConversableAgent { return c.agents }

// Agent returns the configured agent called name.
func (c *AgentChat) Agent(name string) (*agent.ConversableAgent, bool) {
	a, ok := c.byName[name]
	return a, ok
}

// Recipient resolves name to a local agent, the group chat manager or a
// configured peer.
func (c *AgentChat) Recipient(name string) (core.Agent, error) {
	if a, ok := c.byName[name]; ok {
		return a, nil
	}

	if c.manager != nil && c.manager.Name() == name {
		return c.manager, nil
	}

	for _, p := range c.cfg.Server.Peers {
		if p.Name == name {
			return c.server.Peer(p.Name, p.BaseURL), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
}

// GroupChat returns the group chat manager, or nil when none is configured.
func (c *AgentChat) GroupChat() *groupchat.Manager { return c.manager }

// Metrics returns the collector, or nil when metrics are disabled.
func (c *AgentChat) Metrics() *metrics.Collector { return c.metrics }

// Server returns the remote agent server hosting the configured agents.
func (c *AgentChat) Server() *remote.Server { return c.server }

// Config returns the configuration the runtime was built from.
func (c *AgentChat) Config() *config.Config { return c.cfg }

// Logger returns the runtime logger.
func (c *AgentChat) Logger() logging.Logger { return c.logger }

// InitiateChat starts a chat from the configured agent sender to the agent,
// group chat manager or peer called recipient.
func (c *AgentChat) InitiateChat(ctx context.Context, sender, recipient string, msg any, opts ...agent.ChatOption) (*agent.ChatResult, error) {
	from, ok := c.byName[sender]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, sender)
	}

	to, err := c.Recipient(recipient)
	if err != nil {
		return nil, err
	}

	return from.InitiateChat(ctx, to, msg, opts...)
}

// RunGroupChat opens the configured group chat with msg from sender.
func (c *AgentChat) RunGroupChat(ctx context.Context, sender string, msg any) (groupchat.Transcript, error) {
	if c.manager == nil {
		return nil, ErrNoGroupChat
	}

	from, ok := c.byName[sender]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, sender)
	}

	return c.manager.Run(ctx, msg, from)
}

// Handler serves the remote agent API, plus /metrics when metrics are
// enabled. Requests are counted by the metrics middleware.
func (c *AgentChat) Handler() http.Handler {
	if c.metrics == nil {
		return c.server
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", c.metrics.Handler())
	mux.Handle("/", c.server)

	return c.metrics.Middleware(mux)
}

// Close cancels running remote receives and waits for them.
func (c *AgentChat) Close() { c.server.Close() }

// LastReply returns the latest message exchanged between the configured
// agent sender and recipient.
func (c *AgentChat) LastReply(sender, recipient string) (message.Message, error) {
	a, ok := c.byName[sender]
	if !ok {
		return message.Message{}, fmt.Errorf("%w: %s", ErrUnknownAgent, sender)
	}
	return a.LastMessage(recipient)
}
