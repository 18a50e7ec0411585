package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentchat/code"
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/flow"
	"github.com/hupe1980/agentchat/human"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
	"github.com/hupe1980/agentchat/session"
	"github.com/hupe1980/agentchat/tool"
)

// DefaultSystemMessage is the system message of agents that configure none.
const DefaultSystemMessage = "You are a helpful AI Assistant."

// Options configures a ConversableAgent.
//
// Use functional options with NewConversableAgent to override defaults.
type Options struct {
	// SystemMessage is the static system message. Ignored when Instruction
	// is set.
	SystemMessage string
	Instruction   *Instruction
	Description   string
	// Type categorizes the agent in logs and run contexts.
	Type string

	// Model enables the LLM stage. Cache wraps it with a response cache
	// consulted for requests carrying CacheSeed.
	Model     model.Model
	Cache     model.Cache
	CacheSeed *int

	HumanInputMode          core.HumanInputMode
	MaxConsecutiveAutoReply int
	IsTerminationMsg        func(m message.Message) bool
	// HumanInput defaults to the console when the mode may involve a human.
	HumanInput human.Input
	// DefaultAutoReply is sent when no stage produced a final reply.
	DefaultAutoReply string

	Tools                []tool.Tool
	MaxParallelToolCalls int
	ToolObserver         tool.Observer

	// CodeExecutor, when set, runs code blocks of received messages and
	// replies with their output before the model is consulted.
	CodeExecutor code.Executor

	AllowTemplate bool
	Stream        bool
	OnPartial     func(model.Response)

	Logger    logging.Logger
	Printer   Printer
	Callbacks *flow.CallbackManager
}

// ConversableAgent is the general purpose conversational agent. Its reply
// pipeline runs, in order: message store, tool use, termination / human
// input and LLM completion.
//
// An agent is the sole writer of its conversation logs; it is not meant to
// take part in two turns with the same peer concurrently.
type ConversableAgent struct {
	BaseAgent

	store       *session.Store
	registry    *tool.Registry
	executor    *tool.Executor
	termination *flow.TerminationStage
	llm         *flow.LLMStage
	hooks       *flow.ProcessMessageStage
	pipeline    *flow.Pipeline
	callbacks   *flow.CallbackManager
	printer     Printer
	logger      logging.Logger

	defaultAutoReply string

	mu             sync.RWMutex
	instruction    Instruction
	replyAtReceive map[string]bool
	usage          model.Usage
	cost           float64
}

// NewConversableAgent creates an agent. Registering a tool with an invalid
// or duplicate name panics since it is a programming error; use
// RegisterFunction to handle the error instead.
func NewConversableAgent(name string, optFns ...func(o *Options)) *ConversableAgent {
	opts := Options{
		SystemMessage:           DefaultSystemMessage,
		Type:                    "conversable",
		HumanInputMode:          core.HumanInputTerminate,
		MaxConsecutiveAutoReply: flow.DefaultMaxConsecutiveAutoReply,
		MaxParallelToolCalls:    1,
		Logger:                  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a, err := newConversableAgent(name, opts)
	if err != nil {
		panic(err)
	}

	return a
}

func newConversableAgent(name string, opts Options) (*ConversableAgent, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Printer == nil {
		opts.Printer = NewConsolePrinter(nil)
	}
	if opts.Callbacks == nil {
		opts.Callbacks = flow.NewCallbackManager()
	}
	if opts.HumanInput == nil && opts.HumanInputMode != core.HumanInputNever {
		opts.HumanInput = human.NewConsole()
	}

	registry, err := tool.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, err
	}

	a := &ConversableAgent{
		BaseAgent:        NewBaseAgent(name, opts.Type),
		store:            session.NewStore(),
		registry:         registry,
		callbacks:        opts.Callbacks,
		printer:          opts.Printer,
		logger:           opts.Logger,
		defaultAutoReply: opts.DefaultAutoReply,
		replyAtReceive:   make(map[string]bool),
	}

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	} else if opts.SystemMessage != "" {
		a.SetDescription(opts.SystemMessage)
	}

	if opts.Instruction != nil {
		a.instruction = *opts.Instruction
	} else {
		a.instruction = NewInstructionFromText(opts.SystemMessage)
	}

	a.executor = tool.NewExecutor(registry, func(e *tool.Executor) {
		e.MaxParallel = opts.MaxParallelToolCalls
		e.Observer = opts.ToolObserver
	})

	a.termination = flow.NewTerminationStage(func(o *flow.TerminationOptions) {
		o.Mode = opts.HumanInputMode
		o.MaxConsecutiveAutoReply = opts.MaxConsecutiveAutoReply
		o.IsTermination = opts.IsTerminationMsg
		o.Input = opts.HumanInput
		o.Notify = a.printNotice
		o.Callbacks = opts.Callbacks
	})

	llm := opts.Model
	if llm != nil && opts.Cache != nil {
		llm = model.WithCache(llm, opts.Cache)
	}

	a.llm = flow.NewLLMStage(func(o *flow.LLMOptions) {
		o.Model = llm
		o.SystemMessages = a.systemMessages
		o.Tools = registry.Schemas
		o.CacheSeed = opts.CacheSeed
		o.AllowTemplate = opts.AllowTemplate
		o.Stream = opts.Stream
		o.OnPartial = opts.OnPartial
		o.OnResponse = a.addUsage
		o.Callbacks = opts.Callbacks
	})

	stages := []flow.Stage{
		flow.NewMessageStoreStage(a.store, a.printReceived),
		flow.NewToolUseStage(a.executor, opts.Callbacks),
		a.termination,
	}
	if opts.CodeExecutor != nil {
		stages = append(stages, flow.NewCodeExecutionStage(opts.CodeExecutor))
	}

	a.pipeline = flow.NewPipeline(append(stages, a.llm)...)

	return a, nil
}

// Send records msg in the log with recipient and delivers it. requestReply
// nil lets the recipient decide (it replies unless a chat started with
// max turns told it otherwise). An invalid message is rejected before
// anything is recorded or delivered.
func (a *ConversableAgent) Send(ctx context.Context, msg any, recipient core.Agent, requestReply *bool) error {
	m, err := a.store.Append(msg, message.RoleAssistant, recipient.Name())
	if err != nil {
		return fmt.Errorf("%s send to %s: %w", a.Name(), recipient.Name(), err)
	}

	a.logger.Debug("agent.message.sent", "agent", a.Name(), "peer", recipient.Name(), "chat_id", core.ChatIDFrom(ctx))

	return recipient.Receive(ctx, m, a, requestReply)
}

// Receive records msg from sender and, when a reply is wanted, generates
// one and sends it back. Termination ends the exchange without a reply.
func (a *ConversableAgent) Receive(ctx context.Context, msg any, sender core.Agent, requestReply *bool) error {
	want := a.wantsReply(sender.Name(), requestReply)

	out, err := a.generate(ctx, sender, msg, want)
	if err != nil {
		return err
	}

	if !want || out.IsExit() || out.Reply == nil {
		return nil
	}

	return a.Send(ctx, *out.Reply, sender, nil)
}

// GenerateReply runs the pipeline against the current log with sender
// without recording a new message.
func (a *ConversableAgent) GenerateReply(ctx context.Context, sender core.Agent) (core.Outcome, error) {
	return a.generate(ctx, sender, nil, true)
}

func (a *ConversableAgent) generate(ctx context.Context, sender core.Agent, incoming any, wantReply bool) (core.Outcome, error) {
	run := core.NewRunContext(ctx, a.Info(), sender.Name(), a.logger)
	req := &flow.Request{
		Incoming:       incoming,
		ReplyRequested: wantReply,
		Sender:         sender,
		Run:            run,
	}

	if wantReply {
		cbCtx := &flow.CallbackContext{Run: run, Peer: sender.Name()}
		if err := a.callbacks.ExecuteCallbacks(ctx, flow.CallbackBeforeReply, cbCtx); err != nil {
			return core.Outcome{}, err
		}
	}

	out, err := a.pipeline.Run(req)
	if err != nil {
		return core.Outcome{}, err
	}

	if !wantReply {
		return out, nil
	}

	if !out.Final {
		out = core.Reply(message.New(message.RoleAssistant, a.defaultAutoReply))
	}

	if out.IsExit() {
		run.LogDebug("agent.reply.exit", "agent", a.Name(), "peer", sender.Name())
	} else {
		run.LogDebug("agent.reply.generated", "agent", a.Name(), "peer", sender.Name(), "calls", out.Reply.HasCalls())
	}

	cbCtx := &flow.CallbackContext{Run: run, Peer: sender.Name(), Outcome: &out, Message: out.Reply}
	if err := a.callbacks.ExecuteCallbacks(ctx, flow.CallbackAfterReply, cbCtx); err != nil {
		run.LogWarn("flow.callback.error", "type", string(flow.CallbackAfterReply), "error", err.Error())
	}

	return out, nil
}

func (a *ConversableAgent) wantsReply(peer string, requestReply *bool) bool {
	if requestReply != nil {
		return *requestReply
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	v, ok := a.replyAtReceive[peer]
	return !ok || v
}

// PrepareChat resets the per-peer state at the start of a chat with peer:
// the auto-reply counter, whether replies are generated on receive and,
// optionally, the log.
func (a *ConversableAgent) PrepareChat(peer core.Agent, replyAtReceive, clearHistory bool) {
	a.ResetConsecutiveAutoReplyCounter(peer.Name())

	a.mu.Lock()
	a.replyAtReceive[peer.Name()] = replyAtReceive
	a.mu.Unlock()

	if clearHistory {
		a.ClearHistory(peer.Name())
	}
}

// Reset clears every log and counter and restores reply-on-receive.
func (a *ConversableAgent) Reset() {
	a.ClearHistory("")
	a.ResetConsecutiveAutoReplyCounter("")

	a.mu.Lock()
	clear(a.replyAtReceive)
	a.mu.Unlock()
}

// ResetConsecutiveAutoReplyCounter zeroes the counter for peer ("" = all).
func (a *ConversableAgent) ResetConsecutiveAutoReplyCounter(peer string) {
	a.termination.ResetCounter(peer)
}

// ConsecutiveAutoReplyCounter returns the counter for peer.
func (a *ConversableAgent) ConsecutiveAutoReplyCounter(peer string) int {
	return a.termination.Counter(peer)
}

// SetMaxConsecutiveAutoReply changes the ceiling for peer ("" = global).
func (a *ConversableAgent) SetMaxConsecutiveAutoReply(n int, peer string) {
	a.termination.SetMaxConsecutiveAutoReply(n, peer)
}

// MaxConsecutiveAutoReply returns the ceiling for peer ("" = global).
func (a *ConversableAgent) MaxConsecutiveAutoReply(peer string) int {
	return a.termination.MaxConsecutiveAutoReply(peer)
}

// HumanInputMode returns the configured human input mode.
func (a *ConversableAgent) HumanInputMode() core.HumanInputMode { return a.termination.Mode() }

// ClearHistory empties the log with peer, or every log when peer is "".
func (a *ConversableAgent) ClearHistory(peer string) { a.store.Clear(peer) }

// LastMessage returns the latest message exchanged with peer. With peer ""
// exactly one conversation must exist.
func (a *ConversableAgent) LastMessage(peer string) (message.Message, error) {
	return a.store.Last(peer)
}

// ChatMessages returns a copy of the log with peer.
func (a *ConversableAgent) ChatMessages(peer string) []message.Message {
	return a.store.Messages(peer)
}

// Peers returns the peers this agent has talked to.
func (a *ConversableAgent) Peers() []string { return a.store.Peers() }

// SystemMessage returns the static system message ("" when a dynamic
// instruction is configured).
func (a *ConversableAgent) SystemMessage() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.instruction.Text()
}

// UpdateSystemMessage replaces the system message.
func (a *ConversableAgent) UpdateSystemMessage(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instruction = NewInstructionFromText(text)
}

// UpdateInstruction replaces the system message with a dynamic provider.
func (a *ConversableAgent) UpdateInstruction(inst Instruction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instruction = inst
}

func (a *ConversableAgent) systemMessages(run *core.RunContext) ([]message.Message, error) {
	a.mu.RLock()
	inst := a.instruction
	a.mu.RUnlock()

	text, err := inst.Resolve(run)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	return []message.Message{message.New(message.RoleSystem, text)}, nil
}

// RegisterFunction makes t callable by peers. The name is validated
// immediately.
func (a *ConversableAgent) RegisterFunction(t tool.Tool) error {
	if err := a.registry.Register(t); err != nil {
		return fmt.Errorf("%s: %w", a.Name(), err)
	}
	return nil
}

// UnregisterFunction removes a function and reports whether it existed.
func (a *ConversableAgent) UnregisterFunction(name string) bool {
	return a.registry.Unregister(name)
}

// Functions returns the registered function names.
func (a *ConversableAgent) Functions() []string { return a.registry.Names() }

// CanExecuteFunction reports whether name is registered.
func (a *ConversableAgent) CanExecuteFunction(name string) bool {
	_, ok := a.registry.Get(name)
	return ok
}

// RegisterCallback adds a lifecycle hook.
func (a *ConversableAgent) RegisterCallback(cb flow.Callback) {
	a.callbacks.RegisterCallback(cb)
}

// RegisterStage adds a custom reply stage that runs right after the message
// store, ahead of the built-in tool use, termination and LLM stages.
func (a *ConversableAgent) RegisterStage(s flow.Stage) {
	a.pipeline.Insert(1, s)
}

// RegisterHook adds a hook rewriting the last received message before every
// reply. The first hook installs the process_last_received_message stage
// right after the message store.
func (a *ConversableAgent) RegisterHook(h flow.LastMessageHook) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hooks == nil {
		a.hooks = flow.NewProcessMessageStage()
		a.pipeline.Insert(1, a.hooks)
	}

	a.hooks.Add(h)
}

// Stages returns the pipeline stage names in execution order.
func (a *ConversableAgent) Stages() []string { return a.pipeline.Stages() }

// LLMEnabled reports whether a model is configured.
func (a *ConversableAgent) LLMEnabled() bool { return a.llm.Enabled() }

// Usage returns the token usage accumulated over all model calls.
func (a *ConversableAgent) Usage() model.Usage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.usage
}

// Cost returns the accumulated model cost.
func (a *ConversableAgent) Cost() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cost
}

func (a *ConversableAgent) addUsage(resp *model.Response) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if resp.Usage != nil {
		a.usage = a.usage.Add(*resp.Usage)
	}
	a.cost += resp.Cost
}

func (a *ConversableAgent) printReceived(run *core.RunContext, m message.Message, peer string) {
	if core.IsSilent(run.Context) {
		return
	}
	a.printer.PrintMessage(peer, a.Name(), m)
}

func (a *ConversableAgent) printNotice(run *core.RunContext, notice string) {
	if core.IsSilent(run.Context) {
		return
	}
	a.printer.PrintNotice(notice)
}

// IsInvalidMessage reports whether err stems from a message rejected by
// validation.
func IsInvalidMessage(err error) bool { return errors.Is(err, message.ErrInvalidMessage) }
