package groupchat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/agentchat/agent"
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/flow"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Name        string
	Description string
	// IsTerminationMsg ends the group conversation when it matches a
	// transcript message. Defaults to content "TERMINATE".
	IsTerminationMsg func(m message.Message) bool
	Logger           logging.Logger
	Printer          agent.Printer
}

// Manager drives a GroupChat. It is a conversable agent whose reply
// pipeline runs the group conversation for the message it receives and
// then ends the exchange with the sender without a reply.
type Manager struct {
	*agent.ConversableAgent

	chat   *GroupChat
	isTerm func(m message.Message) bool
	logger logging.Logger
}

// NewManager creates the manager of chat.
func NewManager(chat *GroupChat, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Name:             "chat_manager",
		Description:      "Group chat manager.",
		IsTerminationMsg: flow.IsTerminationMsg,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		chat:   chat,
		isTerm: opts.IsTerminationMsg,
		logger: opts.Logger,
	}

	m.ConversableAgent = agent.NewConversableAgent(opts.Name, func(o *agent.Options) {
		o.SystemMessage = opts.Description
		o.Description = opts.Description
		o.Type = "group_chat_manager"
		o.HumanInputMode = core.HumanInputNever
		o.IsTerminationMsg = opts.IsTerminationMsg
		o.Logger = opts.Logger
		o.Printer = opts.Printer
	})

	m.RegisterStage(flow.StageFunc{StageName: "group_chat", Fn: m.handle})

	return m
}

// GroupChat returns the managed chat.
func (m *Manager) GroupChat() *GroupChat { return m.chat }

// Run starts a group conversation in which sender opens with msg and
// returns the transcript. sender may be a participant or an outside agent.
func (m *Manager) Run(ctx context.Context, msg any, sender core.Agent) (Transcript, error) {
	if sender == nil {
		return nil, errors.New("group chat needs a sender for the opening message")
	}

	if core.ChatIDFrom(ctx) == "" {
		ctx = core.WithChatID(ctx, uuid.NewString())
	}

	if err := sender.Send(ctx, msg, m, core.Bool(true)); err != nil {
		return nil, err
	}

	return m.chat.Transcript(), nil
}

func (m *Manager) handle(req *flow.Request, _ flow.Next) (flow.Outcome, error) {
	opener, ok := req.Last()
	if !ok {
		return core.Exit(), nil
	}

	if err := m.run(req.Run.Context, opener, req.Sender); err != nil {
		return core.Outcome{}, err
	}

	return core.Exit(), nil
}

func (m *Manager) run(ctx context.Context, msg message.Message, speaker core.Agent) error {
	g := m.chat
	g.Reset()

	for _, a := range g.agents {
		if p, ok := a.(agent.ChatPreparer); ok {
			p.PrepareChat(m, true, false)
		}
	}

	msg = withSpeakerName(msg, speaker.Name())
	g.Append(speaker.Name(), msg)

	m.logger.Info("groupchat.start", "manager", m.Name(), "speaker", speaker.Name(), "agents", len(g.agents), "max_round", g.MaxRound(), "chat_id", core.ChatIDFrom(ctx))

	quiet := core.WithSilent(ctx)

	for round := 0; round < g.MaxRound(); round++ {
		if m.isTerm != nil && m.isTerm(msg) {
			m.logger.Info("groupchat.terminated", "manager", m.Name(), "round", round, "speaker", speaker.Name())
			return nil
		}

		for _, a := range g.agents {
			if a.Name() == speaker.Name() {
				continue
			}
			if err := m.Send(quiet, msg, a, core.Bool(false)); err != nil {
				return fmt.Errorf("broadcast to %s: %w", a.Name(), err)
			}
		}

		if round == g.MaxRound()-1 {
			break
		}

		next, err := g.SelectSpeaker(ctx, speaker)
		if err != nil {
			return err
		}

		out, err := next.GenerateReply(ctx, m)
		if err != nil {
			return fmt.Errorf("speaker %s: %w", next.Name(), err)
		}

		if out.IsExit() || out.Reply == nil {
			m.logger.Info("groupchat.speaker.exit", "manager", m.Name(), "round", round, "speaker", next.Name())
			return nil
		}

		if err := next.Send(ctx, *out.Reply, m, core.Bool(false)); err != nil {
			return fmt.Errorf("speaker %s: %w", next.Name(), err)
		}

		last, err := m.LastMessage(next.Name())
		if err != nil {
			return err
		}

		speaker = next
		msg = withSpeakerName(last, speaker.Name())
		g.Append(speaker.Name(), msg)
	}

	m.logger.Info("groupchat.max_round", "manager", m.Name(), "rounds", g.MaxRound())

	return nil
}

// withSpeakerName tags the message with its speaker unless it is a function
// result, whose name field holds the function name.
func withSpeakerName(m message.Message, speaker string) message.Message {
	if m.Role == message.RoleFunction {
		return m
	}
	m = m.Clone()
	m.Name = speaker
	return m
}
