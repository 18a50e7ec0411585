package groupchat

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentchat/agent"
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/human"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
)

func newParticipant(name string, optFns ...func(o *agent.Options)) *agent.ConversableAgent {
	opts := []func(o *agent.Options){func(o *agent.Options) {
		o.HumanInputMode = core.HumanInputNever
		o.Printer = agent.NopPrinter{}
		o.Model = model.NewMockModel("mock-"+name, "test")
		o.Description = "Participant " + name
	}}
	return agent.NewConversableAgent(name, append(opts, optFns...)...)
}

func newManager(t *testing.T, agents []core.Agent, optFns ...func(o *Options)) *Manager {
	t.Helper()

	chat, err := New(agents, optFns...)
	require.NoError(t, err)

	return NewManager(chat, func(o *ManagerOptions) { o.Printer = agent.NopPrinter{} })
}

func trio() (a, b, c *agent.ConversableAgent) {
	return newParticipant("A"), newParticipant("B"), newParticipant("C")
}

func TestNew_Validation(t *testing.T) {
	a, b, _ := trio()

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoAgents)

	_, err = New([]core.Agent{a, b, newParticipant("A")})
	assert.ErrorIs(t, err, ErrDuplicateAgentName)

	_, err = New([]core.Agent{a}, func(o *Options) { o.MaxRound = 0 })
	assert.Error(t, err)

	_, err = New([]core.Agent{a, b}, func(o *Options) {
		o.SpeakerSelection = Manual
		o.ManualOrder = []string{"A", "Z"}
	})
	assert.ErrorIs(t, err, ErrUnknownAgent)

	_, err = New([]core.Agent{a, b}, func(o *Options) { o.SpeakerSelection = Auto })
	assert.Error(t, err)

	_, err = New([]core.Agent{a, b}, func(o *Options) { o.SpeakerSelection = "bogus" })
	assert.Error(t, err)
}

func TestManager_RoundRobin(t *testing.T) {
	a, b, c := trio()
	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) { o.MaxRound = 4 })

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)

	require.Len(t, transcript, 4)
	assert.Equal(t, []string{"A", "B", "C", "A"}, transcript.Speakers())
	assert.Equal(t, "hello", transcript[0].Message.Text())
	assert.Equal(t, "A", transcript[0].Message.Name)
	assert.Equal(t, "Mock response to: hello", transcript[1].Message.Text())

	// Every participant saw the broadcasts of the others.
	assert.Len(t, b.ChatMessages("chat_manager"), 4)
	assert.Len(t, c.ChatMessages("chat_manager"), 4)
	assert.Len(t, a.ChatMessages("chat_manager"), 4)
	assert.Equal(t, "B", c.ChatMessages("chat_manager")[1].Name)
}

func TestManager_RoundRobinNeverRepeats(t *testing.T) {
	a, b, _ := trio()
	m := newManager(t, []core.Agent{a, b}, func(o *Options) { o.MaxRound = 5 })

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "A", "B", "A"}, transcript.Speakers())
}

func TestManager_SoleParticipantRepeats(t *testing.T) {
	a := newParticipant("A")
	user := newParticipant("user")
	m := newManager(t, []core.Agent{a}, func(o *Options) { o.MaxRound = 3 })

	transcript, err := m.Run(context.Background(), "hello", user)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "A", "A"}, transcript.Speakers())
}

func TestManager_Random(t *testing.T) {
	a, b, c := trio()
	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) {
		o.MaxRound = 12
		o.SpeakerSelection = Random
		o.Rand = rand.New(rand.NewPCG(1, 2))
	})

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)
	require.Len(t, transcript, 12)

	speakers := transcript.Speakers()
	for i := 1; i < len(speakers); i++ {
		assert.NotEqual(t, speakers[i-1], speakers[i], "speaker repeated at %d", i)
	}
}

func TestManager_ManualOrder(t *testing.T) {
	a, b, c := trio()
	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) {
		o.MaxRound = 4
		o.SpeakerSelection = Manual
		o.ManualOrder = []string{"C", "B"}
	})

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B", "C"}, transcript.Speakers())
}

func TestManager_ManualHuman(t *testing.T) {
	a, b, c := trio()
	in := human.NewScripted("3", "nobody", "A", "")

	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) {
		o.MaxRound = 4
		o.SpeakerSelection = Manual
		o.HumanInput = in
	})

	transcript, err := m.Run(context.Background(), "hello", b)
	require.NoError(t, err)

	// "3" picks C, "nobody" is retried and "A" accepted, "" falls back to
	// the round robin successor of A.
	assert.Equal(t, []string{"B", "C", "A", "B"}, transcript.Speakers())
	assert.Len(t, in.Prompts(), 4)
	assert.Contains(t, in.Prompts()[0], "1: A\n2: B\n3: C\n")
}

func TestManager_Auto(t *testing.T) {
	a, b, c := trio()

	selector := model.NewMockModel("selector", "test")
	selector.Enqueue(
		message.New(message.RoleAssistant, "C"),
		message.New(message.RoleAssistant, "I think B should answer next."),
		message.New(message.RoleAssistant, "either A or B"),
	)

	var selected []string

	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) {
		o.MaxRound = 4
		o.SpeakerSelection = Auto
		o.Selector = selector
		o.OnSpeakerSelected = func(s string, p SpeakerSelection) {
			assert.Equal(t, Auto, p)
			selected = append(selected, s)
		}
	})

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)

	// The ambiguous third answer falls back to the successor of B.
	assert.Equal(t, []string{"A", "C", "B", "C"}, transcript.Speakers())
	assert.Equal(t, []string{"C", "B", "C"}, selected)

	reqs := selector.Requests()
	require.Len(t, reqs, 3)

	first := reqs[0].Messages
	require.Len(t, first, 3)
	assert.Equal(t, message.RoleSystem, first[0].Role)
	assert.Contains(t, first[0].Text(), "A: Participant A\nB: Participant B\nC: Participant C")
	assert.Contains(t, first[0].Text(), "[A, B, C]")
	assert.Equal(t, "A", first[1].Name)
	assert.Equal(t, "Read the above conversation. Then select the next role from [A, B, C] to play. Only return the role.", first[2].Text())
}

func TestManager_AutoWithoutRepeat(t *testing.T) {
	a, b, _ := trio()

	selector := model.NewMockModel("selector", "test")
	selector.Enqueue(message.New(message.RoleAssistant, "A"))

	m := newManager(t, []core.Agent{a, b}, func(o *Options) {
		o.MaxRound = 2
		o.SpeakerSelection = Auto
		o.Selector = selector
		o.AllowRepeatSpeaker = false
	})

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, transcript.Speakers())
	assert.NotContains(t, selector.Requests()[0].Messages[0].Text(), "[A, B]")
}

func TestManager_AutoSelectorError(t *testing.T) {
	a, b, _ := trio()

	boom := errors.New("selector down")
	selector := model.NewMockModel("selector", "test")
	selector.SetError(boom)

	m := newManager(t, []core.Agent{a, b}, func(o *Options) {
		o.SpeakerSelection = Auto
		o.Selector = selector
	})

	_, err := m.Run(context.Background(), "hello", a)
	assert.ErrorIs(t, err, boom)
}

func TestManager_TerminationMessage(t *testing.T) {
	a := newParticipant("A")
	b := newParticipant("B", func(o *agent.Options) {
		llm := model.NewMockModel("mock-B", "test")
		llm.Enqueue(message.New(message.RoleAssistant, "TERMINATE"))
		o.Model = llm
	})
	c := newParticipant("C")

	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) { o.MaxRound = 10 })

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, transcript.Speakers())

	// The terminating message is not broadcast.
	assert.Len(t, c.ChatMessages("chat_manager"), 1)
}

func TestManager_SpeakerExit(t *testing.T) {
	a, b := newParticipant("A"), newParticipant("B")
	c := newParticipant("C", func(o *agent.Options) { o.MaxConsecutiveAutoReply = 0 })

	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) { o.MaxRound = 10 })

	transcript, err := m.Run(context.Background(), "hello", a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, transcript.Speakers())
}

func TestManager_AsChatRecipient(t *testing.T) {
	a, b, c := trio()
	user := agent.NewConversableAgent("user", func(o *agent.Options) {
		o.HumanInputMode = core.HumanInputNever
		o.Printer = agent.NopPrinter{}
	})

	m := newManager(t, []core.Agent{a, b, c}, func(o *Options) { o.MaxRound = 4 })

	res, err := user.InitiateChat(context.Background(), m, "plan the trip")
	require.NoError(t, err)

	assert.Equal(t, []string{"user", "A", "B", "C"}, m.GroupChat().Transcript().Speakers())
	assert.Len(t, res.History, 1)
	assert.Equal(t, "plan the trip", res.Summary)
	assert.Equal(t, "group_chat_manager", m.Info().Type)
}

func TestMentionedAgents(t *testing.T) {
	agents := []core.Agent{newParticipant("planner"), newParticipant("code_writer"), newParticipant("critic")}

	names := func(as []core.Agent) []string {
		out := make([]string, len(as))
		for i, a := range as {
			out[i] = a.Name()
		}
		return out
	}

	assert.Equal(t, []string{"planner"}, names(MentionedAgents("The planner should go.", agents)))
	assert.Equal(t, []string{"code_writer"}, names(MentionedAgents("next: code writer", agents)))
	assert.Empty(t, MentionedAgents("criticism is welcome", agents))
	assert.Len(t, MentionedAgents("planner or critic", agents), 2)
}
