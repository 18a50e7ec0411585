package agent

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentchat/code"
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/flow"
	"github.com/hupe1980/agentchat/human"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
	"github.com/hupe1980/agentchat/tool"
)

// MockAgent is a core.Agent whose calls are recorded by testify/mock.
type MockAgent struct {
	mock.Mock
	name string
}

func NewMockAgent(name string) *MockAgent {
	return &MockAgent{name: name}
}

func (m *MockAgent) Name() string { return m.name }

func (m *MockAgent) Description() string { return "mock agent" }

func (m *MockAgent) Send(ctx context.Context, msg any, recipient core.Agent, requestReply *bool) error {
	args := m.Called(msg, recipient, requestReply)
	return args.Error(0)
}

func (m *MockAgent) Receive(ctx context.Context, msg any, sender core.Agent, requestReply *bool) error {
	args := m.Called(msg, sender, requestReply)
	return args.Error(0)
}

func (m *MockAgent) GenerateReply(ctx context.Context, sender core.Agent) (core.Outcome, error) {
	args := m.Called(sender)
	return args.Get(0).(core.Outcome), args.Error(1)
}

func (m *MockAgent) Reset() { m.Called() }

func newQuietAgent(name string, optFns ...func(o *Options)) *ConversableAgent {
	opts := []func(o *Options){func(o *Options) {
		o.HumanInputMode = core.HumanInputNever
		o.Printer = NopPrinter{}
	}}
	return NewConversableAgent(name, append(opts, optFns...)...)
}

func TestConversableAgent_Defaults(t *testing.T) {
	a := NewConversableAgent("assistant", func(o *Options) {
		o.HumanInput = human.NewScripted()
		o.Printer = NopPrinter{}
	})

	assert.Equal(t, "assistant", a.Name())
	assert.Equal(t, DefaultSystemMessage, a.SystemMessage())
	assert.Equal(t, DefaultSystemMessage, a.Description())
	assert.Equal(t, core.HumanInputTerminate, a.HumanInputMode())
	assert.Equal(t, flow.DefaultMaxConsecutiveAutoReply, a.MaxConsecutiveAutoReply(""))
	assert.False(t, a.LLMEnabled())
	assert.Equal(t, []string{"message_store", "tool_use", "termination", "llm"}, a.Stages())
	assert.Equal(t, core.AgentInfo{Name: "assistant", Type: "conversable"}, a.Info())
}

func TestConversableAgent_MutualCeiling(t *testing.T) {
	a := newQuietAgent("a", func(o *Options) { o.MaxConsecutiveAutoReply = 1 })
	b := newQuietAgent("b", func(o *Options) { o.MaxConsecutiveAutoReply = 1 })

	res, err := a.InitiateChat(context.Background(), b, "hi")
	require.NoError(t, err)

	// a: hi, b's auto reply, a's auto reply; b exits on the second message.
	require.Len(t, a.ChatMessages("b"), 3)
	require.Len(t, b.ChatMessages("a"), 3)

	assert.Equal(t, message.RoleAssistant, a.ChatMessages("b")[0].Role)
	assert.Equal(t, message.RoleUser, b.ChatMessages("a")[0].Role)
	assert.Equal(t, "hi", b.ChatMessages("a")[0].Text())

	// b terminated and reset its counter; a's counter stays at the ceiling.
	assert.Equal(t, 0, b.ConsecutiveAutoReplyCounter("a"))
	assert.Equal(t, 1, a.ConsecutiveAutoReplyCounter("b"))

	assert.Equal(t, 1, res.Turns)
	assert.Len(t, res.History, 3)
	assert.NotEmpty(t, res.ChatID)
}

func TestConversableAgent_TerminateMessageEndsChat(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b")

	_, err := a.InitiateChat(context.Background(), b, "TERMINATE")
	require.NoError(t, err)

	assert.Len(t, a.ChatMessages("b"), 1)
	assert.Len(t, b.ChatMessages("a"), 1)
	assert.Equal(t, 0, b.ConsecutiveAutoReplyCounter("a"))
}

func TestConversableAgent_FunctionCallRoundTrip(t *testing.T) {
	type addArgs struct {
		A float64 `json:"a"`
		B float64 `json:"b"`
	}

	llm := model.NewMockModel("mock", "test")
	llm.Enqueue(
		message.Message{FunctionCall: &message.FunctionCall{Name: "add", Arguments: `{"a": 2, "b": 3}`}},
		message.New(message.RoleAssistant, "TERMINATE"),
	)

	assistant := newQuietAgent("assistant", func(o *Options) { o.Model = llm })
	proxy := newQuietAgent("user_proxy", func(o *Options) {
		o.Tools = []tool.Tool{tool.NewTypedFunction("add", "Add two numbers",
			func(_ *core.ToolContext, in addArgs) (float64, error) { return in.A + in.B, nil })}
	})

	res, err := proxy.InitiateChat(context.Background(), assistant, "What is 2 + 3?")
	require.NoError(t, err)

	history := proxy.ChatMessages("assistant")
	require.Len(t, history, 4)

	assert.Equal(t, "add", history[1].FunctionCall.Name)
	assert.Equal(t, message.RoleFunction, history[2].Role)
	assert.Equal(t, "add", history[2].Name)
	assert.Equal(t, "5", history[2].Text())
	assert.Equal(t, "TERMINATE", history[3].Text())
	assert.Equal(t, "TERMINATE", res.Summary)

	// The assistant advertises no tools of its own; the model saw the
	// function result as a user-side message.
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Tools)
	assert.Equal(t, message.RoleSystem, reqs[0].Messages[0].Role)
	assert.Equal(t, message.RoleFunction, reqs[1].Messages[len(reqs[1].Messages)-1].Role)
}

func TestConversableAgent_FunctionCallWithoutTools(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b")

	noReply := false
	call := map[string]any{"function_call": map[string]any{"name": "add", "arguments": `{"a": 1, "b": 2}`}}
	require.NoError(t, a.Send(context.Background(), call, b, &noReply))

	out, err := b.GenerateReply(context.Background(), a)
	require.NoError(t, err)
	require.True(t, out.Final)
	require.NotNil(t, out.Reply)

	assert.Equal(t, message.RoleFunction, out.Reply.Role)
	assert.Equal(t, "add", out.Reply.Name)
	assert.Equal(t, "Error: Function add not found.", out.Reply.Text())
}

func TestConversableAgent_ModelFailureLeavesNoPhantomReply(t *testing.T) {
	boom := errors.New("backend down")

	llm := model.NewMockModel("mock", "test")
	llm.SetError(boom)

	var errs []error

	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) {
		o.Model = llm
		o.Callbacks = flow.NewCallbackManager()
		o.Callbacks.RegisterCallback(flow.NewFunctionCallback(flow.CallbackOnError, func(_ context.Context, c *flow.CallbackContext) error {
			errs = append(errs, c.Err)
			return nil
		}))
	})

	_, err := a.InitiateChat(context.Background(), b, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Len(t, a.ChatMessages("b"), 1)
	assert.Len(t, b.ChatMessages("a"), 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestConversableAgent_InvalidMessageRejected(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b")

	err := a.Send(context.Background(), 42, b, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidMessage(err))

	err = a.Send(context.Background(), map[string]any{"role": "user"}, b, nil)
	assert.ErrorIs(t, err, message.ErrInvalidMessage)

	assert.Empty(t, a.ChatMessages("b"))
	assert.Empty(t, b.ChatMessages("a"))
	assert.Equal(t, 0, b.ConsecutiveAutoReplyCounter("a"))
}

func TestConversableAgent_MaxTurns(t *testing.T) {
	a := newQuietAgent("a", func(o *Options) { o.Model = model.NewMockModel("mock-a", "test") })
	b := newQuietAgent("b", func(o *Options) { o.Model = model.NewMockModel("mock-b", "test") })

	res, err := a.InitiateChat(context.Background(), b, "hi", WithMaxTurns(2))
	require.NoError(t, err)

	history := a.ChatMessages("b")
	require.Len(t, history, 4)
	assert.Equal(t, "hi", history[0].Text())
	assert.Equal(t, "Mock response to: hi", history[1].Text())
	assert.Equal(t, "Mock response to: Mock response to: hi", history[2].Text())
	assert.Equal(t, "Mock response to: Mock response to: Mock response to: hi", history[3].Text())

	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, history[3].Text(), res.Summary)
}

func TestConversableAgent_MaxTurnsStopsOnExit(t *testing.T) {
	a := newQuietAgent("a", func(o *Options) { o.MaxConsecutiveAutoReply = 1 })
	b := newQuietAgent("b")

	res, err := a.InitiateChat(context.Background(), b, "hi", WithMaxTurns(5))
	require.NoError(t, err)

	// a auto-replies once, then its ceiling ends the chat.
	assert.Equal(t, 2, res.Turns)
	assert.Len(t, a.ChatMessages("b"), 4)
}

func TestConversableAgent_ClearHistoryOption(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b")

	_, err := a.InitiateChat(context.Background(), b, "TERMINATE")
	require.NoError(t, err)

	_, err = a.InitiateChat(context.Background(), b, "TERMINATE", WithClearHistory(false))
	require.NoError(t, err)
	assert.Len(t, a.ChatMessages("b"), 2)

	_, err = a.InitiateChat(context.Background(), b, "TERMINATE")
	require.NoError(t, err)
	assert.Len(t, a.ChatMessages("b"), 1)

	a.Reset()
	assert.Empty(t, a.Peers())
}

func TestConversableAgent_HumanAlways(t *testing.T) {
	in := human.NewScripted("please elaborate", "exit")

	proxy := NewConversableAgent("user_proxy", func(o *Options) {
		o.HumanInputMode = core.HumanInputAlways
		o.HumanInput = in
		o.Printer = NopPrinter{}
	})
	assistant := newQuietAgent("assistant", func(o *Options) { o.Model = model.NewMockModel("mock", "test") })

	_, err := proxy.InitiateChat(context.Background(), assistant, "hello")
	require.NoError(t, err)

	history := proxy.ChatMessages("assistant")
	require.Len(t, history, 4)
	assert.Equal(t, "please elaborate", history[2].Text())
	assert.Len(t, in.Prompts(), 2)
}

func TestConversableAgent_SendToMock(t *testing.T) {
	a := newQuietAgent("a")
	recipient := NewMockAgent("mock")

	recipient.On("Receive", mock.MatchedBy(func(m message.Message) bool {
		return m.Text() == "hello" && m.Role == message.RoleAssistant
	}), a, core.Bool(false)).Return(nil).Once()

	require.NoError(t, a.Send(context.Background(), "hello", recipient, core.Bool(false)))
	recipient.AssertExpectations(t)

	last, err := a.LastMessage("mock")
	require.NoError(t, err)
	assert.Equal(t, "hello", last.Text())
}

func TestConversableAgent_MockRecipientFailure(t *testing.T) {
	a := newQuietAgent("a")
	recipient := NewMockAgent("mock")

	recipient.On("Receive", mock.Anything, a, core.Bool(true)).Return(errors.New("unreachable"))

	_, err := a.InitiateChat(context.Background(), recipient, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestConversableAgent_DefaultAutoReply(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) {
		o.DefaultAutoReply = "noted"
		o.MaxConsecutiveAutoReply = 1
	})

	_, err := a.InitiateChat(context.Background(), b, "hi", WithMaxTurns(1))
	require.NoError(t, err)

	history := a.ChatMessages("b")
	require.Len(t, history, 2)
	assert.Equal(t, "noted", history[1].Text())
}

func TestConversableAgent_RegisterStage(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b")

	b.RegisterStage(flow.StageFunc{StageName: "echo", Fn: func(req *flow.Request, _ flow.Next) (flow.Outcome, error) {
		last, _ := req.Last()
		return core.Reply(message.New(message.RoleAssistant, "echo: "+last.Text())), nil
	}})

	assert.Equal(t, []string{"message_store", "echo", "tool_use", "termination", "llm"}, b.Stages())

	_, err := a.InitiateChat(context.Background(), b, "ping", WithMaxTurns(1))
	require.NoError(t, err)

	last, err := a.LastMessage("b")
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", last.Text())
}

func TestConversableAgent_RegisterHook(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) { o.Model = llm })

	b.RegisterHook(func(_ *core.RunContext, content string) (string, error) {
		return content + " (answer in one word)", nil
	})
	b.RegisterHook(func(_ *core.RunContext, content string) (string, error) {
		return "Q: " + content, nil
	})

	assert.Equal(t, []string{"message_store", "process_last_received_message", "tool_use", "termination", "llm"}, b.Stages())

	_, err := a.InitiateChat(context.Background(), b, "capital of France?", WithMaxTurns(1))
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Q: capital of France? (answer in one word)", reqs[0].Messages[len(reqs[0].Messages)-1].Text())

	// The log keeps what was actually received.
	assert.Equal(t, "capital of France?", b.ChatMessages("a")[0].Text())
}

func TestConversableAgent_RegisterFunction(t *testing.T) {
	a := newQuietAgent("a")

	fn := tool.NewFunctionTool("lookup", "Look up a value", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return "v", nil
	})

	require.NoError(t, a.RegisterFunction(fn))
	assert.True(t, a.CanExecuteFunction("lookup"))
	assert.ErrorIs(t, a.RegisterFunction(fn), tool.ErrDuplicateFunction)

	bad := tool.NewFunctionTool("not valid!", "", nil, func(*core.ToolContext, map[string]any) (any, error) { return nil, nil })
	assert.ErrorIs(t, a.RegisterFunction(bad), tool.ErrInvalidIdentifier)

	assert.True(t, a.UnregisterFunction("lookup"))
	assert.False(t, a.UnregisterFunction("lookup"))
	assert.Empty(t, a.Functions())
}

func TestConversableAgent_UsageAccumulates(t *testing.T) {
	llm := model.NewMockModel("mock", "test")

	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) { o.Model = llm })

	res, err := a.InitiateChat(context.Background(), b, "hi", WithMaxTurns(1))
	require.NoError(t, err)

	assert.Equal(t, b.Usage().TotalTokens, res.Usage.TotalTokens)
	assert.Equal(t, b.Cost(), res.Cost)
}

func TestConversableAgent_DynamicInstruction(t *testing.T) {
	llm := model.NewMockModel("mock", "test")

	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		return "You talk to " + rc.Peer + ".", nil
	})

	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) {
		o.Model = llm
		o.Instruction = &inst
	})

	_, err := a.InitiateChat(context.Background(), b, "hi", WithMaxTurns(1))
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You talk to a.", reqs[0].Messages[0].Text())

	b.UpdateSystemMessage("plain")
	assert.Equal(t, "plain", b.SystemMessage())
}

func TestConversableAgent_PrinterOutput(t *testing.T) {
	var buf bytes.Buffer

	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) { o.Printer = NewConsolePrinter(&buf) })

	_, err := a.InitiateChat(context.Background(), b, "hi there", WithMaxTurns(1))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "a (to b):")
	assert.Contains(t, buf.String(), "hi there")

	buf.Reset()
	_, err = a.InitiateChat(context.Background(), b, "quiet", WithMaxTurns(1), WithSilent(true))
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestConversableAgent_InitiateChatAsync(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b")

	resCh, errCh := a.InitiateChatAsync(context.Background(), b, "TERMINATE")

	select {
	case res := <-resCh:
		require.NotNil(t, res)
		assert.Equal(t, "TERMINATE", res.Summary)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("chat did not finish")
	}
}

func TestConversableAgent_InitiateChatsCarryover(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) { o.Model = model.NewMockModel("mock-b", "test") })
	c := newQuietAgent("c", func(o *Options) { o.Model = model.NewMockModel("mock-c", "test") })

	results, err := a.InitiateChats(context.Background(),
		Chat{Recipient: b, Message: "first", Options: []ChatOption{WithMaxTurns(1)}},
		Chat{Recipient: c, Message: "second", Options: []ChatOption{WithMaxTurns(1)}},
	)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Mock response to: first", results[0].Summary)

	opener := c.ChatMessages("a")[0].Text()
	assert.Equal(t, "second\nContext: \nMock response to: first", opener)
}

func TestConversableAgent_InitiateChatsParallel(t *testing.T) {
	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) { o.Model = model.NewMockModel("mock-b", "test") })
	c := newQuietAgent("c", func(o *Options) { o.Model = model.NewMockModel("mock-c", "test") })

	results, err := a.InitiateChatsParallel(context.Background(), 5*time.Second,
		Chat{Recipient: b, Message: "to b", Options: []ChatOption{WithMaxTurns(1)}},
		Chat{Recipient: c, Message: "to c", Options: []ChatOption{WithMaxTurns(1)}},
	)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Mock response to: to b", results[0].Summary)
	assert.Equal(t, "Mock response to: to c", results[1].Summary)

	_, err = a.InitiateChatsParallel(context.Background(), 0,
		Chat{Recipient: b, Message: "x"},
		Chat{Recipient: b, Message: "y"},
	)
	assert.ErrorIs(t, err, ErrDuplicateRecipient)
}

func TestConversableAgent_InitiateChatsParallelFailure(t *testing.T) {
	boom := errors.New("backend down")

	failing := model.NewMockModel("mock-b", "test")
	failing.SetError(boom)

	a := newQuietAgent("a")
	b := newQuietAgent("b", func(o *Options) { o.Model = failing })
	c := newQuietAgent("c", func(o *Options) { o.Model = model.NewMockModel("mock-c", "test") })

	results, err := a.InitiateChatsParallel(context.Background(), 0,
		Chat{Recipient: b, Message: "to b", Options: []ChatOption{WithMaxTurns(1)}},
		Chat{Recipient: c, Message: "to c", Options: []ChatOption{WithMaxTurns(1)}},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "parallel chat with b failed")
	require.Len(t, results, 2)
	assert.Nil(t, results[0])
}

func TestWithCarryover(t *testing.T) {
	got, err := withCarryover(message.New(message.RoleUser, "task"), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, "task\nContext: \none\ntwo", got.(message.Message).Text())

	same, err := withCarryover("task", nil)
	require.NoError(t, err)
	assert.Equal(t, "task", same)
}

type echoExecutor struct{ runs int }

func (e *echoExecutor) Execute(_ context.Context, blocks []code.Block) (code.Result, error) {
	e.runs++
	return code.Result{Output: blocks[0].Code + "\n"}, nil
}

func TestConversableAgent_CodeExecution(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.Enqueue(
		message.New(message.RoleAssistant, "```sh\necho hi\n```"),
		message.New(message.RoleAssistant, "TERMINATE"),
	)

	exec := &echoExecutor{}
	assistant := newQuietAgent("assistant", func(o *Options) { o.Model = llm })
	proxy := newQuietAgent("user_proxy", func(o *Options) { o.CodeExecutor = exec })

	assert.Equal(t, []string{"message_store", "tool_use", "termination", "code_execution", "llm"}, proxy.Stages())

	_, err := proxy.InitiateChat(context.Background(), assistant, "Say hi from a shell.")
	require.NoError(t, err)

	history := proxy.ChatMessages("assistant")
	require.Len(t, history, 4)

	assert.Equal(t, 1, exec.runs)
	assert.Equal(t, "exitcode: 0 (execution succeeded)\nCode output: echo hi\n", history[2].Text())
	assert.Equal(t, "TERMINATE", history[3].Text())
}
