package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
)

// ErrDuplicateRecipient is returned when parallel chats share a recipient.
var ErrDuplicateRecipient = errors.New("duplicate recipient")

// ChatPreparer is implemented by agents that keep per-peer chat state which
// must be reset when a chat starts.
type ChatPreparer interface {
	PrepareChat(peer core.Agent, replyAtReceive, clearHistory bool)
}

// SummaryFunc derives the summary of a finished chat.
type SummaryFunc func(ctx context.Context, sender *ConversableAgent, recipient core.Agent) (string, error)

// LastMessageSummary uses the content of the last message exchanged.
func LastMessageSummary(_ context.Context, sender *ConversableAgent, recipient core.Agent) (string, error) {
	m, err := sender.LastMessage(recipient.Name())
	if err != nil {
		return "", err
	}
	return m.Text(), nil
}

// ChatOptions configures InitiateChat.
type ChatOptions struct {
	// ClearHistory empties both logs before the opener. Default true.
	ClearHistory bool
	// MaxTurns bounds the number of messages the initiator sends. Zero
	// lets the agents reply on receive until one of them terminates.
	MaxTurns int
	// Silent suppresses the transcript printing of both agents.
	Silent  bool
	Summary SummaryFunc
}

// ChatOption configures a single chat.
type ChatOption func(o *ChatOptions)

// WithClearHistory sets whether the logs are cleared before the chat.
func WithClearHistory(clear bool) ChatOption {
	return func(o *ChatOptions) { o.ClearHistory = clear }
}

// WithMaxTurns bounds the chat to n initiator turns.
func WithMaxTurns(n int) ChatOption {
	return func(o *ChatOptions) { o.MaxTurns = n }
}

// WithSilent disables transcript printing.
func WithSilent(silent bool) ChatOption {
	return func(o *ChatOptions) { o.Silent = silent }
}

// WithSummary replaces the last message summary.
func WithSummary(fn SummaryFunc) ChatOption {
	return func(o *ChatOptions) { o.Summary = fn }
}

// ChatResult is what a finished chat leaves behind.
type ChatResult struct {
	ChatID    string
	Recipient string
	// History is the initiator's log with the recipient.
	History []message.Message
	Summary string
	// Turns counts the messages the initiator sent.
	Turns int
	// Cost and Usage aggregate the model calls of both agents during the
	// chat.
	Cost  float64
	Usage model.Usage
}

type usageReporter interface {
	Usage() model.Usage
	Cost() float64
}

// InitiateChat starts a conversation with recipient by sending msg.
//
// Without MaxTurns the message is sent with a reply requested and the
// agents keep answering each other on receive until one side terminates.
// With MaxTurns neither side replies on receive; the initiator drives the
// chat, generating its next message from the recipient's last reply, and
// stops after MaxTurns messages or when its own reply pipeline terminates.
func (a *ConversableAgent) InitiateChat(ctx context.Context, recipient core.Agent, msg any, opts ...ChatOption) (*ChatResult, error) {
	o := ChatOptions{ClearHistory: true, Summary: LastMessageSummary}
	for _, fn := range opts {
		fn(&o)
	}

	chatID := core.ChatIDFrom(ctx)
	if chatID == "" {
		chatID = uuid.NewString()
		ctx = core.WithChatID(ctx, chatID)
	}

	if o.Silent {
		ctx = core.WithSilent(ctx)
	}

	startUsage, startCost := usageOf(a, recipient)
	start := time.Now()

	a.prepareChat(recipient, o.MaxTurns <= 0, o.ClearHistory)

	a.logger.Info("agent.chat.start", "agent", a.Name(), "peer", recipient.Name(), "chat_id", chatID, "max_turns", o.MaxTurns)

	turns, err := a.runChat(ctx, recipient, msg, o.MaxTurns)

	if cl, ok := a.logger.(interface {
		LogChat(kind string, turns int, dur time.Duration, success bool, err error)
	}); ok {
		cl.LogChat("two_agent", turns, time.Since(start), err == nil, err)
	}

	if err != nil {
		return nil, fmt.Errorf("chat %s -> %s: %w", a.Name(), recipient.Name(), err)
	}

	summary := ""
	if a.store.Len(recipient.Name()) > 0 {
		summary, err = o.Summary(ctx, a, recipient)
		if err != nil {
			return nil, fmt.Errorf("chat summary: %w", err)
		}
	}

	endUsage, endCost := usageOf(a, recipient)

	return &ChatResult{
		ChatID:    chatID,
		Recipient: recipient.Name(),
		History:   a.ChatMessages(recipient.Name()),
		Summary:   summary,
		Turns:     turns,
		Cost:      endCost - startCost,
		Usage: model.Usage{
			PromptTokens:     endUsage.PromptTokens - startUsage.PromptTokens,
			CompletionTokens: endUsage.CompletionTokens - startUsage.CompletionTokens,
			TotalTokens:      endUsage.TotalTokens - startUsage.TotalTokens,
		},
	}, nil
}

func (a *ConversableAgent) runChat(ctx context.Context, recipient core.Agent, msg any, maxTurns int) (int, error) {
	if maxTurns <= 0 {
		if err := a.Send(ctx, msg, recipient, core.Bool(true)); err != nil {
			return 0, err
		}
		return 1, nil
	}

	limiter := core.NewTurnLimiter(maxTurns)
	next := msg

	for limiter.Increment() == nil {
		turn := limiter.Count() - 1

		if turn > 0 {
			out, err := a.GenerateReply(ctx, recipient)
			if err != nil {
				return turn, err
			}
			if out.IsExit() {
				return turn, nil
			}
			next = *out.Reply
		}

		if err := a.Send(ctx, next, recipient, core.Bool(true)); err != nil {
			return turn, err
		}
	}

	return limiter.Count(), nil
}

func (a *ConversableAgent) prepareChat(recipient core.Agent, replyAtReceive, clearHistory bool) {
	a.PrepareChat(recipient, replyAtReceive, clearHistory)

	if p, ok := recipient.(ChatPreparer); ok {
		p.PrepareChat(a, replyAtReceive, clearHistory)
	}
}

func usageOf(agents ...core.Agent) (model.Usage, float64) {
	var (
		usage model.Usage
		cost  float64
	)

	seen := make(map[string]struct{}, len(agents))

	for _, ag := range agents {
		if _, ok := seen[ag.Name()]; ok {
			continue
		}
		seen[ag.Name()] = struct{}{}

		if r, ok := ag.(usageReporter); ok {
			usage = usage.Add(r.Usage())
			cost += r.Cost()
		}
	}

	return usage, cost
}

// InitiateChatAsync runs InitiateChat in a goroutine. Exactly one of the
// returned channels receives a value before both are closed.
func (a *ConversableAgent) InitiateChatAsync(ctx context.Context, recipient core.Agent, msg any, opts ...ChatOption) (<-chan *ChatResult, <-chan error) {
	resCh := make(chan *ChatResult, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(resCh)
		defer close(errCh)

		res, err := a.InitiateChat(ctx, recipient, msg, opts...)
		if err != nil {
			errCh <- err
			return
		}
		resCh <- res
	}()

	return resCh, errCh
}

// Chat describes one chat of a batch started by InitiateChats.
type Chat struct {
	Recipient core.Agent
	Message   any
	Options   []ChatOption
	// Carryover is prepended to the summaries of earlier chats when they
	// are appended to Message as context.
	Carryover []string
}

// InitiateChats runs chats one after another. The summaries of finished
// chats are carried over as context into the opening message of every later
// chat. The first failing chat stops the batch.
func (a *ConversableAgent) InitiateChats(ctx context.Context, chats ...Chat) ([]*ChatResult, error) {
	results := make([]*ChatResult, 0, len(chats))

	var summaries []string

	for i, c := range chats {
		carry := append(append([]string(nil), c.Carryover...), summaries...)

		msg, err := withCarryover(c.Message, carry)
		if err != nil {
			return results, fmt.Errorf("chat %d with %s: %w", i, c.Recipient.Name(), err)
		}

		res, err := a.InitiateChat(ctx, c.Recipient, msg, c.Options...)
		if err != nil {
			return results, fmt.Errorf("sequential chats failed at %s: %w", c.Recipient.Name(), err)
		}

		results = append(results, res)
		summaries = append(summaries, res.Summary)
	}

	return results, nil
}

// InitiateChatsParallel runs independent chats concurrently. Recipients must
// be distinct since each conversation log has a single writer. A positive
// timeout bounds the whole batch. Results keep the order of chats and failed
// chats leave a nil entry. The first failure cancels the remaining chats and
// is returned once every chat has stopped.
func (a *ConversableAgent) InitiateChatsParallel(ctx context.Context, timeout time.Duration, chats ...Chat) ([]*ChatResult, error) {
	seen := make(map[string]struct{}, len(chats))
	for _, c := range chats {
		if _, ok := seen[c.Recipient.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRecipient, c.Recipient.Name())
		}
		seen[c.Recipient.Name()] = struct{}{}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make([]*ChatResult, len(chats))

	g, gctx := errgroup.WithContext(ctx)

	for i, c := range chats {
		g.Go(func() error {
			msg, err := withCarryover(c.Message, c.Carryover)
			if err != nil {
				return fmt.Errorf("parallel chat with %s failed: %w", c.Recipient.Name(), err)
			}

			res, err := a.InitiateChat(gctx, c.Recipient, msg, c.Options...)
			if err != nil {
				return fmt.Errorf("parallel chat with %s failed: %w", c.Recipient.Name(), err)
			}

			results[i] = res

			return nil
		})
	}

	return results, g.Wait()
}

// withCarryover appends "\nContext: \n" and the carryover lines to the
// textual content of msg.
func withCarryover(msg any, carryover []string) (any, error) {
	if len(carryover) == 0 {
		return msg, nil
	}

	suffix := "\nContext: \n" + strings.Join(carryover, "\n")

	switch v := msg.(type) {
	case string:
		return v + suffix, nil
	default:
		m, err := message.Normalize(msg)
		if err != nil {
			return nil, err
		}
		m.Content = message.String(m.Text() + suffix)
		return m, nil
	}
}
