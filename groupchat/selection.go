package groupchat

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
)

const manualSelectAttempts = 3

// SelectSpeaker picks the agent that speaks after prev according to the
// configured policy.
func (g *GroupChat) SelectSpeaker(ctx context.Context, prev core.Agent) (core.Agent, error) {
	var (
		next core.Agent
		err  error
	)

	switch {
	case len(g.agents) == 1:
		next = g.agents[0]
	case g.opts.SpeakerSelection == Random:
		next = g.randomSpeaker(prev)
	case g.opts.SpeakerSelection == Manual:
		next, err = g.manualSpeaker(ctx, prev)
	case g.opts.SpeakerSelection == Auto:
		next, err = g.autoSpeaker(ctx, prev)
	default:
		next = g.NextAgent(prev)
	}

	if err != nil {
		return nil, err
	}

	g.opts.Logger.Debug("groupchat.speaker.selected", "speaker", next.Name(), "policy", string(g.opts.SpeakerSelection))

	if g.opts.OnSpeakerSelected != nil {
		g.opts.OnSpeakerSelected(next.Name(), g.opts.SpeakerSelection)
	}

	return next, nil
}

// candidates returns the roster without prev.
func (g *GroupChat) candidates(prev core.Agent) []core.Agent {
	out := make([]core.Agent, 0, len(g.agents))
	for _, a := range g.agents {
		if prev != nil && a.Name() == prev.Name() {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (g *GroupChat) randomSpeaker(prev core.Agent) core.Agent {
	pool := g.candidates(prev)

	g.mu.Lock()
	defer g.mu.Unlock()

	return pool[g.opts.Rand.IntN(len(pool))]
}

func (g *GroupChat) manualSpeaker(ctx context.Context, prev core.Agent) (core.Agent, error) {
	if len(g.opts.ManualOrder) > 0 {
		g.mu.Lock()
		name := g.opts.ManualOrder[g.manualIdx%len(g.opts.ManualOrder)]
		g.manualIdx++
		g.mu.Unlock()

		return g.AgentByName(name)
	}

	var b strings.Builder
	b.WriteString("Please select the next speaker from the following list:\n")
	for i, a := range g.agents {
		fmt.Fprintf(&b, "%d: %s\n", i+1, a.Name())
	}
	b.WriteString("Enter the number or name of the next speaker (press enter for the default): ")

	for attempt := 0; attempt < manualSelectAttempts; attempt++ {
		in, err := g.opts.HumanInput.Prompt(ctx, b.String())
		if err != nil {
			return nil, err
		}

		in = strings.TrimSpace(in)
		if in == "" {
			break
		}

		if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(g.agents) {
			return g.agents[n-1], nil
		}

		if a, err := g.AgentByName(in); err == nil {
			return a, nil
		}

		g.opts.Logger.Warn("groupchat.manual.invalid", "input", in, "attempt", attempt+1)
	}

	return g.NextAgent(prev), nil
}

func (g *GroupChat) autoSpeaker(ctx context.Context, prev core.Agent) (core.Agent, error) {
	pool := g.agents
	if !g.opts.AllowRepeatSpeaker {
		pool = g.candidates(prev)
	}

	req := model.Request{Messages: g.selectSpeakerMessages(pool)}

	resp, err := model.Complete(ctx, g.opts.Selector, req, nil)
	if err != nil {
		return nil, fmt.Errorf("select speaker: %w", err)
	}

	reply, ok := resp.Message()
	if !ok {
		return g.NextAgent(prev), nil
	}

	name := strings.TrimSpace(reply.Text())

	for _, a := range pool {
		if a.Name() == name {
			return a, nil
		}
	}

	mentioned := MentionedAgents(name, pool)
	if len(mentioned) == 1 {
		return mentioned[0], nil
	}

	g.opts.Logger.Warn("groupchat.auto.fallback", "reply", name, "mentioned", len(mentioned))

	return g.NextAgent(prev), nil
}

func (g *GroupChat) selectSpeakerMessages(pool []core.Agent) []message.Message {
	names := make([]string, len(pool))
	for i, a := range pool {
		names[i] = a.Name()
	}

	r := strings.NewReplacer(
		"{roles}", g.roleList(),
		"{agentlist}", "["+strings.Join(names, ", ")+"]",
	)

	transcript := g.Transcript()

	msgs := make([]message.Message, 0, len(transcript)+2)
	msgs = append(msgs, message.New(message.RoleSystem, r.Replace(g.opts.SelectSpeakerMessageTemplate)))

	for _, e := range transcript {
		m := message.New(message.RoleUser, e.Message.Text())
		m.Name = e.Speaker
		msgs = append(msgs, m)
	}

	return append(msgs, message.New(message.RoleUser, r.Replace(g.opts.SelectSpeakerPromptTemplate)))
}

// MentionedAgents returns the agents whose name occurs in text as a whole
// word. Underscores in names also match spaces.
func MentionedAgents(text string, agents []core.Agent) []core.Agent {
	var out []core.Agent

	for _, a := range agents {
		variants := []string{regexp.QuoteMeta(a.Name())}
		if spaced := strings.ReplaceAll(a.Name(), "_", " "); spaced != a.Name() {
			variants = append(variants, regexp.QuoteMeta(spaced))
		}

		re := regexp.MustCompile(`(^|\W)(` + strings.Join(variants, "|") + `)(\W|$)`)
		if re.MatchString(text) {
			out = append(out, a)
		}
	}

	return out
}
