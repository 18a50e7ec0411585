package metrics

import (
	"context"
	"time"

	"github.com/hupe1980/agentchat/flow"
)

const startKey = "metrics.start"

// RegisterCallbacks hooks the collector into every lifecycle point it
// measures.
func (c *Collector) RegisterCallbacks(cm *flow.CallbackManager) {
	for _, t := range []flow.CallbackType{
		flow.CallbackBeforeModel,
		flow.CallbackAfterModel,
		flow.CallbackOnError,
		flow.CallbackAfterReply,
		flow.CallbackOnTermination,
	} {
		cm.RegisterCallback(&callback{collector: c, callbackType: t})
	}
}

type callback struct {
	collector    *Collector
	callbackType flow.CallbackType
}

func (cb *callback) Type() flow.CallbackType { return cb.callbackType }

func (cb *callback) Execute(_ context.Context, cc *flow.CallbackContext) error {
	agent := ""
	if cc.Run != nil {
		agent = cc.Run.AgentName()
	}

	switch cb.callbackType {
	case flow.CallbackBeforeModel:
		if cc.Metadata == nil {
			cc.Metadata = make(map[string]any)
		}
		cc.Metadata[startKey] = time.Now()

	case flow.CallbackAfterModel, flow.CallbackOnError:
		model, status := "unknown", "success"
		if cc.Err != nil {
			status = "error"
		}

		if cc.Response != nil {
			if cc.Response.Model != "" {
				model = cc.Response.Model
			}
			if u := cc.Response.Usage; u != nil {
				cb.collector.RecordLLMUsage(agent, model, u.PromptTokens, u.CompletionTokens, cc.Response.Cost, cc.Response.Cached)
			}
		}

		var dur time.Duration
		if start, ok := cc.Metadata[startKey].(time.Time); ok {
			dur = time.Since(start)
		}

		cb.collector.RecordLLMRequest(agent, model, status, dur)

	case flow.CallbackAfterReply:
		if cc.Outcome == nil {
			return nil
		}

		kind := "text"
		switch {
		case cc.Outcome.IsExit():
			kind = "exit"
		case cc.Outcome.Reply.HasCalls():
			kind = "calls"
		}

		cb.collector.RecordReply(agent, kind)

	case flow.CallbackOnTermination:
		cb.collector.RecordTermination(agent)
	}

	return nil
}
