package flow

import (
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/session"
)

// MessageStoreStage records the incoming message in the peer's log and loads
// the conversation into the request. When no reply is requested it stops
// after recording and returns a non-final outcome.
type MessageStoreStage struct {
	Store *session.Store
	// OnRecord observes every recorded incoming message.
	OnRecord func(run *core.RunContext, m message.Message, peer string)
}

// NewMessageStoreStage creates the stage over store.
func NewMessageStoreStage(store *session.Store, onRecord func(run *core.RunContext, m message.Message, peer string)) *MessageStoreStage {
	return &MessageStoreStage{Store: store, OnRecord: onRecord}
}

// Name implements Stage.
func (s *MessageStoreStage) Name() string { return "message_store" }

// Handle implements Stage.
func (s *MessageStoreStage) Handle(req *Request, next Next) (Outcome, error) {
	peer := req.Peer()

	if req.Incoming != nil {
		m, err := s.Store.Append(req.Incoming, message.RoleUser, peer)
		if err != nil {
			return Outcome{}, err
		}

		req.Run.LogDebug("agent.message.received", "agent", req.Run.AgentName(), "peer", peer, "role", string(m.Role))

		if s.OnRecord != nil {
			s.OnRecord(req.Run, m, peer)
		}
	}

	if !req.ReplyRequested {
		return Outcome{}, nil
	}

	req.Messages = s.Store.Messages(peer)

	return next(req)
}
