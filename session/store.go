package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentchat/message"
)

var (
	// ErrUnknownPeer is returned when a log is queried for a peer that has no
	// recorded conversation.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrAmbiguousPeer is returned when the peer is omitted while more than one
	// conversation exists. It wraps ErrUnknownPeer.
	ErrAmbiguousPeer = fmt.Errorf("%w: peer must be given when more than one conversation exists", ErrUnknownPeer)

	// ErrEmptyConversation is returned by Last when the peer is known but the
	// log has been cleared.
	ErrEmptyConversation = errors.New("conversation is empty")
)

// Store is an in-memory conversation log keyed by peer name. The owning agent
// is the only writer; the read lock exists so observers (printers, remote
// handlers, metrics) can take snapshots while a turn is in flight.
type Store struct {
	mu    sync.RWMutex
	logs  map[string][]message.Message
	order []string // peers in first-seen order
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{logs: make(map[string][]message.Message)}
}

// Append normalizes raw, applies the role rules for roleHint and appends the
// result to the peer's log. On rejection the log is left untouched and the
// returned error wraps message.ErrInvalidMessage.
func (s *Store) Append(raw any, roleHint message.Role, peer string) (message.Message, error) {
	m, err := message.ForRole(raw, roleHint)
	if err != nil {
		return message.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[peer]; !ok {
		s.order = append(s.order, peer)
	}
	s.logs[peer] = append(s.logs[peer], m)

	return m.Clone(), nil
}

// Ensure registers an empty log for peer if none exists yet.
func (s *Store) Ensure(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[peer]; !ok {
		s.order = append(s.order, peer)
		s.logs[peer] = []message.Message{}
	}
}

// Last returns the most recent message exchanged with peer. An empty peer
// means "the only conversation": it fails with ErrAmbiguousPeer when several
// peers exist and with ErrUnknownPeer when there are none.
func (s *Store) Last(peer string) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if peer == "" {
		switch len(s.order) {
		case 0:
			return message.Message{}, fmt.Errorf("%w: no conversations", ErrUnknownPeer)
		case 1:
			peer = s.order[0]
		default:
			return message.Message{}, ErrAmbiguousPeer
		}
	}

	log, ok := s.logs[peer]
	if !ok {
		return message.Message{}, fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	if len(log) == 0 {
		return message.Message{}, fmt.Errorf("%w: %s", ErrEmptyConversation, peer)
	}

	return log[len(log)-1].Clone(), nil
}

// Messages returns a copy of the peer's log (nil for unknown peers).
func (s *Store) Messages(peer string) []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[peer]
	if !ok {
		return nil
	}

	out := make([]message.Message, len(log))
	for i, m := range log {
		out[i] = m.Clone()
	}

	return out
}

// Len returns the number of messages recorded for peer.
func (s *Store) Len(peer string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[peer])
}

// Has reports whether a log exists for peer.
func (s *Store) Has(peer string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.logs[peer]
	return ok
}

// Peers returns the peers in first-seen order.
func (s *Store) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)

	return out
}

// Clear empties one peer's log, or every log when peer is empty. Clearing a
// peer keeps it known, so Last reports ErrEmptyConversation afterwards.
func (s *Store) Clear(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peer == "" {
		s.logs = make(map[string][]message.Message)
		s.order = nil
		return
	}

	if _, ok := s.logs[peer]; ok {
		s.logs[peer] = []message.Message{}
	}
}
