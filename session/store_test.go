package session

import (
	"errors"
	"testing"

	"github.com/hupe1980/agentchat/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndLast(t *testing.T) {
	s := NewStore()

	_, err := s.Append("hello", message.RoleUser, "bob")
	require.NoError(t, err)
	_, err = s.Append(message.Text("hi bob"), message.RoleAssistant, "bob")
	require.NoError(t, err)

	last, err := s.Last("bob")
	require.NoError(t, err)
	assert.Equal(t, "hi bob", last.Text())
	assert.Equal(t, message.RoleAssistant, last.Role)

	// omitted peer resolves to the only conversation
	last, err = s.Last("")
	require.NoError(t, err)
	assert.Equal(t, "hi bob", last.Text())

	assert.Equal(t, 2, s.Len("bob"))
	assert.Equal(t, []string{"bob"}, s.Peers())
}

func TestStore_RejectedAppendLeavesLogUntouched(t *testing.T) {
	s := NewStore()
	_, err := s.Append("first", message.RoleUser, "bob")
	require.NoError(t, err)

	_, err = s.Append(map[string]any{"role": "user"}, message.RoleUser, "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, message.ErrInvalidMessage))

	_, err = s.Append(message.Message{}, message.RoleUser, "carol")
	require.Error(t, err)

	assert.Equal(t, 1, s.Len("bob"))
	assert.False(t, s.Has("carol"), "rejected append must not create a peer")
}

func TestStore_LastErrors(t *testing.T) {
	s := NewStore()

	_, err := s.Last("")
	assert.True(t, errors.Is(err, ErrUnknownPeer))

	_, err = s.Append("a", message.RoleUser, "bob")
	require.NoError(t, err)
	_, err = s.Append("b", message.RoleUser, "carol")
	require.NoError(t, err)

	_, err = s.Last("")
	assert.True(t, errors.Is(err, ErrAmbiguousPeer))
	assert.True(t, errors.Is(err, ErrUnknownPeer))

	_, err = s.Last("dave")
	assert.True(t, errors.Is(err, ErrUnknownPeer))
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	_, _ = s.Append("a", message.RoleUser, "bob")
	_, _ = s.Append("b", message.RoleUser, "carol")

	s.Clear("bob")
	assert.Equal(t, 0, s.Len("bob"))
	assert.Equal(t, 1, s.Len("carol"))

	_, err := s.Last("bob")
	assert.True(t, errors.Is(err, ErrEmptyConversation))

	s.Clear("")
	assert.Empty(t, s.Peers())
	assert.False(t, s.Has("carol"))
}

func TestStore_MessagesReturnsCopy(t *testing.T) {
	s := NewStore()
	_, _ = s.Append("a", message.RoleUser, "bob")

	msgs := s.Messages("bob")
	*msgs[0].Content = "mutated"

	last, err := s.Last("bob")
	require.NoError(t, err)
	assert.Equal(t, "a", last.Text())
	assert.Nil(t, s.Messages("nobody"))
}
