// Package groupchat orchestrates conversations among more than two agents.
//
// A GroupChat holds the roster, the shared transcript and the speaker
// selection policy. A Manager is itself an agent: whoever sends it a message
// starts a group conversation in which the manager repeatedly selects the
// next speaker, asks it for a reply and broadcasts that reply to every other
// participant until the round limit is reached or the conversation
// terminates.
//
// Supported policies:
//   - round_robin: fixed cyclic order over the roster
//   - random: uniform choice, never the previous speaker when avoidable
//   - manual: a fixed order of names or a human picking each speaker
//   - auto: a model reads the transcript and names the next speaker; when
//     the answer matches no participant the round robin successor is used
package groupchat
