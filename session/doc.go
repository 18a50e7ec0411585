// Package session holds the per-peer conversation log owned by an agent.
//
// Each agent keeps one Store. The store maps a peer name to the ordered list of
// messages exchanged with that peer; insertion order is chronological order and
// is never rearranged. Logs for different peers are independent. Messages are
// normalized on append and rejected input never reaches the log.
package session
