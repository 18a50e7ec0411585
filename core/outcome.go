package core

import "github.com/hupe1980/agentchat/message"

// Outcome is the result of a pipeline stage.
//
//   - Forward (Final == false): the stage did not produce a reply; the caller
//     continues with the rest of the pipeline.
//   - Final with a Reply: the turn is answered with Reply.
//   - Final without a Reply: the conversation ends here (no message is sent back).
type Outcome struct {
	Final bool
	Reply *message.Message
}

// Forward returns the non-final outcome.
func Forward() Outcome { return Outcome{} }

// Reply returns a final outcome answering the turn with m.
func Reply(m message.Message) Outcome { return Outcome{Final: true, Reply: &m} }

// Exit returns the final outcome that stops the conversation.
func Exit() Outcome { return Outcome{Final: true} }

// IsExit reports whether the outcome stops the conversation.
func (o Outcome) IsExit() bool { return o.Final && o.Reply == nil }
