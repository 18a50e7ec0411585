// Package logging provides the leveled Logger interface used throughout
// agentchat and its slog and zap backed implementations.
//
//   - AgentChatLogger is slog based and adds component / peer context plus
//     recorders for chat, model and tool call outcomes
//   - NewSlogAdapter wraps an existing *slog.Logger
//   - ZapAdapter wraps a *zap.Logger
//   - NoOpLogger discards everything
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	assistant := agent.NewConversableAgent("assistant", func(o *agent.Options) { o.Logger = logger })
//
// Messages follow an event naming style ("agent.reply.generated",
// "tool.call.failed") with key/value pairs as arguments.
package logging
