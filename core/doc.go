// Package core provides the foundational domain types, interfaces and execution
// contexts used by agentchat. It defines the core abstractions for:
//
//   - Agents (named participants that send, receive and generate replies)
//   - Outcomes (the Final / Forward result of a pipeline stage)
//   - Human input modes (ALWAYS, NEVER, TERMINATE)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - TurnLimiter (bounded chat rounds)
//
// The package keeps implementation concerns (message storage, stages, concrete
// agents) out of scope, exposing small types so the higher level packages can
// depend on each other through it without import cycles.
package core
