package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentchat/logging"
)

// ToolContext provides a constrained surface for tool / function
// implementations invoked by the tool-use stage: cancellation, logging and
// the identity of the call being executed. Records logged through it carry
// the chat id, function name and tool call id.
type ToolContext struct {
	runCtx       *RunContext
	callID       string
	functionName string

	*runLogger
}

// NewToolContext constructs a tool context bound to a parent RunContext.
// callID is the tool_call id, or empty for legacy function calls.
func NewToolContext(runCtx *RunContext, callID, functionName string) *ToolContext {
	logger := newRunLogger(runCtx.Logger(), runCtx.ChatID)
	logger.attrs = append(logger.attrs, "function", functionName)
	if callID != "" {
		logger.attrs = append(logger.attrs, "tool_call_id", callID)
	}

	return &ToolContext{
		runCtx:       runCtx,
		callID:       callID,
		functionName: functionName,
		runLogger:    logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.runLogger.Logger() }

// CallID returns the tool call id (empty for legacy function calls).
func (tc *ToolContext) CallID() string { return tc.callID }

// FunctionName returns the name of the function being executed.
func (tc *ToolContext) FunctionName() string { return tc.functionName }

// AgentName returns the name of the agent executing the tool.
func (tc *ToolContext) AgentName() string { return tc.runCtx.Agent.Name }

// Peer returns the name of the agent that requested the call.
func (tc *ToolContext) Peer() string { return tc.runCtx.Peer }

// ChatID returns the running chat's identifier.
func (tc *ToolContext) ChatID() string { return tc.runCtx.ChatID }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.runCtx == nil || tc.runCtx.Context == nil || tc.functionName == "" {
		return fmt.Errorf("invalid ToolContext")
	}

	return nil
}
