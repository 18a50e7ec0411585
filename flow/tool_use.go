package flow

import (
	"strings"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/tool"
)

// ToolUseStage executes function and tool calls carried by the latest
// message and short-circuits with their results. Every failure is turned
// into reply text so the conversation can correct itself on the next turn.
type ToolUseStage struct {
	Executor  *tool.Executor
	Callbacks *CallbackManager
}

// NewToolUseStage creates the stage.
func NewToolUseStage(executor *tool.Executor, callbacks *CallbackManager) *ToolUseStage {
	return &ToolUseStage{Executor: executor, Callbacks: callbacks}
}

// Name implements Stage.
func (s *ToolUseStage) Name() string { return "tool_use" }

// Handle implements Stage.
func (s *ToolUseStage) Handle(req *Request, next Next) (Outcome, error) {
	last, ok := req.Last()
	if !ok || !last.HasCalls() {
		return next(req)
	}

	// Calls are resolved even without tools so unknown names come back as
	// "Error: Function <name> not found." for the model to react to.
	executor := s.Executor
	if executor == nil {
		executor = tool.NewExecutor(nil)
	}

	cbCtx := &CallbackContext{Run: req.Run, Peer: req.Peer(), Message: &last}
	if err := s.Callbacks.ExecuteCallbacks(req.Run.Context, CallbackBeforeTool, cbCtx); err != nil {
		return Outcome{}, err
	}

	var (
		reply   message.Message
		results []tool.CallResult
	)

	if fc := last.FunctionCall; fc != nil {
		res := executor.ExecuteFunctionCall(req.Run, *fc, "")
		results = []tool.CallResult{res}
		reply = message.Message{
			Role:    message.RoleFunction,
			Name:    fc.Name,
			Content: message.String(res.Content),
		}
	} else {
		results = executor.ExecuteToolCalls(req.Run, last.ToolCalls)
		reply = ToolCallsReply(results)
	}

	req.Run.LogInfo("agent.tool.executed", "agent", req.Run.AgentName(), "peer", req.Peer(), "calls", len(results))

	cbCtx.Results = results
	cbCtx.Message = &reply
	s.Callbacks.notify(req.Run, CallbackAfterTool, cbCtx)

	return core.Reply(reply), nil
}

// ToolCallsReply aggregates per-call results into one tool message whose
// tool_responses keep call order and whose content joins every
// "Tool Call Id: <id>\n<content>" entry with a blank line.
func ToolCallsReply(results []tool.CallResult) message.Message {
	responses := make([]message.ToolResponse, 0, len(results))
	parts := make([]string, 0, len(results))

	for _, r := range results {
		responses = append(responses, message.ToolResponse{
			ToolCallID: r.ToolCallID,
			Role:       message.RoleTool,
			Name:       r.Name,
			Content:    r.Content,
		})
		parts = append(parts, "Tool Call Id: "+r.ToolCallID+"\n"+r.Content)
	}

	return message.Message{
		Role:          message.RoleTool,
		Content:       message.String(strings.Join(parts, "\n\n")),
		ToolResponses: responses,
	}
}
