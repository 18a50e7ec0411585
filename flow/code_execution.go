package flow

import (
	"fmt"

	"github.com/hupe1980/agentchat/code"
	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
)

// CodeExecutionStage runs the fenced code blocks of the latest message and
// replies with the exit code and output. Messages without code blocks are
// forwarded.
type CodeExecutionStage struct {
	Executor code.Executor
}

// NewCodeExecutionStage creates the stage.
func NewCodeExecutionStage(executor code.Executor) *CodeExecutionStage {
	return &CodeExecutionStage{Executor: executor}
}

// Name implements Stage.
func (s *CodeExecutionStage) Name() string { return "code_execution" }

// Handle implements Stage.
func (s *CodeExecutionStage) Handle(req *Request, next Next) (Outcome, error) {
	last, ok := req.Last()
	if !ok || s.Executor == nil || last.HasCalls() {
		return next(req)
	}

	blocks := code.ExtractCodeBlocks(last.Text())
	if len(blocks) == 0 {
		return next(req)
	}

	res, err := s.Executor.Execute(req.Run.Context, blocks)
	if err != nil {
		return Outcome{}, fmt.Errorf("execute code: %w", err)
	}

	req.Run.LogInfo("agent.code.executed", "agent", req.Run.AgentName(), "peer", req.Peer(),
		"blocks", len(blocks), "exit_code", res.ExitCode)

	return core.Reply(message.New(message.RoleUser, CodeResultText(res))), nil
}

// CodeResultText renders an execution result as reply content.
func CodeResultText(res code.Result) string {
	status := "execution succeeded"
	if !res.Succeeded() {
		status = "execution failed"
	}
	return fmt.Sprintf("exitcode: %d (%s)\nCode output: %s", res.ExitCode, status, res.Output)
}
