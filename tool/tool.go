// Package tool implements the function calling subsystem: registered Go
// functions that a model may request by name, with schema validated
// arguments, JSON argument repair and an order preserving executor that turns
// every outcome (including failures) into reply text.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/internal/util"
)

// Tool is a function an agent can execute on behalf of its peer.
//
// Implementations must be safe for concurrent use when the executor is
// configured with MaxParallel > 1.
type Tool interface {
	// Name returns the identifier the model uses to request the call.
	// It must match ^[A-Za-z0-9_-]{1,64}$.
	Name() string

	// Description is exported to the model with the schema.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the function with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
