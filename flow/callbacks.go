package flow

import (
	"context"
	"sync"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
	"github.com/hupe1980/agentchat/model"
	"github.com/hupe1980/agentchat/tool"
)

// CallbackType defines the lifecycle points where callbacks run.
type CallbackType string

const (
	// CallbackBeforeReply runs before an agent generates a reply.
	CallbackBeforeReply CallbackType = "before_reply"

	// CallbackAfterReply runs after a reply has been generated (Outcome set).
	CallbackAfterReply CallbackType = "after_reply"

	// CallbackBeforeModel runs before the LLM stage calls the model.
	// Callbacks may modify Request.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel runs after a successful model call (Response set).
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool runs before a message's calls are executed.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool runs after all calls of a message were executed
	// (Results set).
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnTermination runs when the termination stage ends a chat.
	CallbackOnTermination CallbackType = "on_termination"

	// CallbackOnError runs when a model call fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries everything a callback may inspect. Fields not
// relevant to the lifecycle point are zero.
type CallbackContext struct {
	Run          *core.RunContext
	Peer         string
	CallbackType CallbackType
	Message      *message.Message
	Request      *model.Request
	Response     *model.Response
	Results      []tool.CallResult
	Outcome      *core.Outcome
	Err          error
	Metadata     map[string]any
}

// Callback is a lifecycle hook. Returning an error aborts the operation,
// except for after-the-fact hooks (after_*, on_termination, on_error) whose
// errors are logged.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback.
//
// Example:
//
//	cb := flow.NewFunctionCallback(flow.CallbackAfterModel,
//	    func(ctx context.Context, c *flow.CallbackContext) error {
//	        log.Printf("tokens: %d", c.Response.Usage.TotalTokens)
//	        return nil
//	    })
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a function based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks per lifecycle point. Callbacks run in
// registration order; the first error stops the chain. A nil manager is
// valid and runs nothing.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs all callbacks registered for callbackType.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// notify runs after-the-fact callbacks, logging failures instead of
// returning them.
func (cm *CallbackManager) notify(run *core.RunContext, callbackType CallbackType, callbackCtx *CallbackContext) {
	if cm == nil {
		return
	}

	callbackCtx.Run = run
	if err := cm.ExecuteCallbacks(run.Context, callbackType, callbackCtx); err != nil {
		run.LogWarn("flow.callback.error", "type", string(callbackType), "error", err.Error())
	}
}

// LoggingCallback writes one structured log line per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the event.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"type", string(c.callbackType), "peer", callbackCtx.Peer}

	if callbackCtx.Run != nil {
		args = append(args, "agent", callbackCtx.Run.AgentName())
	}
	if callbackCtx.Message != nil {
		args = append(args, "content", callbackCtx.Message.Text())
	}
	if callbackCtx.Response != nil && callbackCtx.Response.Usage != nil {
		args = append(args, "tokens", callbackCtx.Response.Usage.TotalTokens)
	}
	if len(callbackCtx.Results) > 0 {
		args = append(args, "calls", len(callbackCtx.Results))
	}
	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
	}

	c.logger.Info("flow.callback", args...)

	return nil
}
