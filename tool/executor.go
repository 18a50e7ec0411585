package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/message"
)

// CallResult is the text outcome of one function execution. OK is false when
// the function was missing, its arguments could not be parsed or it failed.
type CallResult struct {
	ToolCallID string
	Name       string
	Content    string
	OK         bool
}

// Observer is notified after every execution.
type Observer func(name string, dur time.Duration, ok bool)

// Executor runs function and tool calls against a Registry. Failures never
// surface as Go errors; they become "Error: ..." reply text.
type Executor struct {
	Registry *Registry
	// MaxParallel bounds concurrent tool calls within one message. Values
	// below 2 run calls sequentially.
	MaxParallel int
	Observer    Observer
}

// NewExecutor creates a sequential executor for r.
func NewExecutor(r *Registry, optFns ...func(e *Executor)) *Executor {
	e := &Executor{Registry: r, MaxParallel: 1}
	for _, fn := range optFns {
		fn(e)
	}
	return e
}

// ExecuteFunctionCall runs a single call. callID is empty for legacy
// function calls.
func (e *Executor) ExecuteFunctionCall(runCtx *core.RunContext, call message.FunctionCall, callID string) CallResult {
	start := time.Now()
	res := e.execute(runCtx, call, callID)
	dur := time.Since(start)

	if l, ok := runCtx.Logger().(toolCallLogger); ok {
		var err error
		if !res.OK {
			err = errors.New(res.Content)
		}
		l.LogToolCall(call.Name, dur, res.OK, err)
	}

	if e.Observer != nil {
		e.Observer(call.Name, dur, res.OK)
	}

	return res
}

type toolCallLogger interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
}

// ExecuteToolCalls runs calls with at most MaxParallel in flight and returns
// results in call order.
func (e *Executor) ExecuteToolCalls(runCtx *core.RunContext, calls []message.ToolCall) []CallResult {
	results := make([]CallResult, len(calls))

	limit := e.MaxParallel
	if limit < 1 {
		limit = 1
	}

	start := time.Now()

	var g errgroup.Group
	g.SetLimit(limit)

	for i, tc := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteFunctionCall(runCtx, tc.Function, tc.ID)
			return nil
		})
	}

	_ = g.Wait()

	runCtx.LogDebug("tool.batch.complete", "agent", runCtx.AgentName(), "count", len(calls), "max_parallel", limit, "duration_ms", time.Since(start).Milliseconds())

	return results
}

func (e *Executor) execute(runCtx *core.RunContext, call message.FunctionCall, callID string) (res CallResult) {
	res = CallResult{ToolCallID: callID, Name: call.Name}

	var t Tool
	if e.Registry != nil {
		t, _ = e.Registry.Get(call.Name)
	}
	if t == nil {
		res.Content = fmt.Sprintf("Error: Function %s not found.", call.Name)
		return res
	}

	raw := call.Arguments
	if raw == "" {
		raw = "{}"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(FormatJSON(raw)), &args); err != nil {
		res.Content = fmt.Sprintf("Error: %s\n You argument should follow json format.", err)
		return res
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			runCtx.LogError("tool.call.panic", "tool", call.Name, "call_id", callID, "panic", fmt.Sprint(r))
			res.Content = fmt.Sprintf("Error: panic: %v", r)
			res.OK = false
		}
	}()

	value, err := t.Call(core.NewToolContext(runCtx, callID, call.Name), args)
	if err != nil {
		res.Content = "Error: " + errorText(err)
		return res
	}

	res.Content = Stringify(value)
	res.OK = true

	return res
}

// errorText unwraps *ToolError so the reply carries the underlying message.
func errorText(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr.Message != "" {
		return toolErr.Message
	}
	return err.Error()
}

// Stringify renders a function result as reply text: strings verbatim,
// scalars in their natural form, everything else as JSON. nil renders empty.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.RawMessage:
		return string(x)
	case []byte:
		return string(x)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
