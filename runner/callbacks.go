package runner

import (
	"context"
	"sync"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/model"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks run synchronously on the invocation goroutine. An error returned
// by a Before*/After* callback terminates the invocation; errors of OnError
// callbacks are only logged.
type CallbackType string

const (
	// CallbackBeforeAgent is triggered before an agent runs its first turn,
	// for the root agent and for every delegated agent.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent is triggered with the final event of an agent.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackBeforeModel is triggered before each model call. Callbacks may
	// modify CallbackContext.Request.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered with the event built from each model
	// response, before it is emitted.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool is triggered before each function call executes.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered with the result of each function call.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError is triggered when an invocation fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the lifecycle point a callback runs at. Fields
// that do not apply to the callback type are zero.
type CallbackContext struct {
	Type         CallbackType
	InvocationID string
	Key          core.SessionKey
	Agent        string

	Request *model.Request
	Event   *core.Event
	Call    *core.FunctionCall
	Result  any
	Err     error
}

// Callback is an execution lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback wraps a function as a callback.
//
//	onTool := runner.NewFunctionCallback(runner.CallbackBeforeTool,
//		func(ctx context.Context, cc *runner.CallbackContext) error {
//			if cc.Call.Name == "url_context" && !allowed(cc.Call.Arguments) {
//				return errors.New("url not allowed")
//			}
//			return nil
//		})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback creates a callback of the given type from fn.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	return c.fn(ctx, cc)
}

// LoggingCallback logs every lifecycle point of its type at debug level.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	args := []any{"invocation_id", cc.InvocationID, "agent", cc.Agent}
	if cc.Event != nil {
		args = append(args, "event_id", cc.Event.ID)
	}
	if cc.Call != nil {
		args = append(args, "tool", cc.Call.Name)
	}
	if cc.Err != nil {
		args = append(args, "error", cc.Err.Error())
	}
	c.logger.Debug("runner.callback."+string(c.callbackType), args...)
	return nil
}

// CallbackManager routes lifecycle points to the registered callbacks.
// Callbacks of one type run in registration order; the first error stops
// the chain. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a manager with the given callbacks registered.
func NewCallbackManager(callbacks ...Callback) *CallbackManager {
	cm := &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
	for _, cb := range callbacks {
		cm.Register(cb)
	}
	return cm
}

// Register adds a callback.
func (cm *CallbackManager) Register(cb Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
}

// Execute runs the callbacks registered for cc.Type.
func (cm *CallbackManager) Execute(ctx context.Context, cc *CallbackContext) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[cc.Type]
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cc); err != nil {
			return err
		}
	}
	return nil
}
