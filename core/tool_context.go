package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentengine/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by an agent: the request context, the conversation key, the calling agent
// and the function call being served. Tools never see other agents' state.
type ToolContext struct {
	ctx            context.Context
	key            SessionKey
	invocationID   string
	agentName      string
	functionCallID string

	*scopedLogger
}

// ToolContextOptions configures optional ToolContext fields.
type ToolContextOptions struct {
	InvocationID string
	Logger       logging.Logger
}

// NewToolContext constructs a tool context for a single function call issued
// by agentName within the conversation identified by key.
func NewToolContext(ctx context.Context, key SessionKey, agentName, functionCallID string, optFns ...func(o *ToolContextOptions)) *ToolContext {
	opts := ToolContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return &ToolContext{
		ctx:            ctx,
		key:            key,
		invocationID:   opts.InvocationID,
		agentName:      agentName,
		functionCallID: functionCallID,
		scopedLogger:   newScopedLogger(opts.Logger, "invocation_id", opts.InvocationID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionKey returns the conversation key the tool call belongs to.
func (tc *ToolContext) SessionKey() SessionKey { return tc.key }

// UserID returns the user id of the conversation.
func (tc *ToolContext) UserID() string { return tc.key.UserID }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.key.SessionID }

// InvocationID returns the invocation the tool call belongs to.
func (tc *ToolContext) InvocationID() string { return tc.invocationID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.scopedLogger.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.agentName == "" || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext: agent %q, function call %q", tc.agentName, tc.functionCallID)
	}
	return nil
}
