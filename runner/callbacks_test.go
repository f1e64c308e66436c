package runner

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/model"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) callbacks(types ...CallbackType) []Callback {
	out := make([]Callback, 0, len(types))
	for _, t := range types {
		out = append(out, NewFunctionCallback(t, func(_ context.Context, cc *CallbackContext) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			entry := string(cc.Type) + ":" + cc.Agent
			if cc.Call != nil {
				entry += ":" + cc.Call.Name
			}
			r.calls = append(r.calls, entry)
			return nil
		}))
	}
	return out
}

func TestCallbacks_Order(t *testing.T) {
	f := newFixture(t,
		[]model.Turn{
			model.Call("google_search_agent", map[string]any{"request": "statute of frauds"}),
			model.Reply("Done."),
		},
		[]model.Turn{model.Reply("Found it.")},
		nil,
	)

	rec := &recorder{}
	r := f.runner(t, func(o *Options) {
		o.Callbacks = rec.callbacks(
			CallbackBeforeAgent, CallbackAfterAgent,
			CallbackBeforeModel, CallbackAfterModel,
			CallbackBeforeTool, CallbackAfterTool,
		)
	})

	_, err := collect(t, r, "u1", "s1", "question")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"before_agent:lawyer",
		"before_model:lawyer",
		"after_model:lawyer",
		"before_tool:lawyer:google_search_agent",
		"before_agent:google_search_agent",
		"before_model:google_search_agent",
		"after_model:google_search_agent",
		"after_agent:google_search_agent",
		"after_tool:lawyer:google_search_agent",
		"before_model:lawyer",
		"after_model:lawyer",
		"after_agent:lawyer",
	}, rec.calls)
}

func TestCallbacks_BeforeModelCanEditRequest(t *testing.T) {
	f := newFixture(t, []model.Turn{model.Reply("Hi.")}, nil, nil)
	r := f.runner(t, func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackBeforeModel, func(_ context.Context, cc *CallbackContext) error {
			cc.Request.Instructions += " Answer briefly."
			return nil
		})}
	})

	_, err := collect(t, r, "u1", "s1", "hello")
	require.NoError(t, err)

	reqs := f.lawyer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a lawyer. Research questions with your helpers before answering. Answer briefly.", reqs[0].Instructions)
}

func TestCallbacks_ErrorTerminatesAndNotifies(t *testing.T) {
	f := newFixture(t,
		[]model.Turn{model.Call("url_context_agent", map[string]any{"request": "https://law.example"})},
		nil, nil,
	)

	var onError error
	r := f.runner(t, func(o *Options) {
		o.Callbacks = []Callback{
			NewFunctionCallback(CallbackBeforeTool, func(_ context.Context, cc *CallbackContext) error {
				return errors.New("tool not allowed")
			}),
			NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
				onError = cc.Err
				return errors.New("ignored")
			}),
		}
	})

	_, err := collect(t, r, "u1", "s1", "read this")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before_tool callback: tool not allowed")
	assert.Equal(t, err, onError)
	assert.Empty(t, f.urls.Requests())
}

func TestLoggingCallback(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = logging.LogLevelDebug
	cfg.Output = &buf

	f := newFixture(t, []model.Turn{model.Reply("Hi.")}, nil, nil)
	r := f.runner(t, func(o *Options) {
		o.Callbacks = []Callback{NewLoggingCallback(CallbackAfterAgent, logging.NewLogger(cfg))}
	})

	_, err := collect(t, r, "u1", "s1", "hello")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "runner.callback.after_agent")
}

func TestCallbackManager_StopsAtFirstError(t *testing.T) {
	var ran []int
	cm := NewCallbackManager(
		NewFunctionCallback(CallbackBeforeAgent, func(context.Context, *CallbackContext) error { ran = append(ran, 1); return errors.New("stop") }),
		NewFunctionCallback(CallbackBeforeAgent, func(context.Context, *CallbackContext) error { ran = append(ran, 2); return nil }),
		NewFunctionCallback(CallbackAfterAgent, func(context.Context, *CallbackContext) error { ran = append(ran, 3); return nil }),
	)

	err := cm.Execute(context.Background(), &CallbackContext{Type: CallbackBeforeAgent})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []int{1}, ran)

	require.NoError(t, cm.Execute(context.Background(), &CallbackContext{Type: CallbackOnError}))
}
