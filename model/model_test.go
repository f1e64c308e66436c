package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
)

func TestScriptedModel_Reply(t *testing.T) {
	m := NewScriptedModel("test", Reply("hello there"))

	req := Request{Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")}}
	resp, err := Collect(context.Background(), m, req, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content.Text())
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Empty(t, resp.FunctionCalls())
	assert.Equal(t, 0, m.Remaining())
	assert.Equal(t, []Request{req}, m.Requests())
}

func TestScriptedModel_StreamPartials(t *testing.T) {
	m := NewScriptedModel("test", Reply("one two three"))

	var partials []string
	resp, err := Collect(context.Background(), m, Request{Stream: true}, func(r Response) error {
		partials = append(partials, r.Content.Text())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one ", "two ", "three"}, partials)
	assert.Equal(t, "one two three", resp.Content.Text())
}

func TestScriptedModel_Call(t *testing.T) {
	m := NewScriptedModel("test", Call("google_search", map[string]any{"query": "go"}))

	resp, err := Collect(context.Background(), m, Request{}, nil)
	require.NoError(t, err)

	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "google_search", calls[0].Name)
	assert.JSONEq(t, `{"query":"go"}`, calls[0].Arguments)
	assert.NotEmpty(t, calls[0].ID)
	assert.Equal(t, "tool_calls", resp.FinishReason)
}

func TestScriptedModel_Errors(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel("test", Fail(boom))

	_, err := Collect(context.Background(), m, Request{}, nil)
	assert.ErrorIs(t, err, boom)

	_, err = Collect(context.Background(), m, Request{}, nil)
	assert.ErrorContains(t, err, "no turns left")
}

func TestCollect_PartialCallbackError(t *testing.T) {
	stop := errors.New("stop")
	m := NewScriptedModel("test", Reply("a b"))

	_, err := Collect(context.Background(), m, Request{Stream: true}, func(Response) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestNewFunctionTool(t *testing.T) {
	def := NewFunctionTool("f", "does f", map[string]any{"type": "object"})
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, "f", def.Function.Name)
	assert.Equal(t, "does f", def.Function.Description)
}
