package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/model"
)

func newTestModel(t *testing.T, h http.HandlerFunc) *Model {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := anthropic.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	return NewModelFromClient(&client)
}

func TestGenerate_ToolUse(t *testing.T) {
	var body map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude","stop_reason":"tool_use",
			"content":[{"type":"text","text":"Let me check."},{"type":"tool_use","id":"tu_1","name":"url_context","input":{"url":"https://a"}}],
			"usage":{"input_tokens":5,"output_tokens":6}}`))
	})

	resp, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "You are a lawyer.",
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, "q"),
			{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "tu_0", Name: "google_search", Arguments: `{"query":"x"}`}}}},
			{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "tu_0", Name: "google_search", Response: "results"}}}},
		},
		Tools: []model.ToolDefinition{model.NewFunctionTool("url_context", "fetch", map[string]any{
			"type":       "object",
			"properties": map[string]any{"url": map[string]any{"type": "string"}},
			"required":   []string{"url"},
		})},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", resp.Content.Text())
	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu_1", calls[0].ID)
	assert.JSONEq(t, `{"url":"https://a"}`, calls[0].Arguments)
	assert.Equal(t, "tool_use", resp.FinishReason)
	assert.Equal(t, 11, resp.Usage.TotalTokens)

	messages, _ := body["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "user", messages[2].(map[string]any)["role"], "tool results are user messages")
	assert.NotNil(t, body["system"])
}

func TestGenerate_Stream(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[],"usage":{"input_tokens":1,"output_tokens":0}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello "}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"counsel"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, ev := range events {
			_, _ = w.Write([]byte("event: " + ev.name + "\ndata: " + ev.data + "\n\n"))
		}
	})

	var partials []string
	resp, err := model.Collect(context.Background(), m, model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Stream:   true,
	}, func(r model.Response) error {
		partials = append(partials, r.Content.Text())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello ", "counsel"}, partials)
	assert.Equal(t, "Hello counsel", resp.Content.Text())
	assert.Equal(t, "end_turn", resp.FinishReason)
}

func TestBuildTools_Description(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{model.NewFunctionTool("f", "does f", map[string]any{"required": []any{"a"}})})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "f", tools[0].OfTool.Name)
	assert.Equal(t, []string{"a"}, tools[0].OfTool.InputSchema.Required)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "claude-x" })
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.Equal(t, "claude-x", m.Info().Name)
}
