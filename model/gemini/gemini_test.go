package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/model"
)

func newTestModel(t *testing.T, h http.HandlerFunc) *Model {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m, err := NewModel(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	})
	require.NoError(t, err)

	return m
}

func TestGenerate_Text(t *testing.T) {
	var body map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"role":"model","parts":[{"text":"Counsel is ready."}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":4,"totalTokenCount":7}
		}`))
	})

	resp, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "You are a lawyer.",
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, "hello")},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Counsel is ready.", resp.Content.Text())
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	assert.Contains(t, body, "systemInstruction")
	contents, _ := body["contents"].([]any)
	require.Len(t, contents, 1)
}

func TestGenerate_FunctionCall(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"role":"model","parts":[
				{"functionCall":{"id":"c1","name":"google_search_agent","args":{"request":"statute of frauds"}}}
			]},"finishReason":"STOP"}]
		}`))
	})

	resp, err := model.Collect(context.Background(), m, model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "research")},
		Tools:    []model.ToolDefinition{model.NewFunctionTool("google_search_agent", "search", map[string]any{"type": "object"})},
	}, nil)
	require.NoError(t, err)

	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "google_search_agent", calls[0].Name)
	assert.JSONEq(t, `{"request":"statute of frauds"}`, calls[0].Arguments)
}

func TestGenerate_Stream(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"Hello \"}]}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"world\"}]},\"finishReason\":\"STOP\"}]}\n\n"))
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
	assert.Equal(t, []string{"Hello ", "world"}, partials)
	assert.Equal(t, "Hello world", resp.Content.Text())
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestGenerate_APIError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := model.Collect(context.Background(), m, model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini api error")
}

func TestToContents(t *testing.T) {
	contents, err := toContents([]core.Content{
		core.NewTextContent(core.RoleUser, "q"),
		{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "1", Name: "f", Arguments: `{"a":1}`}}}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "1", Name: "f", Response: "done"}}}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "2", Name: "g", Error: "boom"}}}},
	})
	require.NoError(t, err)
	require.Len(t, contents, 4)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, map[string]any{"a": float64(1)}, contents[1].Parts[0].FunctionCall.Args)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, map[string]any{"output": "done"}, contents[2].Parts[0].FunctionResponse.Response)
	assert.Equal(t, map[string]any{"error": "boom"}, contents[3].Parts[0].FunctionResponse.Response)

	_, err = toContents([]core.Content{{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{Name: "f", Arguments: "{"}}}}})
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gemini-2.5-pro" })
	assert.Equal(t, model.Info{Name: "gemini-2.5-pro", Provider: "gemini", SupportsTools: true}, m.Info())
}
