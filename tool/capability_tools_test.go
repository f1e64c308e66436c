package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
)

func TestSearchTool(t *testing.T) {
	var gotQuery string
	st := NewSearchTool(SearcherFunc(func(_ context.Context, q string) ([]SearchResult, error) {
		gotQuery = q
		return []SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"}}, nil
	}))

	assert.Equal(t, SearchToolName, st.Name())
	assert.NotEmpty(t, st.Description())
	assert.Equal(t, []string{"query"}, st.Parameters()["required"])

	out, err := st.Call(newToolContext("google_search_agent", "fc"), map[string]any{"query": "golang"})
	require.NoError(t, err)
	assert.Equal(t, "golang", gotQuery)
	assert.Equal(t, map[string]any{
		"query":   "golang",
		"results": []SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"}},
	}, out)

	_, err = st.Call(newToolContext("a", "fc"), map[string]any{"query": 1})
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidation, te.Code)
}

func TestSearchTool_ProviderError(t *testing.T) {
	quota := errors.New("quota exceeded")
	st := NewSearchTool(SearcherFunc(func(context.Context, string) ([]SearchResult, error) { return nil, quota }))

	_, err := st.Call(newToolContext("a", "fc"), map[string]any{"query": "x"})
	assert.ErrorIs(t, err, quota)
}

func TestURLContextTool(t *testing.T) {
	ft := NewURLContextTool(FetcherFunc(func(_ context.Context, url string) (*Page, error) {
		if url == "https://bad.example" {
			return nil, errors.New("status 404")
		}
		return &Page{URL: url, Title: "Example", Text: "Hello"}, nil
	}))

	assert.Equal(t, URLContextToolName, ft.Name())

	out, err := ft.Call(newToolContext("url_context_agent", "fc"), map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, &Page{URL: "https://example.com", Title: "Example", Text: "Hello"}, out)

	_, err = ft.Call(newToolContext("url_context_agent", "fc"), map[string]any{"url": "https://bad.example"})
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeExecution, te.Code)

	_, err = ft.Call(newToolContext("url_context_agent", "fc"), map[string]any{})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidation, te.Code)
}

func TestAgentTool(t *testing.T) {
	at := NewAgentTool("google_search_agent", "", func(tc *core.ToolContext, target, request string) (string, error) {
		assert.Equal(t, "lawyer", tc.AgentName())
		return target + " answered: " + request, nil
	})

	assert.Equal(t, "google_search_agent", at.Name())
	assert.Contains(t, at.Description(), "google_search_agent")
	assert.Equal(t, []string{"request"}, at.Parameters()["required"])

	out, err := at.Call(newToolContext("lawyer", "fc"), map[string]any{"request": "find X"})
	require.NoError(t, err)
	assert.Equal(t, "google_search_agent answered: find X", out)
}

func TestAgentTool_FailureIsDelegationError(t *testing.T) {
	modelErr := errors.New("model unavailable")
	at := NewAgentTool("helper", "Searches things", func(*core.ToolContext, string, string) (string, error) {
		return "", modelErr
	})
	assert.Equal(t, "Searches things", at.Description())

	out, err := at.Call(newToolContext("root", "fc"), map[string]any{"request": "x"})
	assert.Nil(t, out, "failure is never an empty success")

	var de *core.DelegationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "root", de.Agent)
	assert.Equal(t, "helper", de.Target)
	assert.ErrorIs(t, err, modelErr)
}

func TestAgentTool_DoesNotDoubleWrap(t *testing.T) {
	inner := &core.DelegationError{Agent: "root", Target: "helper", Err: errors.New("x")}
	at := NewAgentTool("helper", "", func(*core.ToolContext, string, string) (string, error) { return "", inner })

	_, err := at.Call(newToolContext("root", "fc"), map[string]any{"request": "x"})
	assert.Same(t, inner, err)
}
