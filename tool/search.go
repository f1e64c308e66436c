package tool

import (
	"context"
	"time"

	"github.com/hupe1980/agentengine/core"
)

// SearchToolName is the function name of the web search tool.
const SearchToolName = "google_search"

// SearchResult is one ranked snippet returned by a Searcher.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is a web search provider returning ranked snippets for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query string) ([]SearchResult, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return f(ctx, query)
}

// SearchTool exposes a Searcher to the model.
type SearchTool struct {
	searcher Searcher
}

// NewSearchTool creates the web search tool backed by s.
func NewSearchTool(s Searcher) *SearchTool { return &SearchTool{searcher: s} }

// Name implements Tool.
func (t *SearchTool) Name() string { return SearchToolName }

// Description implements Tool.
func (t *SearchTool) Description() string {
	return "Search the web and return ranked result snippets with their URLs."
}

// Parameters implements Tool.
func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "The search query"},
		},
		"required": []string{"query"},
	}
}

// Call implements Tool.
func (t *SearchTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	query, err := stringArg(t.Name(), args, "query")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := t.searcher.Search(tc.Context(), query)
	if err != nil {
		tc.LogError("tool.search.failed", "query", query, "error", err.Error())
		return nil, &ToolError{Tool: t.Name(), Code: CodeExecution, Message: err.Error(), Err: err}
	}

	tc.LogDebug("tool.search.completed", "query", query, "results", len(results), "duration_ms", time.Since(start).Milliseconds())

	return map[string]any{"query": query, "results": results}, nil
}
