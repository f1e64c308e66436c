package tool

import (
	"context"
	"time"

	"github.com/hupe1980/agentengine/core"
)

// URLContextToolName is the function name of the URL fetch tool.
const URLContextToolName = "url_context"

// Page is the content retrieved for a URL.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Fetcher is a URL fetch provider returning page content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Page, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Page, error) { return f(ctx, url) }

// URLContextTool exposes a Fetcher to the model.
type URLContextTool struct {
	fetcher Fetcher
}

// NewURLContextTool creates the URL fetch tool backed by f.
func NewURLContextTool(f Fetcher) *URLContextTool { return &URLContextTool{fetcher: f} }

// Name implements Tool.
func (t *URLContextTool) Name() string { return URLContextToolName }

// Description implements Tool.
func (t *URLContextTool) Description() string {
	return "Retrieve the text content of a web page given its URL."
}

// Parameters implements Tool.
func (t *URLContextTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "Absolute http(s) URL to retrieve"},
		},
		"required": []string{"url"},
	}
}

// Call implements Tool.
func (t *URLContextTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	url, err := stringArg(t.Name(), args, "url")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	page, err := t.fetcher.Fetch(tc.Context(), url)
	if err != nil {
		tc.LogError("tool.url_context.failed", "url", url, "error", err.Error())
		return nil, &ToolError{Tool: t.Name(), Code: CodeExecution, Message: err.Error(), Err: err}
	}

	tc.LogDebug("tool.url_context.completed", "url", url, "bytes", len(page.Text), "duration_ms", time.Since(start).Milliseconds())

	return page, nil
}
