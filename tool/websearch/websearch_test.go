package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/hupe1980/agentengine/tool"
)

func newTestSearcher(t *testing.T, h http.HandlerFunc) *Searcher {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), "", "engine-1", func(o *Options) {
		o.Num = 3
		o.ClientOptions = []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		}
	})
	require.NoError(t, err)

	return s
}

func TestSearch(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "engine-1", r.URL.Query().Get("cx"))
		assert.Equal(t, "contract law", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("num"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Contract","link":"https://law.example/contract","snippet":"A contract is"},
			{"title":"Tort","link":"https://law.example/tort","snippet":"A tort is"}
		]}`))
	})

	results, err := s.Search(context.Background(), "contract law")
	require.NoError(t, err)
	assert.Equal(t, []tool.SearchResult{
		{Title: "Contract", URL: "https://law.example/contract", Snippet: "A contract is"},
		{Title: "Tort", URL: "https://law.example/tort", Snippet: "A tort is"},
	}, results)
}

func TestSearch_NoItems(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	results, err := s.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_APIError(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded"}}`))
	})

	_, err := s.Search(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Quota exceeded")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), "key", "")
	assert.Error(t, err)

	_, err = New(context.Background(), "key", "cx", func(o *Options) { o.Num = 11 })
	assert.Error(t, err)
}
