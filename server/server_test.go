package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/internal/testutil"
	"github.com/hupe1980/agentengine/model"
	"github.com/hupe1980/agentengine/remote"
	"github.com/hupe1980/agentengine/runner"
	"github.com/hupe1980/agentengine/tool"
)

type harness struct {
	graph  *graph.Graph
	server *Server
	http   *httptest.Server
	client *remote.Client
	lawyer *model.ScriptedModel
	search *model.ScriptedModel
}

func newHarness(t *testing.T, register bool, lawyer, search []model.Turn) *harness {
	t.Helper()

	g, err := testutil.CoachGraph()
	require.NoError(t, err)

	h := &harness{
		graph:  g,
		lawyer: model.NewScriptedModel("lawyer-model", lawyer...),
		search: model.NewScriptedModel("search-model", search...),
	}

	catalog := descriptor.NewCatalog()
	if register {
		require.NoError(t, catalog.Add(descriptor.Entrypoint{Module: "agent", Object: "lawyer"}, g))
	}

	var ids atomic.Int32
	srv, err := New(catalog, func(g *graph.Graph) (*runner.Runner, error) {
		return runner.New(g, func(o *runner.Options) {
			o.Models = runner.StaticModels(map[string]model.Model{
				"lawyer":              h.lawyer,
				"google_search_agent": h.search,
				"url_context_agent":   model.NewScriptedModel("url-model"),
			})
			o.Searcher = tool.SearcherFunc(func(_ context.Context, q string) ([]tool.SearchResult, error) {
				return []tool.SearchResult{{Title: q, URL: "https://law.example"}}, nil
			})
			o.Fetcher = tool.FetcherFunc(func(_ context.Context, url string) (*tool.Page, error) {
				return &tool.Page{URL: url}, nil
			})
			o.Stream = false
		})
	}, func(o *Options) {
		o.NewID = func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }
	})
	require.NoError(t, err)
	h.server = srv

	h.http = httptest.NewServer(srv.Handler())
	t.Cleanup(h.http.Close)

	h.client, err = remote.New("p1", "us-central1", func(o *remote.Options) {
		o.Endpoint = h.http.URL
		o.HTTPClient = h.http.Client()
	})
	require.NoError(t, err)

	return h
}

func (h *harness) descriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.py"), []byte("lawyer = None\n"), 0o600))

	d, err := descriptor.Build(h.graph, descriptor.Package{
		SourceLocation: dir,
		Packages:       []string{"google-adk"},
	}, func(o *descriptor.Options) {
		o.SessionMethods = true
	})
	require.NoError(t, err)
	return d
}

func (h *harness) register(t *testing.T) remote.Handle {
	t.Helper()
	handle, err := h.client.Register(context.Background(), h.descriptor(t))
	require.NoError(t, err)
	return handle
}

func drain(t *testing.T, s *remote.Stream) []remote.Chunk {
	t.Helper()
	defer s.Close()

	var chunks []remote.Chunk
	for s.Next() {
		chunks = append(chunks, s.Current())
	}
	return chunks
}

func TestServer_RegisterAndStreamQuery(t *testing.T) {
	h := newHarness(t, true,
		[]model.Turn{
			model.Call("google_search_agent", map[string]any{"request": "statute of frauds"}),
			model.Reply("Land contracts must be in writing."),
		},
		[]model.Turn{model.Reply("A writing is required.")},
	)

	handle := h.register(t)
	assert.Equal(t, "projects/p1/locations/us-central1/reasoningEngines/id-1", handle.ResourceName)
	assert.False(t, handle.CreatedAt.IsZero())
	assert.Equal(t, []string{handle.ResourceName}, h.server.Engines())

	stream, err := h.client.StreamQuery(context.Background(), handle, remote.QueryRequest{
		UserID:    "u1",
		SessionID: "s1",
		Message:   "Do land contracts need to be written?",
	})
	require.NoError(t, err)

	chunks := drain(t, stream)
	require.NoError(t, stream.Err())
	require.Len(t, chunks, 3)

	require.NotNil(t, chunks[0].Event)
	assert.Equal(t, "lawyer", chunks[0].Event.Author)
	assert.Len(t, chunks[0].Event.GetFunctionCalls(), 1)

	last := chunks[2].Event
	require.NotNil(t, last)
	assert.True(t, last.TurnComplete)
	assert.Equal(t, "Land contracts must be in writing.", last.Text())
}

func TestServer_SessionMethods(t *testing.T) {
	h := newHarness(t, true, []model.Turn{model.Reply("Hello.")}, nil)
	handle := h.register(t)
	ctx := context.Background()

	stream, err := h.client.StreamQuery(ctx, handle, remote.QueryRequest{UserID: "u1", SessionID: "s1", Message: "Hi"})
	require.NoError(t, err)
	drain(t, stream)
	require.NoError(t, stream.Err())

	out, err := h.client.Query(ctx, handle, "list_sessions", map[string]any{"user_id": "u1"})
	require.NoError(t, err)

	var listed struct {
		Sessions []core.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(out, &listed))
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, "s1", listed.Sessions[0].ID)
	assert.Len(t, listed.Sessions[0].Events, 2)

	out, err = h.client.Query(ctx, handle, "create_session", map[string]any{"user_id": "u2"})
	require.NoError(t, err)
	var created core.Session
	require.NoError(t, json.Unmarshal(out, &created))
	assert.Equal(t, "u2", created.UserID)
	assert.NotEmpty(t, created.ID)

	_, err = h.client.Query(ctx, handle, "delete_session", map[string]any{"user_id": "u1", "session_id": "s1"})
	require.NoError(t, err)

	_, err = h.client.Query(ctx, handle, "get_session", map[string]any{"user_id": "u1", "session_id": "s1"})
	var ie *core.InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, http.StatusNotFound, ie.StatusCode)
	assert.Equal(t, handle.ResourceName, ie.ResourceName)
}

func TestServer_QueryRejectsStreamMethod(t *testing.T) {
	h := newHarness(t, true, nil, nil)
	handle := h.register(t)

	_, err := h.client.Query(context.Background(), handle, descriptor.StreamQueryMethod, map[string]any{
		"user_id": "u1", "session_id": "s1", "message": "hi",
	})
	var ie *core.InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, http.StatusBadRequest, ie.StatusCode)
	assert.Contains(t, ie.Message, "not a unary method")
}

func TestServer_UnknownEntrypoint(t *testing.T) {
	h := newHarness(t, false, nil, nil)

	_, err := h.client.Register(context.Background(), h.descriptor(t))

	var re *core.RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", re.Status)
	assert.Contains(t, re.Message, "unknown entrypoint agent:lawyer")
	assert.Empty(t, h.server.Engines())
}

func TestServer_StreamFailureChunk(t *testing.T) {
	h := newHarness(t, true, nil, nil)
	handle := h.register(t)

	stream, err := h.client.StreamQuery(context.Background(), handle, remote.QueryRequest{UserID: "u1", SessionID: "s1", Message: "hi"})
	require.NoError(t, err)

	chunks := drain(t, stream)
	assert.Empty(t, chunks)

	var ie *core.InvocationError
	require.ErrorAs(t, stream.Err(), &ie)
	assert.Equal(t, http.StatusInternalServerError, ie.StatusCode)
	assert.Contains(t, ie.Message, "no turns left")
}

func TestServer_UnknownEngine(t *testing.T) {
	h := newHarness(t, true, nil, nil)

	handle, err := remote.ParseHandle("projects/p1/locations/us-central1/reasoningEngines/missing")
	require.NoError(t, err)

	stream, err := h.client.StreamQuery(context.Background(), handle, remote.QueryRequest{UserID: "u1", SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	assert.False(t, stream.Next())

	var ie *core.InvocationError
	require.ErrorAs(t, stream.Err(), &ie)
	assert.Equal(t, http.StatusNotFound, ie.StatusCode)
	assert.Contains(t, ie.Message, "not found")
}

func TestServer_NDJSONAndMissingParameter(t *testing.T) {
	h := newHarness(t, true, []model.Turn{model.Reply("Hello there.")}, nil)
	handle := h.register(t)
	url := h.http.URL + "/v1/" + handle.ResourceName + ":streamQuery"

	resp, err := http.Post(url, "application/json", strings.NewReader(`{"classMethod":"stream_query","input":{"user_id":"u1","session_id":"s1"}}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "missing required parameter message")

	resp, err = http.Post(url, "application/json", strings.NewReader(`{"classMethod":"stream_query","input":{"user_id":"u1","session_id":"s1","message":"hi"}}`))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 1)
	var ev core.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "Hello there.", ev.Text())
	assert.True(t, ev.TurnComplete)
}

func TestServer_GetListDelete(t *testing.T) {
	h := newHarness(t, true, nil, nil)
	handle := h.register(t)
	base := h.http.URL + "/v1/projects/p1/locations/us-central1/reasoningEngines"

	resp, err := http.Get(base + "/" + handle.ID())
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, handle.ResourceName, got["name"])
	assert.Equal(t, "lawyer", got["displayName"])

	resp, err = http.Get(base)
	require.NoError(t, err)
	var listed struct {
		ReasoningEngines []map[string]any `json:"reasoningEngines"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	assert.Len(t, listed.ReasoningEngines, 1)

	req, err := http.NewRequest(http.MethodDelete, base+"/"+handle.ID(), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, h.server.Engines())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.True(t, core.IsValidation(err))

	_, err = New(descriptor.NewCatalog(), nil)
	assert.True(t, core.IsValidation(err))
}
