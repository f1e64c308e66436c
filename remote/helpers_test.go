package remote

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/descriptor"
)

const testResource = "projects/p1/locations/us-central1/reasoningEngines/42"

func testDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.py"), []byte("root_agent = None\n"), 0o600))
	return &descriptor.Descriptor{
		DisplayName:    "coach",
		SourceLocation: dir,
		Entrypoint:     descriptor.Entrypoint{Module: "agent", Object: "root_agent"},
		Requirements:   descriptor.Requirements{Packages: []string{"google-adk"}},
		Framework:      descriptor.FrameworkADK,
		Methods:        descriptor.DefaultMethods(),
	}
}

// countingServer serves h and counts requests.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New("p1", "us-central1", func(o *Options) {
		o.Endpoint = srv.URL
		o.HTTPClient = srv.Client()
	})
	require.NoError(t, err)
	return c
}

func stringsReader(s string) io.Reader { return strings.NewReader(s) }
