package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/graph"
)

// sourceTree writes a minimal deployable source directory.
func sourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.py"), []byte("root_agent = None\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("google-adk"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o600))
	return dir
}

// rootWithSearchHelper builds root -> search_helper(search).
func rootWithSearchHelper(t *testing.T) *graph.Graph {
	t.Helper()
	helper, err := agent.New("search_helper", "gemini-2.5-flash", func(o *agent.Options) {
		o.Instruction = "Use the search tool to find information on the web."
		o.Capabilities = []agent.Capability{agent.Search()}
	})
	require.NoError(t, err)

	root, err := agent.New("root", "gemini-2.5-flash", func(o *agent.Options) {
		o.Description = "Root agent"
		o.Instruction = "Answer the user."
		o.Capabilities = []agent.Capability{agent.Delegate(helper)}
	})
	require.NoError(t, err)

	g, err := graph.New(root)
	require.NoError(t, err)
	return g
}
