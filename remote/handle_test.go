package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
)

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle("/" + testResource + "/")
	require.NoError(t, err)
	assert.Equal(t, testResource, h.ResourceName)
	assert.Equal(t, testResource, h.String())
	assert.Equal(t, "42", h.ID())

	for _, bad := range []string{"", "42", "projects/p/locations/l/agents/1", testResource + "/operations/1"} {
		_, err := ParseHandle(bad)
		assert.True(t, core.IsValidation(err), bad)
	}
}

func TestResourceFromOperation(t *testing.T) {
	r, err := resourceFromOperation(testResource + "/operations/99")
	require.NoError(t, err)
	assert.Equal(t, testResource, r)

	_, err = resourceFromOperation("operations/99")
	assert.Error(t, err)
}
