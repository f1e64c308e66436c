package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
)

func TestBuild_RootWithSearchHelper(t *testing.T) {
	g := rootWithSearchHelper(t)

	d, err := Build(g, Package{SourceLocation: sourceTree(t), RequirementsFile: "requirements.txt"})
	require.NoError(t, err)

	assert.Equal(t, "root", d.DisplayName)
	assert.Equal(t, "Root agent", d.Description)
	assert.Equal(t, Entrypoint{Module: "agent", Object: "root"}, d.Entrypoint)
	assert.Equal(t, FrameworkADK, d.Framework)

	var stream []MethodSpec
	for _, m := range d.Methods {
		if m.Mode == ModeStream {
			stream = append(stream, m)
		}
	}
	require.Len(t, stream, 1)
	for _, p := range QueryParameters {
		assert.True(t, stream[0].Requires(p, "string"), p)
	}
}

func TestBuild_Options(t *testing.T) {
	g := rootWithSearchHelper(t)

	d, err := Build(g, Package{SourceLocation: sourceTree(t), Module: "coach", Packages: []string{"google-adk"}}, func(o *Options) {
		o.DisplayName = "AI Coach"
		o.Description = "Personal coach"
		o.EntrypointObject = "root_agent"
		o.Framework = FrameworkCustom
		o.SessionMethods = true
	})
	require.NoError(t, err)

	assert.Equal(t, "AI Coach", d.DisplayName)
	assert.Equal(t, Entrypoint{Module: "coach", Object: "root_agent"}, d.Entrypoint)
	assert.Equal(t, FrameworkCustom, d.Framework)
	assert.Equal(t, []string{"google-adk"}, d.Requirements.Packages)
	require.Len(t, d.Methods, 5)
	_, ok := d.Method("list_sessions")
	assert.True(t, ok)
}

func TestBuild_Errors(t *testing.T) {
	g := rootWithSearchHelper(t)

	_, err := Build(nil, Package{})
	assert.True(t, core.IsValidation(err))

	_, err = Build(g, Package{SourceLocation: sourceTree(t)}, func(o *Options) {
		o.Framework = "autogen"
	})
	assert.True(t, core.IsValidation(err))

	_, err = Build(g, Package{SourceLocation: "/does/not/exist"})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source_location", ve.Field)
}

func TestBuild_MethodsAreCopied(t *testing.T) {
	g := rootWithSearchHelper(t)
	methods := DefaultMethods()

	d, err := Build(g, Package{SourceLocation: sourceTree(t)}, func(o *Options) { o.Methods = methods })
	require.NoError(t, err)

	delete(methods[0].Parameters, "message")
	assert.NoError(t, d.Validate())
}
