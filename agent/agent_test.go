package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
)

func newLeaf(t *testing.T, name string, caps ...Capability) *Agent {
	t.Helper()
	a, err := New(name, "gemini-2.5-flash", func(o *Options) {
		o.Instruction = "Use the tool."
		o.Capabilities = caps
	})
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	search := newLeaf(t, "google_search_agent", Search())
	root, err := New("lawyer", "gemini-2.5-flash", func(o *Options) {
		o.Description = "Agent to help interact with my data."
		o.Instruction = "You are a professional lawyer."
		o.Capabilities = []Capability{Delegate(search)}
	})
	require.NoError(t, err)

	assert.Equal(t, "lawyer", root.Name())
	assert.Equal(t, "gemini-2.5-flash", root.ModelID())
	assert.Equal(t, "Agent to help interact with my data.", root.Description())
	assert.Equal(t, "You are a professional lawyer.", root.Instruction())
	assert.Equal(t, []*Agent{search}, root.Delegates())
	assert.True(t, root.HasCapability(KindDelegation))
	assert.False(t, root.HasCapability(KindSearch))
	assert.True(t, search.HasCapability(KindSearch))
}

func TestNew_Validation(t *testing.T) {
	withInstruction := func(o *Options) { o.Instruction = "x" }

	tests := []struct {
		name    string
		agent   string
		model   string
		optFns  []func(o *Options)
		field   string
	}{
		{"empty name", "", "m", []func(o *Options){withInstruction}, "name"},
		{"invalid name", "search agent", "m", []func(o *Options){withInstruction}, "name"},
		{"leading digit", "1agent", "m", []func(o *Options){withInstruction}, "name"},
		{"empty model", "a", "", []func(o *Options){withInstruction}, "model_id"},
		{"empty instruction", "a", "m", nil, "instruction"},
		{"nil delegation", "a", "m", []func(o *Options){withInstruction, func(o *Options) {
			o.Capabilities = []Capability{AgentDelegation{}}
		}}, "capabilities"},
		{"nil capability", "a", "m", []func(o *Options){withInstruction, func(o *Options) {
			o.Capabilities = []Capability{nil}
		}}, "capabilities"},
		{"nil child", "a", "m", []func(o *Options){withInstruction, func(o *Options) {
			o.Children = []*Agent{nil}
		}}, "children"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.agent, tt.model, tt.optFns...)
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() { MustNew("", "m") })
}

func TestAccessorsReturnCopies(t *testing.T) {
	child := newLeaf(t, "child")
	a := newLeaf(t, "parent", Search())
	require.NoError(t, a.AddChild(child))

	caps := a.Capabilities()
	caps[0] = URLFetch()
	assert.Equal(t, KindSearch, a.Capabilities()[0].Kind())

	children := a.Children()
	children[0] = nil
	assert.Same(t, child, a.Children()[0])
}

func TestSeal(t *testing.T) {
	a := newLeaf(t, "a")
	b := newLeaf(t, "b")

	require.NoError(t, a.AddCapability(URLFetch()))
	assert.False(t, a.Sealed())

	a.Seal()
	assert.True(t, a.Sealed())

	err := a.AddCapability(Delegate(b))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only at deployment time")
	assert.True(t, core.IsValidation(a.AddChild(b)))
	assert.Len(t, a.Capabilities(), 1)

	assert.True(t, core.IsValidation(b.AddCapability(AgentDelegation{})))
	assert.True(t, core.IsValidation(b.AddCapability(&AgentDelegation{Target: a})))
}

func TestConcurrentAddCapability(t *testing.T) {
	a := newLeaf(t, "a")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.AddCapability(Search())
		}()
	}
	wg.Wait()
	assert.Len(t, a.Capabilities(), 20)
}
