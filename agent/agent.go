package agent

import (
	"regexp"
	"sync"

	"github.com/hupe1980/agentengine/core"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures an Agent.
type Options struct {
	Description  string
	Instruction  string
	Capabilities []Capability
	Children     []*Agent
}

// Agent is a named, model-backed unit of work. Name must be unique within a
// graph and doubles as the tool name when the agent is a delegation target.
// All exported methods are goroutine-safe.
type Agent struct {
	name         string
	modelID      string
	description  string
	instruction  string
	capabilities []Capability
	children     []*Agent

	mu     sync.RWMutex
	sealed bool
}

// New constructs an Agent backed by the language model modelID.
//
// Example:
//
//	search := agent.New("google_search_agent", "gemini-2.5-flash", func(o *agent.Options) {
//		o.Instruction = "Use the search tool to find information on the web."
//		o.Capabilities = []agent.Capability{agent.Search()}
//	})
func New(name, modelID string, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, core.NewValidationError("name", name, "agent name must not be empty")
	}
	if !namePattern.MatchString(name) {
		return nil, core.NewValidationError("name", name, "agent name must start with a letter or underscore and contain only letters, digits and underscores")
	}
	if modelID == "" {
		return nil, core.NewValidationError("model_id", modelID, "agent %s: model id must not be empty", name)
	}
	if opts.Instruction == "" {
		return nil, core.NewValidationError("instruction", opts.Instruction, "agent %s: instruction must not be empty", name)
	}

	a := &Agent{
		name:        name,
		modelID:     modelID,
		description: opts.Description,
		instruction: opts.Instruction,
	}

	for _, c := range opts.Capabilities {
		if err := a.validateCapability(c); err != nil {
			return nil, err
		}
		a.capabilities = append(a.capabilities, c)
	}
	for _, child := range opts.Children {
		if child == nil {
			return nil, core.NewValidationError("children", nil, "agent %s: child must not be nil", name)
		}
		a.children = append(a.children, child)
	}

	return a, nil
}

// MustNew is like New but panics on error. Intended for static graphs
// declared at package level.
func MustNew(name, modelID string, optFns ...func(o *Options)) *Agent {
	a, err := New(name, modelID, optFns...)
	if err != nil {
		panic(err)
	}
	return a
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// ModelID returns the identifier of the backing language model.
func (a *Agent) ModelID() string { return a.modelID }

// Description returns the human readable description.
func (a *Agent) Description() string { return a.description }

// Instruction returns the system instruction.
func (a *Agent) Instruction() string { return a.instruction }

// Capabilities returns a copy of the agent's capabilities in declaration order.
func (a *Agent) Capabilities() []Capability {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Capability, len(a.capabilities))
	copy(out, a.capabilities)
	return out
}

// Children returns a copy of the agent's sub-agents.
func (a *Agent) Children() []*Agent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Agent, len(a.children))
	copy(out, a.children)
	return out
}

// Delegates returns the targets of the agent's delegation capabilities.
func (a *Agent) Delegates() []*Agent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*Agent
	for _, c := range a.capabilities {
		if d, ok := c.(AgentDelegation); ok {
			out = append(out, d.Target)
		}
	}
	return out
}

// HasCapability reports whether the agent declares a capability of kind k.
func (a *Agent) HasCapability(k CapabilityKind) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.capabilities {
		if c.Kind() == k {
			return true
		}
	}
	return false
}

// AddCapability appends a capability. It fails once the agent is sealed.
func (a *Agent) AddCapability(c Capability) error {
	if err := a.validateCapability(c); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return a.sealedError("capabilities")
	}
	a.capabilities = append(a.capabilities, c)
	return nil
}

// AddChild appends a sub-agent. It fails once the agent is sealed.
func (a *Agent) AddChild(child *Agent) error {
	if child == nil {
		return core.NewValidationError("children", nil, "agent %s: child must not be nil", a.name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return a.sealedError("children")
	}
	a.children = append(a.children, child)
	return nil
}

// Seal makes the agent read-only. Graph construction seals every agent of
// the closure; sealing is irreversible.
func (a *Agent) Seal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true
}

// Sealed reports whether the agent is read-only.
func (a *Agent) Sealed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sealed
}

// String returns the agent name.
func (a *Agent) String() string { return a.name }

func (a *Agent) validateCapability(c Capability) error {
	switch ct := c.(type) {
	case nil:
		return core.NewValidationError("capabilities", nil, "agent %s: capability must not be nil", a.name)
	case AgentDelegation:
		if ct.Target == nil {
			return core.NewValidationError("capabilities", nil, "agent %s: delegation target must not be nil", a.name)
		}
	case *AgentDelegation:
		return core.NewValidationError("capabilities", ct, "agent %s: use agent.Delegate to build a delegation", a.name)
	}
	return nil
}

func (a *Agent) sealedError(field string) error {
	return core.NewValidationError(field, a.name, "agent %s is read-only at deployment time", a.name)
}
