package graph

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/core"
)

// AgentSpec is the declarative form of an agent, as found in configuration
// files. Capabilities are "search", "url_fetch" or "delegate:<name>".
type AgentSpec struct {
	Name         string   `koanf:"name" json:"name" yaml:"name"`
	Model        string   `koanf:"model" json:"model" yaml:"model"`
	Description  string   `koanf:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Instruction  string   `koanf:"instruction" json:"instruction" yaml:"instruction"`
	Capabilities []string `koanf:"capabilities" json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

const delegatePrefix = "delegate:"

// FromSpecs builds a graph from a leaves-first list of agent specs. A
// delegation may only reference an agent declared earlier in the list, so a
// declaration referring to itself or to a later agent is rejected. root
// names the root agent.
func FromSpecs(specs []AgentSpec, root string) (*Graph, error) {
	if len(specs) == 0 {
		return nil, core.NewValidationError("agents", nil, "at least one agent must be declared")
	}

	names := make(map[string]int, len(specs))
	for i, s := range specs {
		if _, dup := names[s.Name]; dup {
			return nil, core.NewValidationError("name", s.Name, "duplicate agent name %q in graph", s.Name)
		}
		names[s.Name] = i
	}

	built := make(map[string]*agent.Agent, len(specs))
	for i, s := range specs {
		caps := make([]agent.Capability, 0, len(s.Capabilities))
		for _, raw := range s.Capabilities {
			c, err := parseCapability(s.Name, raw, built, names, i)
			if err != nil {
				return nil, err
			}
			caps = append(caps, c)
		}

		a, err := agent.New(s.Name, s.Model, func(o *agent.Options) {
			o.Description = s.Description
			o.Instruction = s.Instruction
			o.Capabilities = caps
		})
		if err != nil {
			return nil, err
		}
		built[s.Name] = a
	}

	if root == "" {
		root = specs[len(specs)-1].Name
	}
	r, ok := built[root]
	if !ok {
		return nil, core.NewValidationError("root", root, "root agent %q is not declared", root)
	}

	g, err := New(r)
	if err != nil {
		return nil, err
	}

	for name := range built {
		if _, ok := g.Lookup(name); !ok {
			return nil, core.NewValidationError("agents", name, "agent %q is not reachable from root %q", name, root)
		}
	}

	return g, nil
}

func parseCapability(owner, raw string, built map[string]*agent.Agent, names map[string]int, index int) (agent.Capability, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == string(agent.KindSearch):
		return agent.Search(), nil
	case raw == string(agent.KindURLFetch):
		return agent.URLFetch(), nil
	case strings.HasPrefix(raw, delegatePrefix):
		target := strings.TrimSpace(strings.TrimPrefix(raw, delegatePrefix))
		if a, ok := built[target]; ok {
			return agent.Delegate(a), nil
		}
		pos, declared := names[target]
		switch {
		case !declared:
			return nil, core.NewValidationError("capabilities", raw, "agent %s delegates to undeclared agent %q", owner, target)
		case pos == index:
			return nil, core.NewValidationError("capabilities", raw, "delegation cycle detected: %s -> %s", owner, target)
		default:
			return nil, core.NewValidationError("capabilities", raw, "agent %s delegates to %q declared later; agents must be listed leaves first", owner, target)
		}
	default:
		return nil, core.NewValidationError("capabilities", raw, "agent %s: unknown capability %q", owner, raw)
	}
}

// Specs returns the declarative form of the graph, leaves first.
func (g *Graph) Specs() []AgentSpec {
	specs := make([]AgentSpec, 0, len(g.order))
	for _, a := range g.order {
		s := AgentSpec{
			Name:        a.Name(),
			Model:       a.ModelID(),
			Description: a.Description(),
			Instruction: a.Instruction(),
		}
		for _, c := range a.Capabilities() {
			switch ct := c.(type) {
			case agent.AgentDelegation:
				s.Capabilities = append(s.Capabilities, fmt.Sprintf("%s%s", delegatePrefix, ct.Target.Name()))
			default:
				s.Capabilities = append(s.Capabilities, string(c.Kind()))
			}
		}
		specs = append(specs, s)
	}
	return specs
}
