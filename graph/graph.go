// Package graph builds and validates the closure of an agent graph: the root
// agent plus every agent reachable through delegations and children.
//
// A Graph is an explicit value. There is no process-wide registry; callers
// pass the graph to the descriptor builder, the runner or the emulator.
package graph

import (
	"strings"

	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/core"
)

// Graph is an immutable, validated agent graph.
//
// Invariants:
//   - agent names are unique within the graph
//   - the delegation relation is acyclic
//   - every agent of the closure is sealed
type Graph struct {
	root   *agent.Agent
	order  []*agent.Agent // leaves first
	byName map[string]*agent.Agent
}

// New computes the closure of root and validates it. Every agent is sealed
// before its edges are read, so the validated closure is the one the graph
// serves. Sealing is irreversible: agents reached before a validation error
// stay sealed.
func New(root *agent.Agent) (*Graph, error) {
	if root == nil {
		return nil, core.NewValidationError("root", nil, "root agent must not be nil")
	}

	g := &Graph{
		root:   root,
		byName: map[string]*agent.Agent{},
	}

	if err := g.collect(root); err != nil {
		return nil, err
	}

	order, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// collect seals and walks the closure and enforces name uniqueness.
func (g *Graph) collect(root *agent.Agent) error {
	visited := map[*agent.Agent]bool{}
	stack := []*agent.Agent{root}

	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[a] {
			continue
		}
		visited[a] = true
		a.Seal()

		if other, ok := g.byName[a.Name()]; ok && other != a {
			return core.NewValidationError("name", a.Name(), "duplicate agent name %q in graph", a.Name())
		}
		g.byName[a.Name()] = a

		stack = append(stack, edges(a)...)
	}

	return nil
}

const (
	white = iota
	grey
	black
)

// sort returns the agents in post order (every edge target precedes its
// source) and reports the first cycle it finds.
func (g *Graph) sort() ([]*agent.Agent, error) {
	color := make(map[*agent.Agent]int, len(g.byName))
	order := make([]*agent.Agent, 0, len(g.byName))
	var path []*agent.Agent

	var visit func(a *agent.Agent) error
	visit = func(a *agent.Agent) error {
		color[a] = grey
		path = append(path, a)

		for _, next := range edges(a) {
			switch color[next] {
			case grey:
				return cycleError(path, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		color[a] = black
		order = append(order, a)
		return nil
	}

	if err := visit(g.root); err != nil {
		return nil, err
	}

	return order, nil
}

// edges returns delegation targets followed by children.
func edges(a *agent.Agent) []*agent.Agent {
	return append(a.Delegates(), a.Children()...)
}

func cycleError(path []*agent.Agent, back *agent.Agent) error {
	start := 0
	for i, a := range path {
		if a == back {
			start = i
			break
		}
	}

	names := make([]string, 0, len(path)-start+1)
	for _, a := range path[start:] {
		names = append(names, a.Name())
	}
	names = append(names, back.Name())

	return core.NewValidationError("capabilities", strings.Join(names, " -> "), "delegation cycle detected: %s", strings.Join(names, " -> "))
}

// Root returns the root agent.
func (g *Graph) Root() *agent.Agent { return g.root }

// Lookup returns the agent with the given name.
func (g *Graph) Lookup(name string) (*agent.Agent, bool) {
	a, ok := g.byName[name]
	return a, ok
}

// Agents returns every agent of the closure, leaves first: each delegation
// target precedes the agents delegating to it and the root comes last.
func (g *Graph) Agents() []*agent.Agent {
	out := make([]*agent.Agent, len(g.order))
	copy(out, g.order)
	return out
}

// Delegations returns the names of the agents the named agent delegates to.
func (g *Graph) Delegations(name string) []string {
	a, ok := g.byName[name]
	if !ok {
		return nil
	}

	targets := a.Delegates()
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name())
	}
	return names
}

// Len returns the number of agents in the graph.
func (g *Graph) Len() int { return len(g.order) }

// Depth returns the length of the longest delegation chain starting at root
// (a root without delegations has depth 0).
func (g *Graph) Depth() int {
	depth := make(map[*agent.Agent]int, len(g.order))
	for _, a := range g.order {
		d := 0
		for _, next := range edges(a) {
			if depth[next]+1 > d {
				d = depth[next] + 1
			}
		}
		depth[a] = d
	}
	return depth[g.root]
}
