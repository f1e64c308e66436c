package descriptor

import (
	"sync"

	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/graph"
)

// Catalog maps entrypoints to the graphs serving them. It is the explicit
// counterpart of importing the entrypoint module: a deployment target (the
// emulator server, a test) resolves a descriptor back to its graph through
// a Catalog value instead of a process-wide registry.
type Catalog struct {
	mu     sync.RWMutex
	graphs map[Entrypoint]*graph.Graph
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{graphs: map[Entrypoint]*graph.Graph{}}
}

// Add registers g under the entrypoint module:object. Registering a different
// graph under an existing entrypoint fails.
func (c *Catalog) Add(e Entrypoint, g *graph.Graph) error {
	if g == nil {
		return core.NewValidationError("graph", nil, "graph must not be nil")
	}
	if e.Module == "" || e.Object == "" {
		return core.NewValidationError("entrypoint", e.String(), "entrypoint module and object must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.graphs[e]; ok && existing != g {
		return core.NewValidationError("entrypoint", e.String(), "entrypoint %s is already registered", e)
	}
	c.graphs[e] = g
	return nil
}

// AddDescriptor registers g under the entrypoint of d.
func (c *Catalog) AddDescriptor(d *Descriptor, g *graph.Graph) error {
	return c.Add(d.Entrypoint, g)
}

// Graph resolves the descriptor's entrypoint to its graph. The descriptor
// must expose a stream method requiring the query parameters.
func (c *Catalog) Graph(d *Descriptor) (*graph.Graph, error) {
	if _, ok := d.StreamMethod(); !ok {
		return nil, core.NewValidationError("methods", QueryParameters,
			"descriptor %s exposes no stream method requiring %v", d.DisplayName, QueryParameters)
	}

	c.mu.RLock()
	g, ok := c.graphs[d.Entrypoint]
	c.mu.RUnlock()
	if !ok {
		return nil, core.NewValidationError("entrypoint", d.Entrypoint.String(), "unknown entrypoint %s", d.Entrypoint)
	}
	return g, nil
}

// Resolve recovers the root agent referenced by the descriptor's entrypoint.
func (c *Catalog) Resolve(d *Descriptor) (*agent.Agent, error) {
	g, err := c.Graph(d)
	if err != nil {
		return nil, err
	}
	return g.Root(), nil
}

// Len returns the number of registered entrypoints.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.graphs)
}
