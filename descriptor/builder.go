package descriptor

import (
	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/graph"
)

// DefaultModule is the entrypoint module used when Package.Module is empty.
const DefaultModule = "agent"

// StreamQueryMethod is the name of the default streaming method.
const StreamQueryMethod = "stream_query"

// Package is the packaging metadata of a graph: where the source resides
// and what the installable dependency set is.
type Package struct {
	SourceLocation   string
	Module           string
	RequirementsFile string
	Packages         []string
}

// Options configures Build.
type Options struct {
	DisplayName string
	Description string
	Framework   Framework
	// EntrypointObject overrides the in-source object name of the root agent.
	EntrypointObject string
	Methods          []MethodSpec
	// SessionMethods additionally exposes the unary session management methods.
	SessionMethods bool
}

// Build produces a validated descriptor for the graph g. The entrypoint
// always references the root of g.
func Build(g *graph.Graph, pkg Package, optFns ...func(o *Options)) (*Descriptor, error) {
	if g == nil {
		return nil, core.NewValidationError("graph", nil, "graph must not be nil")
	}

	root := g.Root()
	opts := Options{
		DisplayName: root.Name(),
		Description: root.Description(),
		Framework:   FrameworkADK,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(opts.Methods) == 0 {
		opts.Methods = DefaultMethods()
	}
	if opts.SessionMethods {
		opts.Methods = append(append([]MethodSpec{}, opts.Methods...), SessionMethods()...)
	}

	module := pkg.Module
	if module == "" {
		module = DefaultModule
	}
	object := opts.EntrypointObject
	if object == "" {
		object = root.Name()
	}

	d := &Descriptor{
		DisplayName:    opts.DisplayName,
		Description:    opts.Description,
		SourceLocation: pkg.SourceLocation,
		Entrypoint:     Entrypoint{Module: module, Object: object},
		Requirements: Requirements{
			File:     pkg.RequirementsFile,
			Packages: append([]string(nil), pkg.Packages...),
		},
		Framework: opts.Framework,
		Methods:   cloneMethods(opts.Methods),
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DefaultMethods returns the single streaming method requiring user_id,
// session_id and message.
func DefaultMethods() []MethodSpec {
	return []MethodSpec{StreamQuery()}
}

// StreamQuery returns the stream_query method spec.
func StreamQuery() MethodSpec {
	return MethodSpec{
		Name:        StreamQueryMethod,
		Mode:        ModeStream,
		Description: "Streams the events produced by the agent graph for a message.",
		Parameters: map[string]Parameter{
			"user_id":    {Type: "string", Required: true, Description: "Partitions the session namespace."},
			"session_id": {Type: "string", Required: true, Description: "Scopes conversational state across queries."},
			"message":    {Type: "string", Required: true, Description: "The user message."},
		},
	}
}

// SessionMethods returns the unary session management methods served next
// to stream_query.
func SessionMethods() []MethodSpec {
	userID := Parameter{Type: "string", Required: true}
	sessionID := Parameter{Type: "string", Required: true}
	return []MethodSpec{
		{Name: "create_session", Mode: ModeUnary, Parameters: map[string]Parameter{
			"user_id":    userID,
			"session_id": {Type: "string"},
		}},
		{Name: "get_session", Mode: ModeUnary, Parameters: map[string]Parameter{"user_id": userID, "session_id": sessionID}},
		{Name: "list_sessions", Mode: ModeUnary, Parameters: map[string]Parameter{"user_id": userID}},
		{Name: "delete_session", Mode: ModeUnary, Parameters: map[string]Parameter{"user_id": userID, "session_id": sessionID}},
	}
}

func cloneMethods(in []MethodSpec) []MethodSpec {
	out := make([]MethodSpec, 0, len(in))
	for _, m := range in {
		params := make(map[string]Parameter, len(m.Parameters))
		for k, v := range m.Parameters {
			params[k] = v
		}
		m.Parameters = params
		out = append(out, m)
	}
	return out
}
