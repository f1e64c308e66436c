// Package core provides the foundational domain types shared by every layer
// of agentengine:
//
//   - Content and Parts (role based message segments, closed variant set)
//   - Events (ordered records streamed from an agent graph invocation)
//   - Sessions keyed by (user id, session id) and the SessionStore contract
//   - ToolContext (scoped execution surface handed to tools)
//   - Typed errors separating local validation from remote failures
//
// The package keeps implementation concerns (model adapters, transport,
// persistence) out of scope and exposes small types other packages build on.
package core
