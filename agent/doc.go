// Package agent defines the unit of composition of an agent graph: a named,
// model-backed Agent with an instruction and a closed set of capabilities.
//
// An Agent is assembled in-process with New, AddCapability and AddChild and
// becomes read-only once a graph containing it is built for deployment
// (see package graph). Capabilities are a closed variant:
//
//   - SearchCapability  (web search)
//   - URLFetchCapability (retrieve content of given URLs)
//   - AgentDelegation   (another Agent wrapped as a callable tool)
//
// A delegation is a non-owning reference: the same target may be referenced
// by several delegators, and graph construction rejects cycles.
//
// Agents carry no execution state. Running an agent is the job of package
// runner (in-process) or of the remote execution service.
package agent
