// Package runner executes an agent graph in-process with the same
// (user_id, session_id, message) contract as the remote query API.
//
// # Responsibilities
//   - Resolve a model per agent and drive the turn loop (model -> function
//     calls -> tool execution -> next turn) until a final response
//   - Materialize capabilities as tools: search, URL fetch and delegation
//   - Run delegations synchronously with a fresh history and surface their
//     failures as *core.DelegationError
//   - Persist the root conversation in a core.SessionStore keyed by user and
//     session
//
// Run returns a pull-based iter.Seq2; stopping the iteration cancels the
// invocation.
package runner
