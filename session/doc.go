// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in the core package so
// the runner and the server depend on the contract only.
//
// Sessions are addressed by core.SessionKey (user id plus session id); two
// users may reuse the same session id without collision.
package session
