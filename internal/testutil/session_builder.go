package testutil

import (
	"github.com/hupe1980/agentengine/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("u1", "s1").Meta("k", "v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	key    core.SessionKey
	meta   map[string]string
	events []core.Event
}

// NewSessionBuilder creates a new builder for the session of userID / sessionID.
func NewSessionBuilder(userID, sessionID string) *SessionBuilder {
	return &SessionBuilder{
		key:  core.SessionKey{UserID: userID, SessionID: sessionID},
		meta: map[string]string{},
	}
}

// Meta sets a metadata key/value pair on the resulting session (chainable).
func (b *SessionBuilder) Meta(key, val string) *SessionBuilder {
	b.meta[key] = val
	return b
}

// Events appends events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated metadata and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.key)
	for k, v := range b.meta {
		s.Metadata[k] = v
	}
	for _, ev := range b.events {
		s.AddEvent(ev)
	}
	return s
}

// Seed appends the session's events to store.
func Seed(store core.SessionStore, s *core.Session) error {
	for _, ev := range s.GetEvents() {
		if err := store.AppendEvent(s.Key(), ev); err != nil {
			return err
		}
	}
	return nil
}
