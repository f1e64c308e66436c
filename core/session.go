package core

import (
	"slices"
	"sync"
	"time"
)

// SessionKey addresses a conversation. Session ids are scoped by user, so
// two users may reuse the same session id without collision.
type SessionKey struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Session represents a conversational container tracking an ordered event
// history plus small string metadata. It is safe for concurrent access.
//
// Contract:
//   - GetEvents returns a copy of the event slice
//   - GetConversationHistory filters events to user/assistant/tool roles and
//     excludes partial streaming fragments
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	UserID   string            `json:"user_id"`
	ID       string            `json:"id"`
	Events   []Event           `json:"events"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Metadata map[string]string `json:"metadata,omitempty"`
	mu       sync.RWMutex
}

// NewSession creates a new empty session for the given key.
func NewSession(key SessionKey) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:   key.UserID,
		ID:       key.SessionID,
		Events:   []Event{},
		Created:  now,
		Updated:  now,
		Metadata: map[string]string{},
	}
}

// Key returns the (user, session) key of the session.
func (s *Session) Key() SessionKey { return SessionKey{UserID: s.UserID, SessionID: s.ID} }

// AddEvent appends an event to the history updating Updated timestamp.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now().UTC()
}

// GetEvents returns a copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.Events)
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || ev.Partial {
			continue
		}
		switch ev.Content.Role {
		case RoleUser, RoleAssistant, RoleTool:
			res = append(res, ev)
		}
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		UserID:   s.UserID,
		ID:       s.ID,
		Events:   slices.Clone(s.Events),
		Created:  s.Created,
		Updated:  s.Updated,
		Metadata: make(map[string]string, len(s.Metadata)),
	}
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SessionStore persists sessions and their event history.
type SessionStore interface {
	Create(key SessionKey) (*Session, error)
	Get(key SessionKey) (*Session, error)
	AppendEvent(key SessionKey, event Event) error
	Delete(key SessionKey) error
	List(userID string) ([]*Session, error)
}
