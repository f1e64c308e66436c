package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentengine/core"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// InMemoryStore is a volatile SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests, the local runner and the emulator server. Each returned
// session is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[core.SessionKey]*core.Session
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[core.SessionKey]*core.Session)}
}

// Create creates (or resets) the session for key.
func (s *InMemoryStore) Create(key core.SessionKey) (*core.Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := core.NewSession(key)
	s.sessions[key] = sess

	return sess.Clone(), nil
}

// Get returns a clone of the session for key or ErrNotFound.
func (s *InMemoryStore) Get(key core.SessionKey) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: user %q session %q", ErrNotFound, key.UserID, key.SessionID)
	}

	return sess.Clone(), nil
}

// AppendEvent adds an event to the session for key, creating it lazily.
func (s *InMemoryStore) AppendEvent(key core.SessionKey, ev core.Event) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		sess = core.NewSession(key)
		s.sessions[key] = sess
	}
	sess.AddEvent(ev)

	return nil
}

// Delete removes the session for key. Deleting a missing session returns ErrNotFound.
func (s *InMemoryStore) Delete(key core.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; !ok {
		return fmt.Errorf("%w: user %q session %q", ErrNotFound, key.UserID, key.SessionID)
	}
	delete(s.sessions, key)

	return nil
}

// List returns clones of all sessions of userID ordered by creation time.
func (s *InMemoryStore) List(userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Session
	for key, sess := range s.sessions {
		if key.UserID == userID {
			out = append(out, sess.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})

	return out, nil
}

func validateKey(key core.SessionKey) error {
	if key.UserID == "" {
		return core.NewValidationError("user_id", key.UserID, "must not be empty")
	}
	if key.SessionID == "" {
		return core.NewValidationError("session_id", key.SessionID, "must not be empty")
	}
	return nil
}
