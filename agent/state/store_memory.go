package state

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Used by the local chat console and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Commit(_ context.Context, sess *Session, msgs []Message) error {
	if err := checkCommit(sess, msgs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess.Clone()
	s.messages[sess.ID] = append(s.messages[sess.ID], msgs...)
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.messages[sessionID], limit), nil
}

func (s *MemoryStore) DeactivateIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.Idle(cutoff) {
			sess.Deactivate()
			n++
		}
	}
	return n, nil
}
