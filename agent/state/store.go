package state

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNilSession      = errors.New("session is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

// Store is the persistence contract used by the orchestrator.
// Commit writes the session, its move detail and the new transcript messages atomically.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Commit(ctx context.Context, sess *Session, msgs []Message) error
	History(ctx context.Context, sessionID string, limit int) ([]Message, error)
	DeactivateIdle(ctx context.Context, cutoff time.Time) (int, error)
}

func checkCommit(sess *Session, msgs []Message) error {
	if sess == nil {
		return ErrNilSession
	}
	if err := sess.Validate(); err != nil {
		return err
	}
	for _, m := range msgs {
		if m.SessionID != sess.ID {
			return errors.New("message belongs to another session")
		}
	}
	return nil
}

func tail(msgs []Message, limit int) []Message {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...)
}
