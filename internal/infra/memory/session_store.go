package memory

import (
	"context"
	"sync"

	"avtotest-service/internal/quiz"
)

// SessionStore is an in-memory implementation of app.SessionRepository keyed by user.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*quiz.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*quiz.Session),
	}
}

func (s *SessionStore) Swap(userID string, session *quiz.Session) *quiz.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.sessions[userID]
	s.sessions[userID] = session
	return previous
}

func (s *SessionStore) Get(userID string) (*quiz.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

// Finished is a no-op: liveness is read from the session itself.
func (s *SessionStore) Finished(string, *quiz.Session) {}

// LiveSession reports the user's session while it is still running.
func (s *SessionStore) LiveSession(_ context.Context, userID string) (string, bool, error) {
	session, ok := s.Get(userID)
	if !ok {
		return "", false, nil
	}
	if status := session.Snapshot().Status; status == quiz.StatusFinished || status == quiz.StatusIdle {
		return "", false, nil
	}
	return session.ID(), true, nil
}

func (s *SessionStore) Delete(userID string, session *quiz.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[userID]; ok && current == session {
		delete(s.sessions, userID)
	}
}
