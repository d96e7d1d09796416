package redis

import (
	"context"
	"sync"
	"time"

	"avtotest-service/internal/quiz"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions own timers and subscriber channels, so they stay in a local map.
//   - Redis holds a liveness marker per user (the live session id) so other
//     instances and operators can see who is mid-attempt.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*quiz.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*quiz.Session),
	}
}

func (s *SessionStore) Swap(userID string, session *quiz.Session) *quiz.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.sessions[userID]
	s.sessions[userID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(userID), session.ID(), s.ttl).Err()
	return previous
}

func (s *SessionStore) Get(userID string) (*quiz.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

func (s *SessionStore) Delete(userID string, session *quiz.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[userID]
	if !ok || current != session {
		return
	}
	delete(s.sessions, userID)
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
}

// Finished clears the liveness marker while session is still the user's current one.
func (s *SessionStore) Finished(userID string, session *quiz.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] != session {
		return
	}
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
}

// LiveSession returns the session id marked live for userID on any instance.
func (s *SessionStore) LiveSession(ctx context.Context, userID string) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *SessionStore) key(userID string) string {
	return "quiz:session:" + userID
}
