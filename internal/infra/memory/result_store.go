package memory

import (
	"context"
	"sort"
	"sync"

	"avtotest-service/internal/domain"
)

// ResultStore keeps finished test results in memory.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]domain.TestResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]domain.TestResult)}
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.ID]; ok {
		return domain.ErrAlreadyExists
	}
	result.Answers = append([]domain.AnswerRecord(nil), result.Answers...)
	s.results[result.ID] = result
	return nil
}

// ListResults returns a user's results, newest first.
func (s *ResultStore) ListResults(_ context.Context, userID string) ([]domain.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TestResult
	for _, r := range s.results {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

func (s *ResultStore) DeleteResultsOf(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.results {
		if r.UserID == userID {
			delete(s.results, id)
		}
	}
	return nil
}
