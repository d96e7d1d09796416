package memory

import (
	"context"
	"sync"

	"avtotest-service/internal/domain"
)

// CatalogStore is an in-process local mirror of tickets and questions.
// Concurrent writes of the same key are last-write-wins.
type CatalogStore struct {
	mu        sync.RWMutex
	tickets   map[string]domain.Ticket
	order     []string
	questions map[string]domain.Question
	byTicket  map[string]map[string]struct{}
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		tickets:   make(map[string]domain.Ticket),
		questions: make(map[string]domain.Question),
		byTicket:  make(map[string]map[string]struct{}),
	}
}

func (s *CatalogStore) Tickets(_ context.Context) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ticket, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tickets[id])
	}
	domain.SortTickets(out)
	return out, nil
}

func (s *CatalogStore) QuestionsByTicket(_ context.Context, ticketID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTicket[ticketID]
	out := make([]domain.Question, 0, len(ids))
	for id := range ids {
		out = append(out, cloneQuestion(s.questions[id]))
	}
	domain.SortQuestions(out)
	return out, nil
}

func (s *CatalogStore) AllQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, cloneQuestion(q))
	}
	domain.SortQuestions(out)
	return out, nil
}

func (s *CatalogStore) PutTickets(_ context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putTicketsLocked(tickets)
	return nil
}

func (s *CatalogStore) ReplaceTickets(_ context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = make(map[string]domain.Ticket, len(tickets))
	s.order = s.order[:0]
	s.putTicketsLocked(tickets)
	return nil
}

func (s *CatalogStore) putTicketsLocked(tickets []domain.Ticket) {
	for _, t := range tickets {
		if _, ok := s.tickets[t.ID]; !ok {
			s.order = append(s.order, t.ID)
		}
		s.tickets[t.ID] = t
	}
}

func (s *CatalogStore) PutQuestions(_ context.Context, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		if prev, ok := s.questions[q.ID]; ok && prev.TicketID != q.TicketID {
			delete(s.byTicket[prev.TicketID], q.ID)
		}
		s.questions[q.ID] = cloneQuestion(q)
		idx, ok := s.byTicket[q.TicketID]
		if !ok {
			idx = make(map[string]struct{})
			s.byTicket[q.TicketID] = idx
		}
		idx[q.ID] = struct{}{}
	}
	return nil
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}
