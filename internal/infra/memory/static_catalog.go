package memory

import (
	"context"
	"sort"
	"sync"

	"avtotest-service/internal/domain"
)

// StaticCatalog is a catalog source and writer backed by process memory
// (useful for tests/demos and when no database is configured).
type StaticCatalog struct {
	mu        sync.RWMutex
	tickets   map[string]domain.Ticket
	questions map[string][]domain.Question
	groups    map[string]domain.CategorizedGroup
}

func NewStaticCatalog(tickets []domain.Ticket, questions []domain.Question) *StaticCatalog {
	c := &StaticCatalog{
		tickets:   make(map[string]domain.Ticket),
		questions: make(map[string][]domain.Question),
		groups:    make(map[string]domain.CategorizedGroup),
	}
	for _, t := range tickets {
		c.tickets[t.ID] = t
	}
	for _, q := range questions {
		c.questions[q.TicketID] = append(c.questions[q.TicketID], cloneQuestion(q))
	}
	return c
}

func (c *StaticCatalog) ListTickets(_ context.Context) ([]domain.Ticket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Ticket, 0, len(c.tickets))
	for _, t := range c.tickets {
		out = append(out, t)
	}
	domain.SortTickets(out)
	return out, nil
}

func (c *StaticCatalog) ListQuestions(_ context.Context, ticketID string) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Question, 0, len(c.questions[ticketID]))
	for _, q := range c.questions[ticketID] {
		out = append(out, cloneQuestion(q))
	}
	domain.SortQuestions(out)
	return out, nil
}

func (c *StaticCatalog) GetQuestion(_ context.Context, questionID string) (domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, qs := range c.questions {
		for _, q := range qs {
			if q.ID == questionID {
				return cloneQuestion(q), nil
			}
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (c *StaticCatalog) GetTicket(_ context.Context, ticketID string) (domain.Ticket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return t, nil
}

// CreateTicket stores the ticket and its questions in one step.
func (c *StaticCatalog) CreateTicket(_ context.Context, ticket domain.Ticket, questions []domain.Question) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tickets {
		if t.ID == ticket.ID || t.Number == ticket.Number {
			return domain.ErrAlreadyExists
		}
	}
	c.tickets[ticket.ID] = ticket
	qs := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		qs = append(qs, cloneQuestion(q))
	}
	c.questions[ticket.ID] = qs
	return nil
}

func (c *StaticCatalog) DeleteTicket(_ context.Context, ticketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tickets[ticketID]; !ok {
		return domain.ErrTicketNotFound
	}
	delete(c.tickets, ticketID)
	delete(c.questions, ticketID)
	return nil
}

func (c *StaticCatalog) ListGroups(_ context.Context) ([]domain.CategorizedGroup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CategorizedGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *StaticCatalog) GetGroup(_ context.Context, groupID string) (domain.CategorizedGroup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[groupID]
	if !ok {
		return domain.CategorizedGroup{}, domain.ErrGroupNotFound
	}
	return g, nil
}

func (c *StaticCatalog) CreateGroup(_ context.Context, group domain.CategorizedGroup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.groups[group.ID]; ok {
		return domain.ErrAlreadyExists
	}
	c.groups[group.ID] = group
	return nil
}

func (c *StaticCatalog) DeleteGroup(_ context.Context, groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.groups[groupID]; !ok {
		return domain.ErrGroupNotFound
	}
	delete(c.groups, groupID)
	return nil
}
