// Package cache serves ticket and question reads from a local store and falls
// back to the source of truth on a miss.
package cache

import (
	"context"
	"fmt"

	"avtotest-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LocalStore is a best-effort mirror of the catalog. Tickets are keyed by id;
// questions are keyed by id with a secondary index on ticket id.
type LocalStore interface {
	Tickets(ctx context.Context) ([]domain.Ticket, error)
	// QuestionsByTicket returns the ticket's questions ordered by OrderNum.
	QuestionsByTicket(ctx context.Context, ticketID string) ([]domain.Question, error)
	AllQuestions(ctx context.Context) ([]domain.Question, error)
	PutTickets(ctx context.Context, tickets []domain.Ticket) error
	// ReplaceTickets clears the ticket mirror before inserting.
	ReplaceTickets(ctx context.Context, tickets []domain.Ticket) error
	PutQuestions(ctx context.Context, questions []domain.Question) error
}

// Source is the network-side catalog.
type Source interface {
	ListTickets(ctx context.Context) ([]domain.Ticket, error)
	ListQuestions(ctx context.Context, ticketID string) ([]domain.Question, error)
}

// Catalog is the read-through cache used by every catalog read.
// A non-empty local read is returned as-is with no revalidation.
type Catalog struct {
	local  LocalStore
	source Source
	logger *zap.Logger
	sf     singleflight.Group
}

func NewCatalog(local LocalStore, source Source, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{local: local, source: source, logger: logger}
}

// Tickets returns all tickets ordered by ticket number.
func (c *Catalog) Tickets(ctx context.Context) ([]domain.Ticket, error) {
	cached, err := c.local.Tickets(ctx)
	if err != nil {
		c.logger.Warn("local ticket read failed", zap.Error(err))
	} else if len(cached) > 0 {
		return cached, nil
	}

	res, err, _ := c.sf.Do("tickets", func() (interface{}, error) {
		// Another caller may have filled the mirror while we waited.
		if cached, err := c.local.Tickets(ctx); err == nil && len(cached) > 0 {
			return cached, nil
		}
		tickets, err := c.source.ListTickets(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch tickets: %w", err)
		}
		if len(tickets) > 0 {
			if err := c.local.ReplaceTickets(ctx, tickets); err != nil {
				c.logger.Warn("cache tickets", zap.Error(err))
			}
		}
		return tickets, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.Ticket), nil
}

// Questions returns the questions of one ticket ordered by OrderNum.
func (c *Catalog) Questions(ctx context.Context, ticketID string) ([]domain.Question, error) {
	cached, err := c.local.QuestionsByTicket(ctx, ticketID)
	if err != nil {
		c.logger.Warn("local question read failed", zap.String("ticket_id", ticketID), zap.Error(err))
	} else if len(cached) > 0 {
		return cached, nil
	}

	res, err, _ := c.sf.Do("questions:"+ticketID, func() (interface{}, error) {
		if cached, err := c.local.QuestionsByTicket(ctx, ticketID); err == nil && len(cached) > 0 {
			return cached, nil
		}
		questions, err := c.source.ListQuestions(ctx, ticketID)
		if err != nil {
			return nil, fmt.Errorf("fetch questions of ticket %s: %w", ticketID, err)
		}
		if len(questions) > 0 {
			if err := c.local.PutQuestions(ctx, questions); err != nil {
				c.logger.Warn("cache questions", zap.String("ticket_id", ticketID), zap.Error(err))
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.Question), nil
}

// AllQuestions returns the question pool used by random quizzes. A non-empty
// local pool is used as-is; otherwise every ticket is read through in turn.
func (c *Catalog) AllQuestions(ctx context.Context) ([]domain.Question, error) {
	cached, err := c.local.AllQuestions(ctx)
	if err != nil {
		c.logger.Warn("local question pool read failed", zap.Error(err))
	} else if len(cached) > 0 {
		return cached, nil
	}

	tickets, err := c.Tickets(ctx)
	if err != nil {
		return nil, err
	}
	var pool []domain.Question
	for _, t := range tickets {
		questions, err := c.Questions(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		pool = append(pool, questions...)
	}
	return pool, nil
}

// Question finds a single question, preferring the ticket's cached questions.
func (c *Catalog) Question(ctx context.Context, ticketID, questionID string) (domain.Question, error) {
	questions, err := c.Questions(ctx, ticketID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// Resync replaces the local ticket mirror with the source's current tickets.
func (c *Catalog) Resync(ctx context.Context) error {
	tickets, err := c.source.ListTickets(ctx)
	if err != nil {
		return fmt.Errorf("fetch tickets: %w", err)
	}
	return c.local.ReplaceTickets(ctx, tickets)
}
