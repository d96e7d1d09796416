package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"avtotest-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CatalogStore mirrors the catalog in Redis.
//
//	HSET catalog:tickets   {ticketID}   {ticket json}
//	HSET catalog:questions {questionID} {question json}
//	SADD catalog:ticket:{ticketID}:questions {questionID}
type CatalogStore struct {
	client *redis.Client
	ttl    time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewCatalogStore returns a store whose keys expire after ttl (plus jitter); zero keeps them forever.
func NewCatalogStore(client *redis.Client, ttl time.Duration) *CatalogStore {
	return &CatalogStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const (
	ticketsKey   = "catalog:tickets"
	questionsKey = "catalog:questions"
)

func ticketIndexKey(ticketID string) string {
	return "catalog:ticket:" + ticketID + ":questions"
}

func (s *CatalogStore) Tickets(ctx context.Context) ([]domain.Ticket, error) {
	raw, err := s.client.HGetAll(ctx, ticketsKey).Result()
	if err != nil {
		return nil, err
	}
	tickets := make([]domain.Ticket, 0, len(raw))
	for id, data := range raw {
		var t domain.Ticket
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decode ticket %s: %w", id, err)
		}
		tickets = append(tickets, t)
	}
	domain.SortTickets(tickets)
	return tickets, nil
}

func (s *CatalogStore) QuestionsByTicket(ctx context.Context, ticketID string) ([]domain.Question, error) {
	ids, err := s.client.SMembers(ctx, ticketIndexKey(ticketID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, questionsKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	questions := make([]domain.Question, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// Index entry without a row; the row expired or was never written.
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", ids[i], err)
		}
		questions = append(questions, q)
	}
	domain.SortQuestions(questions)
	return questions, nil
}

func (s *CatalogStore) AllQuestions(ctx context.Context) ([]domain.Question, error) {
	raw, err := s.client.HGetAll(ctx, questionsKey).Result()
	if err != nil {
		return nil, err
	}
	questions := make([]domain.Question, 0, len(raw))
	for id, data := range raw {
		var q domain.Question
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", id, err)
		}
		questions = append(questions, q)
	}
	domain.SortQuestions(questions)
	return questions, nil
}

func (s *CatalogStore) PutTickets(ctx context.Context, tickets []domain.Ticket) error {
	return s.writeTickets(ctx, tickets, false)
}

func (s *CatalogStore) ReplaceTickets(ctx context.Context, tickets []domain.Ticket) error {
	return s.writeTickets(ctx, tickets, true)
}

func (s *CatalogStore) writeTickets(ctx context.Context, tickets []domain.Ticket, replace bool) error {
	fields := make([]interface{}, 0, len(tickets)*2)
	for _, t := range tickets {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		fields = append(fields, t.ID, string(data))
	}
	ttl := s.ttlWithJitter()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if replace {
			pipe.Del(ctx, ticketsKey)
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, ticketsKey, fields...)
			if ttl > 0 {
				pipe.Expire(ctx, ticketsKey, ttl)
			}
		}
		return nil
	})
	return err
}

func (s *CatalogStore) PutQuestions(ctx context.Context, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	// Questions that moved to another ticket must leave the old index.
	previous, err := s.client.HMGet(ctx, questionsKey, ids...).Result()
	if err != nil {
		return err
	}

	ttl := s.ttlWithJitter()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, q := range questions {
			if data, ok := previous[i].(string); ok {
				var prev domain.Question
				if json.Unmarshal([]byte(data), &prev) == nil && prev.TicketID != q.TicketID {
					pipe.SRem(ctx, ticketIndexKey(prev.TicketID), q.ID)
				}
			}
			data, err := json.Marshal(q)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, questionsKey, q.ID, string(data))
			pipe.SAdd(ctx, ticketIndexKey(q.TicketID), q.ID)
			if ttl > 0 {
				pipe.Expire(ctx, ticketIndexKey(q.TicketID), ttl)
			}
		}
		if ttl > 0 {
			pipe.Expire(ctx, questionsKey, ttl)
		}
		return nil
	})
	return err
}

func (s *CatalogStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
