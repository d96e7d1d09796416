package redis

import (
	"context"
	"testing"
	"time"

	"avtotest-service/internal/cache"
	"avtotest-service/internal/domain"
	"avtotest-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCatalogStoreReadThroughHitsRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{Source: sampleCatalog()}
	catalog := cache.NewCatalog(NewCatalogStore(newClient(mr), time.Hour), source, nil)

	questions, err := catalog.Questions(context.Background(), "t1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != "q1" {
		t.Fatalf("expected ordered questions, got %+v", questions)
	}
	if source.questionCalls != 1 {
		t.Fatalf("expected source called once, got %d", source.questionCalls)
	}

	// Second call should hit redis, source not incremented.
	if _, err := catalog.Questions(context.Background(), "t1"); err != nil {
		t.Fatalf("questions 2: %v", err)
	}
	if source.questionCalls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.questionCalls)
	}
	if !mr.Exists("catalog:ticket:t1:questions") {
		t.Fatalf("expected ticket index key")
	}
}

func TestCatalogStoreReplaceTickets(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewCatalogStore(newClient(mr), 0)
	if err := store.PutTickets(ctx, []domain.Ticket{{ID: "t1", Number: 1}, {ID: "t2", Number: 2}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.ReplaceTickets(ctx, []domain.Ticket{{ID: "t9", Number: 9}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	tickets, err := store.Tickets(ctx)
	if err != nil {
		t.Fatalf("tickets: %v", err)
	}
	if len(tickets) != 1 || tickets[0].ID != "t9" {
		t.Fatalf("expected only t9 after replace, got %+v", tickets)
	}
	if mr.TTL(ticketsKey) != 0 {
		t.Fatalf("expected no ttl when ttl is zero")
	}
}

func TestCatalogStoreMovesQuestionBetweenTickets(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewCatalogStore(newClient(mr), time.Minute)
	q := domain.Question{ID: "q1", TicketID: "t1", OrderNum: 1, Options: []string{"a", "b"}, CorrectAnswer: "a"}
	if err := store.PutQuestions(ctx, []domain.Question{q}); err != nil {
		t.Fatalf("put: %v", err)
	}
	q.TicketID = "t2"
	if err := store.PutQuestions(ctx, []domain.Question{q}); err != nil {
		t.Fatalf("put moved: %v", err)
	}

	old, _ := store.QuestionsByTicket(ctx, "t1")
	moved, _ := store.QuestionsByTicket(ctx, "t2")
	if len(old) != 0 || len(moved) != 1 {
		t.Fatalf("expected question only under t2, got old=%d new=%d", len(old), len(moved))
	}
	all, _ := store.AllQuestions(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one question in pool, got %d", len(all))
	}
}

type countingSource struct {
	cache.Source
	questionCalls int
}

func (s *countingSource) ListQuestions(ctx context.Context, ticketID string) ([]domain.Question, error) {
	s.questionCalls++
	return s.Source.ListQuestions(ctx, ticketID)
}

func sampleCatalog() *memory.StaticCatalog {
	return memory.NewStaticCatalog(
		[]domain.Ticket{{ID: "t1", Number: 1, Title: "Bilet 1"}},
		[]domain.Question{
			{ID: "q2", TicketID: "t1", Text: "Overtaking?", Options: []string{"Allowed", "Forbidden"}, CorrectAnswer: "Forbidden", OrderNum: 2},
			{ID: "q1", TicketID: "t1", Text: "Stop sign?", Options: []string{"Stop", "Yield"}, CorrectAnswer: "Stop", OrderNum: 1},
		},
	)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func TestCatalogStoreOrdersLikeMemoryStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	tickets := []domain.Ticket{{ID: "t3", Number: 3}, {ID: "t1", Number: 1}, {ID: "t2", Number: 2}}
	questions := []domain.Question{
		{ID: "qc", TicketID: "t1", OrderNum: 1},
		{ID: "qb", TicketID: "t1", OrderNum: 1},
		{ID: "qa", TicketID: "t1", OrderNum: 2},
		{ID: "qz", TicketID: "t2", OrderNum: 1},
	}

	stores := map[string]cache.LocalStore{
		"redis":  NewCatalogStore(newClient(mr), time.Hour),
		"memory": memory.NewCatalogStore(),
	}
	got := map[string][]string{}
	for name, store := range stores {
		if err := store.PutTickets(ctx, tickets); err != nil {
			t.Fatalf("%s put tickets: %v", name, err)
		}
		if err := store.PutQuestions(ctx, questions); err != nil {
			t.Fatalf("%s put questions: %v", name, err)
		}
		listed, err := store.Tickets(ctx)
		if err != nil {
			t.Fatalf("%s tickets: %v", name, err)
		}
		for _, tk := range listed {
			got[name] = append(got[name], tk.ID)
		}
		byTicket, err := store.QuestionsByTicket(ctx, "t1")
		if err != nil {
			t.Fatalf("%s questions: %v", name, err)
		}
		all, err := store.AllQuestions(ctx)
		if err != nil {
			t.Fatalf("%s all questions: %v", name, err)
		}
		for _, q := range append(byTicket, all...) {
			got[name] = append(got[name], q.ID)
		}
	}

	want := []string{"t1", "t2", "t3", "qb", "qc", "qa", "qb", "qc", "qa", "qz"}
	for name, ids := range got {
		if len(ids) != len(want) {
			t.Fatalf("%s: expected %v, got %v", name, want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("%s: expected %v, got %v", name, want, ids)
			}
		}
	}
}
