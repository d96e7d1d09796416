package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"avtotest-service/internal/app"
	"avtotest-service/internal/cache"
	"avtotest-service/internal/domain"
	"avtotest-service/internal/infra/memory"
	"avtotest-service/internal/quiz"
)

func TestTicketQuizScoringAndPersistence(t *testing.T) {
	ctx := context.Background()
	service, results := newTestService(t)

	state, err := service.StartTicket(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if state.Total != 3 || state.Question.ID != "q1" {
		t.Fatalf("expected ordered ticket quiz, got %+v", state)
	}

	for i, opt := range []string{"Stop", "Go", "60"} {
		if _, err := service.Answer(ctx, "u1", opt); err != nil {
			t.Fatalf("answer %d failed: %v", i, err)
		}
		if _, err := service.Advance(ctx, "u1", i); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
	}

	state, err = service.State(ctx, "u1")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if state.Result == nil || state.Result.Score != 67 {
		t.Fatalf("expected score 67, got %+v", state.Result)
	}

	saved, _ := results.ListResults(ctx, "u1")
	if len(saved) != 1 || saved[0].TicketID != "t1" || saved[0].Mode != domain.ModeTicket {
		t.Fatalf("expected one ticket result, got %+v", saved)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.StartTicket(ctx, "u1", "t1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	ch, cancel, err := service.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, err := service.Answer(ctx, "u1", "Stop"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	update := <-ch
	if !update.Revealed || !update.Answers["q1"].Correct {
		t.Fatalf("expected revealed correct answer, got %+v", update)
	}
}

func TestStartingAgainReplacesSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.StartTicket(ctx, "u1", "t1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	ch, cancel, _ := service.Subscribe(ctx, "u1")
	defer cancel()
	<-ch

	if _, err := service.StartTicket(ctx, "u1", "t2"); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if _, open := <-ch; open {
		t.Fatalf("expected old session subscription to be closed")
	}
	state, _ := service.State(ctx, "u1")
	if state.TicketID != "t2" {
		t.Fatalf("expected new session on t2, got %s", state.TicketID)
	}
}

func TestRandomQuizSamplesPool(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.StartRandom(ctx, "u1", 7); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for size 7, got %v", err)
	}
	state, err := service.StartRandom(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("start random failed: %v", err)
	}
	if state.Mode != domain.ModeRandom || state.Total != 4 {
		t.Fatalf("expected whole 4-question pool, got %+v", state)
	}
}

func TestGroupQuizRequiresMembership(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.StartGroup(ctx, "u1", "g1", "t2"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ticket not in group, got %v", err)
	}
	state, err := service.StartGroup(ctx, "u1", "g1", "t1")
	if err != nil {
		t.Fatalf("start group failed: %v", err)
	}
	if state.Mode != domain.ModeGroup {
		t.Fatalf("expected group mode, got %s", state.Mode)
	}
	if _, err := service.StartGroup(ctx, "u1", "missing", "t1"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Fatalf("expected group not found, got %v", err)
	}
}

func TestActionsRequireSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.Answer(ctx, "nobody", "Stop"); err != domain.ErrSessionNotFound {
		t.Fatalf("expected session error, got %v", err)
	}
	if _, err := service.StartTicket(ctx, "u1", "empty"); !errors.Is(err, domain.ErrEmptyPool) {
		t.Fatalf("expected empty pool, got %v", err)
	}

	if _, err := service.StartTicket(ctx, "u1", "t1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	service.Abandon(ctx, "u1")
	if _, err := service.State(ctx, "u1"); err != domain.ErrSessionNotFound {
		t.Fatalf("expected abandoned session gone, got %v", err)
	}
}

func sampleCatalog() *memory.StaticCatalog {
	c := memory.NewStaticCatalog(
		[]domain.Ticket{
			{ID: "t1", Number: 1, Title: "1-bilet"},
			{ID: "t2", Number: 2, Title: "2-bilet"},
			{ID: "empty", Number: 3, Title: "3-bilet"},
		},
		[]domain.Question{
			{ID: "q1", TicketID: "t1", Text: "Stop sign?", Options: []string{"Stop", "Go"}, CorrectAnswer: "Stop", OrderNum: 1},
			{ID: "q2", TicketID: "t1", Text: "Red light?", Options: []string{"Go", "Wait"}, CorrectAnswer: "Wait", OrderNum: 2},
			{ID: "q3", TicketID: "t1", Text: "Speed in town?", Options: []string{"60", "90"}, CorrectAnswer: "60", OrderNum: 3},
			{ID: "q4", TicketID: "t2", Text: "Seat belt?", Options: []string{"Always", "Never"}, CorrectAnswer: "Always", OrderNum: 1, Explanation: "Required by law."},
		},
	)
	_ = c.CreateGroup(context.Background(), domain.CategorizedGroup{ID: "g1", Name: "Signs", TicketIDs: []string{"t1"}})
	return c
}

func newTestService(t *testing.T) (*app.QuizService, *memory.ResultStore) {
	t.Helper()
	source := sampleCatalog()
	results := memory.NewResultStore()
	service := app.NewQuizService(
		memory.NewSessionStore(),
		cache.NewCatalog(memory.NewCatalogStore(), source, nil),
		source,
		results,
		app.QuizConfig{Duration: 30 * time.Minute, AutoAdvance: -1, Clock: quiz.RealClock()},
		nil,
	)
	return service, results
}
