package redis

import (
	"context"
	"testing"
	"time"

	"avtotest-service/internal/domain"
	"avtotest-service/internal/quiz"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)
	session := quiz.New("u1", domain.ModeTicket, "t1", nil, quiz.Options{NewID: func() string { return "s-1" }})

	_ = store.Swap("u1", session)
	if !mr.Exists("quiz:session:u1") {
		t.Fatalf("expected redis key to be set")
	}
	id, ok, err := store.LiveSession(context.Background(), "u1")
	if err != nil || !ok || id != "s-1" {
		t.Fatalf("expected live session s-1, got %q %v %v", id, ok, err)
	}
	if mr.TTL("quiz:session:u1") != time.Minute {
		t.Fatalf("expected ttl on liveness key")
	}

	store.Delete("u1", session)
	if mr.Exists("quiz:session:u1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok, _ := store.LiveSession(context.Background(), "u1"); ok {
		t.Fatalf("expected no live session")
	}
}

func TestSessionStoreFinishedClearsMarker(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)
	questions := []domain.Question{{ID: "q1", Options: []string{"a", "b"}, CorrectAnswer: "a"}}

	stale := quiz.New("u1", domain.ModeTicket, "t1", questions, quiz.Options{AutoAdvance: -1})
	var session *quiz.Session
	session = quiz.New("u1", domain.ModeTicket, "t1", questions, quiz.Options{
		AutoAdvance: -1,
		OnFinish:    func(domain.TestResult) { store.Finished("u1", session) },
	})
	_ = store.Swap("u1", session)
	if _, err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	store.Finished("u1", stale)
	if !mr.Exists("quiz:session:u1") {
		t.Fatalf("a replaced session must not clear the current marker")
	}

	if _, err := session.Finish(context.Background()); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if mr.Exists("quiz:session:u1") {
		t.Fatalf("expected marker cleared once the attempt finished")
	}
	if got, ok := store.Get("u1"); !ok || got != session {
		t.Fatalf("finished session must stay readable")
	}
}
