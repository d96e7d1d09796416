package memory

import (
	"testing"

	"avtotest-service/internal/domain"
	"avtotest-service/internal/quiz"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	first := quiz.New("u1", domain.ModeTicket, "t1", nil, quiz.Options{})
	second := quiz.New("u1", domain.ModeTicket, "t1", nil, quiz.Options{})

	if prev := store.Swap("u1", first); prev != nil {
		t.Fatalf("expected no previous session")
	}
	if prev := store.Swap("u1", second); prev != first {
		t.Fatalf("expected first session to be replaced")
	}

	// A stale session must not evict the current one.
	store.Delete("u1", first)
	if got, ok := store.Get("u1"); !ok || got != second {
		t.Fatalf("expected second session present")
	}

	store.Delete("u1", second)
	if _, ok := store.Get("u1"); ok {
		t.Fatalf("expected session removed")
	}
}
