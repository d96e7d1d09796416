package memory

import (
	"context"
	"testing"

	"avtotest-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestCatalogStoreUpsertIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewCatalogStore()

	require.NoError(t, store.PutQuestions(ctx, []domain.Question{
		{ID: "q-other", TicketID: "t2", OrderNum: 1, Options: []string{"a", "b"}},
	}))
	require.NoError(t, store.PutQuestions(ctx, []domain.Question{
		{ID: "q2", TicketID: "t1", OrderNum: 2, Options: []string{"a", "b"}},
		{ID: "q1", TicketID: "t1", OrderNum: 1, Options: []string{"a", "b"}},
	}))
	// Re-putting the same key replaces, never duplicates.
	require.NoError(t, store.PutQuestions(ctx, []domain.Question{
		{ID: "q2", TicketID: "t1", OrderNum: 2, Text: "edited", Options: []string{"a", "b"}},
	}))

	got, err := store.QuestionsByTicket(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "q1", got[0].ID)
	require.Equal(t, "edited", got[1].Text)

	other, err := store.QuestionsByTicket(ctx, "t2")
	require.NoError(t, err)
	require.Len(t, other, 1)

	all, err := store.AllQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestCatalogStoreReplaceTickets(t *testing.T) {
	ctx := context.Background()
	store := NewCatalogStore()

	require.NoError(t, store.PutTickets(ctx, []domain.Ticket{{ID: "t1", Number: 1}, {ID: "t2", Number: 2}}))
	require.NoError(t, store.ReplaceTickets(ctx, []domain.Ticket{{ID: "t3", Number: 3}}))

	tickets, err := store.Tickets(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Ticket{{ID: "t3", Number: 3}}, tickets)
}

func TestCatalogStoreEmptyIsMiss(t *testing.T) {
	store := NewCatalogStore()
	tickets, err := store.Tickets(context.Background())
	require.NoError(t, err)
	require.Empty(t, tickets)
	questions, err := store.QuestionsByTicket(context.Background(), "t1")
	require.NoError(t, err)
	require.Empty(t, questions)
}

func TestCatalogStoreOrderingIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store := NewCatalogStore()

	require.NoError(t, store.PutTickets(ctx, []domain.Ticket{{ID: "t2", Number: 2}, {ID: "t1", Number: 1}}))
	require.NoError(t, store.PutQuestions(ctx, []domain.Question{
		{ID: "qc", TicketID: "t1", OrderNum: 1},
		{ID: "qb", TicketID: "t1", OrderNum: 1},
		{ID: "qa", TicketID: "t1", OrderNum: 2},
	}))

	tickets, err := store.Tickets(ctx)
	require.NoError(t, err)
	require.Equal(t, "t1", tickets[0].ID)
	require.Equal(t, "t2", tickets[1].ID)

	for i := 0; i < 20; i++ {
		questions, err := store.QuestionsByTicket(ctx, "t1")
		require.NoError(t, err)
		ids := []string{questions[0].ID, questions[1].ID, questions[2].ID}
		require.Equal(t, []string{"qb", "qc", "qa"}, ids)
	}
}
