package postgres

import (
	"context"
	"fmt"

	"avtotest-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogStore is the source of truth for tickets, questions and categorized groups.
type CatalogStore struct {
	pool *pgxpool.Pool
}

func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const questionColumns = `id, ticket_id, question_text, COALESCE(image_url, ''), options, correct_answer, COALESCE(explanation, ''), order_num`

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.TicketID, &q.Text, &q.ImageURL, &q.Options, &q.CorrectAnswer, &q.Explanation, &q.OrderNum)
	return q, err
}

func (s *CatalogStore) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, ticket_number, title FROM tickets ORDER BY ticket_number, id`)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.Number, &t.Title); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *CatalogStore) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	var t domain.Ticket
	err := s.pool.QueryRow(ctx, `SELECT id, ticket_number, title FROM tickets WHERE id=$1`, ticketID).
		Scan(&t.ID, &t.Number, &t.Title)
	return t, mapErr(err, domain.ErrTicketNotFound)
}

func (s *CatalogStore) ListQuestions(ctx context.Context, ticketID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE ticket_id=$1 ORDER BY order_num, id`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *CatalogStore) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	q, err := scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, questionID))
	return q, mapErr(err, domain.ErrQuestionNotFound)
}

// CreateTicket inserts the ticket and its questions in one transaction.
func (s *CatalogStore) CreateTicket(ctx context.Context, ticket domain.Ticket, questions []domain.Question) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tickets (id, ticket_number, title) VALUES ($1, $2, $3)`,
			ticket.ID, ticket.Number, ticket.Title,
		); err != nil {
			return err
		}
		rows := make([][]interface{}, 0, len(questions))
		for _, q := range questions {
			rows = append(rows, []interface{}{
				q.ID, ticket.ID, q.Text, nullable(q.ImageURL), q.Options, q.CorrectAnswer, nullable(q.Explanation), q.OrderNum,
			})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"questions"},
			[]string{"id", "ticket_id", "question_text", "image_url", "options", "correct_answer", "explanation", "order_num"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	return mapErr(err, domain.ErrTicketNotFound)
}

// DeleteTicket removes the ticket; its questions cascade.
func (s *CatalogStore) DeleteTicket(ctx context.Context, ticketID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, ticketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (s *CatalogStore) ListGroups(ctx context.Context) ([]domain.CategorizedGroup, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, ticket_ids, created_at FROM categorized_tests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.CategorizedGroup
	for rows.Next() {
		var g domain.CategorizedGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.TicketIDs, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *CatalogStore) GetGroup(ctx context.Context, groupID string) (domain.CategorizedGroup, error) {
	var g domain.CategorizedGroup
	err := s.pool.QueryRow(ctx, `SELECT id, name, ticket_ids, created_at FROM categorized_tests WHERE id=$1`, groupID).
		Scan(&g.ID, &g.Name, &g.TicketIDs, &g.CreatedAt)
	return g, mapErr(err, domain.ErrGroupNotFound)
}

func (s *CatalogStore) CreateGroup(ctx context.Context, group domain.CategorizedGroup) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categorized_tests (id, name, ticket_ids, created_at) VALUES ($1, $2, $3, $4)`,
		group.ID, group.Name, group.TicketIDs, group.CreatedAt,
	)
	return mapErr(err, domain.ErrGroupNotFound)
}

func (s *CatalogStore) DeleteGroup(ctx context.Context, groupID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categorized_tests WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
