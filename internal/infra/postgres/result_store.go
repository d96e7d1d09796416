package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"avtotest-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore persists finished quiz attempts. Each result is inserted once.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, r domain.TestResult) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO test_results
			(id, user_id, ticket_id, mode, score, correct_answers, total_questions, answers, time_spent_seconds, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)`,
		r.ID, r.UserID, nullable(r.TicketID), string(r.Mode), r.Score, r.CorrectAnswers, r.TotalQuestions,
		string(answers), r.TimeSpentSeconds, r.CompletedAt,
	)
	return mapErr(err, domain.ErrNotFound)
}

// ListResults returns a user's results, newest first.
func (s *ResultStore) ListResults(ctx context.Context, userID string) ([]domain.TestResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, COALESCE(ticket_id, ''), mode, score, correct_answers, total_questions,
		       answers::text, time_spent_seconds, completed_at
		FROM test_results WHERE user_id=$1
		ORDER BY completed_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []domain.TestResult
	for rows.Next() {
		var (
			r       domain.TestResult
			answers string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.TicketID, &r.Mode, &r.Score, &r.CorrectAnswers, &r.TotalQuestions,
			&answers, &r.TimeSpentSeconds, &r.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *ResultStore) DeleteResultsOf(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM test_results WHERE user_id=$1`, userID)
	return err
}
