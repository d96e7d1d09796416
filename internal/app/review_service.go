package app

import (
	"context"
	"errors"
	"fmt"

	"avtotest-service/internal/domain"
	"go.uber.org/zap"
)

// ResultReader lists a user's finished attempts, newest first.
type ResultReader interface {
	ListResults(ctx context.Context, userID string) ([]domain.TestResult, error)
}

// CachedQuestions is the cache-first lookup used by review pages.
type CachedQuestions interface {
	Question(ctx context.Context, ticketID, questionID string) (domain.Question, error)
	Tickets(ctx context.Context) ([]domain.Ticket, error)
}

// QuestionSource resolves a single question from the source of truth.
type QuestionSource interface {
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// ReviewService serves a student's history and mistakes.
type ReviewService struct {
	results   ResultReader
	cached    CachedQuestions
	questions QuestionSource
	logger    *zap.Logger
}

func NewReviewService(results ResultReader, cached CachedQuestions, questions QuestionSource, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{results: results, cached: cached, questions: questions, logger: logger}
}

func (s *ReviewService) Results(ctx context.Context, userID string) ([]domain.TestResult, error) {
	return s.results.ListResults(ctx, userID)
}

// Errors collects every wrongly answered question across the user's results.
// Each question appears once, with the answer from the most recent attempt.
func (s *ReviewService) Errors(ctx context.Context, userID string) ([]domain.ErrorQuestion, error) {
	results, err := s.results.ListResults(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	titles := s.ticketTitles(ctx)

	seen := make(map[string]struct{})
	out := make([]domain.ErrorQuestion, 0)
	for _, result := range results {
		for _, answer := range result.Answers {
			if answer.Correct {
				continue
			}
			if _, ok := seen[answer.QuestionID]; ok {
				continue
			}
			q, err := s.lookup(ctx, result.TicketID, answer.QuestionID)
			if errors.Is(err, domain.ErrQuestionNotFound) || errors.Is(err, domain.ErrNotFound) {
				// Deleted since the attempt.
				continue
			}
			if err != nil {
				return nil, err
			}
			seen[answer.QuestionID] = struct{}{}
			out = append(out, domain.ErrorQuestion{
				Question:    q,
				Selected:    answer.Selected,
				TicketTitle: titles[q.TicketID],
			})
		}
	}
	return out, nil
}

func (s *ReviewService) lookup(ctx context.Context, ticketID, questionID string) (domain.Question, error) {
	if ticketID != "" {
		q, err := s.cached.Question(ctx, ticketID, questionID)
		if err == nil {
			return q, nil
		}
		s.logger.Debug("cached question lookup missed", zap.String("question_id", questionID), zap.Error(err))
	}
	return s.questions.GetQuestion(ctx, questionID)
}

func (s *ReviewService) ticketTitles(ctx context.Context) map[string]string {
	titles := make(map[string]string)
	tickets, err := s.cached.Tickets(ctx)
	if err != nil {
		s.logger.Warn("ticket titles unavailable", zap.Error(err))
		return titles
	}
	for _, t := range tickets {
		titles[t.ID] = t.Title
	}
	return titles
}
