package app

import (
	"context"
	"fmt"
	"time"

	"avtotest-service/internal/domain"
	"avtotest-service/internal/quiz"
	"github.com/ecodeclub/ekit/slice"
	"go.uber.org/zap"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis-marked, etc).
// A user has at most one live session.
type SessionRepository interface {
	LiveSessions
	// Swap installs session for userID and returns the one it replaced, if any.
	Swap(userID string, session *quiz.Session) *quiz.Session
	Get(userID string) (*quiz.Session, bool)
	// Finished drops the live marker of session; it stays readable until replaced.
	Finished(userID string, session *quiz.Session)
	// Delete removes session only while it is still the user's current one.
	Delete(userID string, session *quiz.Session)
}

// LiveSessions reports which users are in the middle of an attempt.
type LiveSessions interface {
	LiveSession(ctx context.Context, userID string) (string, bool, error)
}

// QuestionCatalog serves quiz content through the local read-through cache.
type QuestionCatalog interface {
	Questions(ctx context.Context, ticketID string) ([]domain.Question, error)
	AllQuestions(ctx context.Context) ([]domain.Question, error)
}

// GroupReader loads categorized groups.
type GroupReader interface {
	GetGroup(ctx context.Context, groupID string) (domain.CategorizedGroup, error)
}

// QuizConfig tunes new sessions.
type QuizConfig struct {
	Duration    time.Duration
	AutoAdvance time.Duration
	RandomSizes []int
	Clock       quiz.Clock
	Metrics     *quiz.Metrics
}

// DefaultRandomSizes are the pool sizes offered for random tests.
var DefaultRandomSizes = []int{20, 50}

// QuizService contains the quiz use cases.
type QuizService struct {
	sessions SessionRepository
	catalog  QuestionCatalog
	groups   GroupReader
	results  quiz.ResultSink
	cfg      QuizConfig
	logger   *zap.Logger
}

func NewQuizService(sessions SessionRepository, catalog QuestionCatalog, groups GroupReader, results quiz.ResultSink, cfg QuizConfig, logger *zap.Logger) *QuizService {
	if len(cfg.RandomSizes) == 0 {
		cfg.RandomSizes = DefaultRandomSizes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		sessions: sessions,
		catalog:  catalog,
		groups:   groups,
		results:  results,
		cfg:      cfg,
		logger:   logger,
	}
}

// StartTicket begins a quiz over one ticket's questions in order.
func (s *QuizService) StartTicket(ctx context.Context, userID, ticketID string) (quiz.State, error) {
	questions, err := s.catalog.Questions(ctx, ticketID)
	if err != nil {
		return quiz.State{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	return s.start(userID, domain.ModeTicket, ticketID, questions)
}

// StartRandom begins a quiz over a uniform sample of the whole question pool.
func (s *QuizService) StartRandom(ctx context.Context, userID string, size int) (quiz.State, error) {
	if !slice.Contains(s.cfg.RandomSizes, size) {
		return quiz.State{}, fmt.Errorf("%w: random test size must be one of %v", domain.ErrValidation, s.cfg.RandomSizes)
	}
	pool, err := s.catalog.AllQuestions(ctx)
	if err != nil {
		return quiz.State{}, fmt.Errorf("load question pool: %w", err)
	}
	return s.start(userID, domain.ModeRandom, "", quiz.SamplePool(pool, size, nil))
}

// StartGroup begins a quiz over a ticket that belongs to a categorized group.
func (s *QuizService) StartGroup(ctx context.Context, userID, groupID, ticketID string) (quiz.State, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return quiz.State{}, err
	}
	if !slice.Contains(group.TicketIDs, ticketID) {
		return quiz.State{}, domain.ErrTicketNotFound
	}
	questions, err := s.catalog.Questions(ctx, ticketID)
	if err != nil {
		return quiz.State{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	return s.start(userID, domain.ModeGroup, ticketID, questions)
}

func (s *QuizService) start(userID string, mode domain.QuizMode, ticketID string, questions []domain.Question) (quiz.State, error) {
	if len(questions) == 0 {
		return quiz.State{}, domain.ErrEmptyPool
	}
	var session *quiz.Session
	session = quiz.New(userID, mode, ticketID, questions, quiz.Options{
		Duration:    s.cfg.Duration,
		AutoAdvance: s.cfg.AutoAdvance,
		Clock:       s.cfg.Clock,
		Sink:        s.results,
		Logger:      s.logger,
		Metrics:     s.cfg.Metrics,
		OnFinish: func(domain.TestResult) {
			s.sessions.Finished(userID, session)
		},
	})
	state, err := session.Start()
	if err != nil {
		return quiz.State{}, err
	}
	if previous := s.sessions.Swap(userID, session); previous != nil {
		previous.Close()
	}
	s.logger.Info("quiz started",
		zap.String("user_id", userID),
		zap.String("session_id", session.ID()),
		zap.String("mode", string(mode)),
		zap.Int("questions", len(questions)),
	)
	return state, nil
}

func (s *QuizService) session(userID string) (*quiz.Session, error) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Answer records the user's choice for the current question.
func (s *QuizService) Answer(_ context.Context, userID, option string) (quiz.State, error) {
	session, err := s.session(userID)
	if err != nil {
		return quiz.State{}, err
	}
	return session.Answer(option)
}

// Advance moves past the revealed question at index from (negative for current).
func (s *QuizService) Advance(ctx context.Context, userID string, from int) (quiz.State, error) {
	session, err := s.session(userID)
	if err != nil {
		return quiz.State{}, err
	}
	return session.Advance(ctx, from)
}

// Goto jumps to the question at index.
func (s *QuizService) Goto(_ context.Context, userID string, index int) (quiz.State, error) {
	session, err := s.session(userID)
	if err != nil {
		return quiz.State{}, err
	}
	return session.Goto(index)
}

// Finish ends the attempt early and persists its result.
func (s *QuizService) Finish(ctx context.Context, userID string) (quiz.State, error) {
	session, err := s.session(userID)
	if err != nil {
		return quiz.State{}, err
	}
	return session.Finish(ctx)
}

// State returns the user's current session snapshot.
func (s *QuizService) State(_ context.Context, userID string) (quiz.State, error) {
	session, err := s.session(userID)
	if err != nil {
		return quiz.State{}, err
	}
	return session.Snapshot(), nil
}

// Subscribe returns a channel that receives state updates for the user's session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, userID string) (<-chan quiz.State, func(), error) {
	session, err := s.session(userID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Abandon tears down the user's session without writing a result.
func (s *QuizService) Abandon(_ context.Context, userID string) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(userID, session)
}
