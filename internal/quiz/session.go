// Package quiz runs a single quiz attempt: one question at a time, answer
// reveal, auto or manual advance, a wall-clock deadline and a final score.
package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"avtotest-service/internal/domain"
	"github.com/ecodeclub/ekit/slice"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the coarse state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusRevealed   Status = "revealed"
	StatusFinished   Status = "finished"
)

const (
	// DefaultDuration is the time budget of an attempt.
	DefaultDuration = 30 * time.Minute
	// DefaultAutoAdvance is the delay between reveal and the next question.
	DefaultAutoAdvance = 1500 * time.Millisecond
)

// ResultSink persists finished attempts.
type ResultSink interface {
	SaveResult(ctx context.Context, result domain.TestResult) error
}

// Options configures a session. Zero values fall back to defaults;
// a negative AutoAdvance disables automatic advance.
type Options struct {
	Duration    time.Duration
	AutoAdvance time.Duration
	Clock       Clock
	Sink        ResultSink
	Logger      *zap.Logger
	Metrics     *Metrics
	NewID       func() string
	// OnFinish runs once after the result has been handed to Sink.
	OnFinish func(domain.TestResult)
}

// QuestionView is a question as shown before the answer is revealed.
type QuestionView struct {
	ID       string   `json:"id"`
	TicketID string   `json:"ticketId"`
	Text     string   `json:"questionText"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Options  []string `json:"options"`
}

// Feedback is shown once the current question is revealed.
type Feedback struct {
	Selected      string `json:"selected"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
}

// State is the observable snapshot of a session.
type State struct {
	SessionID    string                         `json:"sessionId"`
	Mode         domain.QuizMode                `json:"mode"`
	TicketID     string                         `json:"ticketId,omitempty"`
	Status       Status                         `json:"status"`
	CurrentIndex int                            `json:"currentIndex"`
	Total        int                            `json:"total"`
	Revealed     bool                           `json:"revealed"`
	Answers      map[string]domain.AnswerRecord `json:"answers"`
	TimeLeft     int                            `json:"timeLeft"`
	Question     *QuestionView                  `json:"question,omitempty"`
	Feedback     *Feedback                      `json:"feedback,omitempty"`
	Result       *domain.TestResult             `json:"result,omitempty"`
}

// Session is one user's attempt. All methods are safe for concurrent use.
//
// At most one transition away from a revealed question may win: the
// auto-advance timer and manual actions share a generation counter, and a
// timer whose generation is no longer current does nothing.
type Session struct {
	id        string
	userID    string
	ticketID  string
	mode      domain.QuizMode
	questions []domain.Question
	opts      Options

	mu            sync.Mutex
	status        Status
	index         int
	answers       map[string]domain.AnswerRecord
	startedAt     time.Time
	deadline      time.Time
	generation    uint64
	advanceTimer  Timer
	deadlineTimer Timer
	result        *domain.TestResult
	closed        bool
	subscribers   map[chan State]struct{}
}

// New builds an idle session over an already assembled pool.
func New(userID string, mode domain.QuizMode, ticketID string, questions []domain.Question, opts Options) *Session {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.AutoAdvance == 0 {
		opts.AutoAdvance = DefaultAutoAdvance
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Session{
		id:          opts.NewID(),
		userID:      userID,
		ticketID:    ticketID,
		mode:        mode,
		questions:   append([]domain.Question(nil), questions...),
		opts:        opts,
		status:      StatusIdle,
		subscribers: make(map[chan State]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userID }

// Start moves an idle session to the first question and arms the deadline.
// Starting a running session is a no-op.
func (s *Session) Start() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return State{}, domain.ErrSessionNotFound
	case s.status == StatusFinished:
		return s.snapshotLocked(), domain.ErrSessionFinished
	case s.status != StatusIdle:
		return s.snapshotLocked(), nil
	case len(s.questions) == 0:
		return State{}, domain.ErrEmptyPool
	}

	s.answers = make(map[string]domain.AnswerRecord, len(s.questions))
	s.index = 0
	s.status = StatusInProgress
	s.startedAt = s.opts.Clock.Now()
	s.deadline = s.startedAt.Add(s.opts.Duration)
	s.deadlineTimer = s.opts.Clock.AfterFunc(s.opts.Duration, s.expire)
	return s.broadcastLocked(), nil
}

// Answer records option for the current question. Only the first answer for
// a question counts; later ones return the current state unchanged.
func (s *Session) Answer(option string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return s.snapshotLocked(), err
	}

	q := s.questions[s.index]
	if _, answered := s.answers[q.ID]; answered {
		return s.snapshotLocked(), nil
	}
	if !slice.Contains(q.Options, option) {
		return s.snapshotLocked(), domain.ErrOptionNotFound
	}

	s.answers[q.ID] = domain.AnswerRecord{
		QuestionID: q.ID,
		Selected:   option,
		Correct:    q.IsCorrect(option),
	}
	s.status = StatusRevealed

	gen := s.cancelPendingLocked()
	if s.opts.AutoAdvance > 0 {
		s.advanceTimer = s.opts.Clock.AfterFunc(s.opts.AutoAdvance, func() { s.autoAdvance(gen) })
	}
	return s.broadcastLocked(), nil
}

// Advance moves past the revealed question at index from, finishing the
// session after the last one. from is the index the caller was looking at;
// if the session already moved on, the call is a no-op. A negative from
// means the current question.
func (s *Session) Advance(ctx context.Context, from int) (State, error) {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		state := s.snapshotLocked()
		s.mu.Unlock()
		if err == domain.ErrSessionFinished && from >= 0 {
			// The auto-advance already finished the attempt.
			return state, nil
		}
		return state, err
	}
	if from >= 0 && from != s.index {
		state := s.snapshotLocked()
		s.mu.Unlock()
		return state, nil
	}
	if s.status != StatusRevealed {
		state := s.snapshotLocked()
		s.mu.Unlock()
		return state, domain.ErrNotRevealed
	}
	s.cancelPendingLocked()
	state, result := s.stepLocked()
	s.mu.Unlock()

	if result != nil {
		return state, s.persist(ctx, *result)
	}
	return state, nil
}

// Goto jumps to any question. Answered questions are shown revealed.
func (s *Session) Goto(index int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return s.snapshotLocked(), err
	}
	if index < 0 || index >= len(s.questions) {
		return s.snapshotLocked(), domain.ErrIndexOutOfRange
	}
	s.cancelPendingLocked()
	s.moveLocked(index)
	return s.broadcastLocked(), nil
}

// Finish ends the attempt with the answers recorded so far and persists
// the result. Finishing a finished session returns its state again.
func (s *Session) Finish(ctx context.Context) (State, error) {
	s.mu.Lock()
	switch {
	case s.closed || s.status == StatusIdle:
		s.mu.Unlock()
		return State{}, domain.ErrSessionNotFound
	case s.status == StatusFinished:
		state := s.snapshotLocked()
		s.mu.Unlock()
		return state, nil
	}
	result := s.finishLocked("manual")
	state := s.snapshotLocked()
	s.mu.Unlock()

	return state, s.persist(ctx, result)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close tears the session down: pending timers are stopped and subscriber
// channels are closed. An unfinished attempt is discarded without a result.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancelPendingLocked()
	stopTimer(s.deadlineTimer)
	s.deadlineTimer = nil
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Subscribe returns a channel of state updates, primed with the current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	s.mu.Lock()
	ch <- s.snapshotLocked()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) autoAdvance(gen uint64) {
	s.mu.Lock()
	if s.closed || s.generation != gen || s.status != StatusRevealed {
		s.mu.Unlock()
		return
	}
	s.advanceTimer = nil
	s.generation++
	_, result := s.stepLocked()
	s.mu.Unlock()

	if result != nil {
		_ = s.persist(context.Background(), *result)
	}
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.closed || s.status == StatusFinished || s.status == StatusIdle {
		s.mu.Unlock()
		return
	}
	s.deadlineTimer = nil
	result := s.finishLocked("deadline")
	s.mu.Unlock()

	_ = s.persist(context.Background(), result)
}

func (s *Session) mutableLocked() error {
	switch {
	case s.closed || s.status == StatusIdle:
		return domain.ErrSessionNotFound
	case s.status == StatusFinished:
		return domain.ErrSessionFinished
	}
	return nil
}

// cancelPendingLocked invalidates any scheduled auto-advance and returns the new generation.
func (s *Session) cancelPendingLocked() uint64 {
	s.generation++
	stopTimer(s.advanceTimer)
	s.advanceTimer = nil
	return s.generation
}

// stepLocked leaves the current question. It returns a result when the step finished the session.
func (s *Session) stepLocked() (State, *domain.TestResult) {
	if s.index >= len(s.questions)-1 {
		result := s.finishLocked("completed")
		return s.snapshotLocked(), &result
	}
	s.moveLocked(s.index + 1)
	return s.broadcastLocked(), nil
}

func (s *Session) moveLocked(index int) {
	s.index = index
	if _, answered := s.answers[s.questions[index].ID]; answered {
		s.status = StatusRevealed
	} else {
		s.status = StatusInProgress
	}
}

// finishLocked claims the terminal transition; callers persist the returned result after unlocking.
func (s *Session) finishLocked(reason string) domain.TestResult {
	s.cancelPendingLocked()
	stopTimer(s.deadlineTimer)
	s.deadlineTimer = nil

	now := s.opts.Clock.Now()
	records := make([]domain.AnswerRecord, 0, len(s.questions))
	correct := 0
	for _, q := range s.questions {
		rec, ok := s.answers[q.ID]
		if !ok {
			// unanswered counts as wrong
			rec = domain.AnswerRecord{QuestionID: q.ID}
		}
		if rec.Correct {
			correct++
		}
		records = append(records, rec)
	}

	spent := now.Sub(s.startedAt)
	if spent > s.opts.Duration {
		spent = s.opts.Duration
	}
	result := domain.TestResult{
		ID:               s.opts.NewID(),
		UserID:           s.userID,
		TicketID:         s.ticketID,
		Mode:             s.mode,
		Score:            Score(correct, len(s.questions)),
		CorrectAnswers:   correct,
		TotalQuestions:   len(s.questions),
		Answers:          records,
		TimeSpentSeconds: int(spent / time.Second),
		CompletedAt:      now,
	}
	s.status = StatusFinished
	s.result = &result
	s.opts.Metrics.observe(s.mode, reason, result.Score)
	s.broadcastLocked()
	return result
}

func (s *Session) persist(ctx context.Context, result domain.TestResult) error {
	if s.opts.OnFinish != nil {
		defer s.opts.OnFinish(result)
	}
	if s.opts.Sink == nil {
		return nil
	}
	if err := s.opts.Sink.SaveResult(ctx, result); err != nil {
		s.opts.Logger.Error("save quiz result failed",
			zap.String("session_id", s.id),
			zap.String("user_id", s.userID),
			zap.Error(err),
		)
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *Session) broadcastLocked() State {
	state := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			// Drop the oldest queued state so a slow reader never blocks a transition.
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
	return state
}

func (s *Session) snapshotLocked() State {
	state := State{
		SessionID:    s.id,
		Mode:         s.mode,
		TicketID:     s.ticketID,
		Status:       s.status,
		CurrentIndex: s.index,
		Total:        len(s.questions),
		Revealed:     s.status == StatusRevealed,
		Answers:      make(map[string]domain.AnswerRecord, len(s.answers)),
	}
	for id, rec := range s.answers {
		state.Answers[id] = rec
	}
	if s.result != nil {
		res := *s.result
		state.Result = &res
		return state
	}
	if s.status == StatusIdle {
		return state
	}

	if left := s.deadline.Sub(s.opts.Clock.Now()); left > 0 {
		state.TimeLeft = int(left / time.Second)
	}
	q := s.questions[s.index]
	state.Question = &QuestionView{
		ID:       q.ID,
		TicketID: q.TicketID,
		Text:     q.Text,
		ImageURL: q.ImageURL,
		Options:  append([]string(nil), q.Options...),
	}
	if rec, ok := s.answers[q.ID]; ok {
		state.Feedback = &Feedback{
			Selected:      rec.Selected,
			Correct:       rec.Correct,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		}
	}
	return state
}

func stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}
