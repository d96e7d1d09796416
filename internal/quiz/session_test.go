package quiz_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"avtotest-service/internal/domain"
	"avtotest-service/internal/quiz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) quiz.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due callbacks outside the clock lock.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// fireStale runs a callback even if it was stopped, as a timer that already
// started firing when Stop was called would.
func (c *manualClock) fireStale() {
	c.mu.Lock()
	timers := append([]*manualTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		if t.stopped && !t.fired {
			t.fn()
		}
	}
}

type recordingSink struct {
	mu      sync.Mutex
	results []domain.TestResult
	err     error
}

func (s *recordingSink) SaveResult(_ context.Context, r domain.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func threeQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", TicketID: "t1", Text: "Stop sign?", Options: []string{"Stop", "Go"}, CorrectAnswer: "Stop", OrderNum: 1},
		{ID: "q2", TicketID: "t1", Text: "Red light?", Options: []string{"Go", "Wait"}, CorrectAnswer: "Wait", OrderNum: 2},
		{ID: "q3", TicketID: "t1", Text: "Speed in town?", Options: []string{"60", "90"}, CorrectAnswer: "60", OrderNum: 3},
	}
}

func newSession(t *testing.T, clock *manualClock, sink *recordingSink, autoAdvance time.Duration) *quiz.Session {
	t.Helper()
	s := quiz.New("u1", domain.ModeTicket, "t1", threeQuestions(), quiz.Options{
		Duration:    30 * time.Minute,
		AutoAdvance: autoAdvance,
		Clock:       clock,
		Sink:        sink,
	})
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func answerAndNext(t *testing.T, s *quiz.Session, option string) {
	t.Helper()
	state, err := s.Answer(option)
	if err != nil {
		t.Fatalf("answer %q: %v", option, err)
	}
	if _, err := s.Advance(context.Background(), state.CurrentIndex); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

func TestScoreRoundsHalfUp(t *testing.T) {
	cases := []struct {
		correct, total, want int
	}{
		{2, 3, 67},
		{1, 3, 33},
		{1, 8, 13},
		{0, 0, 0},
		{0, 5, 0},
		{20, 20, 100},
	}
	for _, tc := range cases {
		if got := quiz.Score(tc.correct, tc.total); got != tc.want {
			t.Fatalf("Score(%d,%d) = %d, want %d", tc.correct, tc.total, got, tc.want)
		}
	}
}

func TestCorrectWrongCorrectScores67(t *testing.T) {
	clock := newManualClock()
	sink := &recordingSink{}
	s := newSession(t, clock, sink, -1)

	answerAndNext(t, s, "Stop")
	answerAndNext(t, s, "Go")
	answerAndNext(t, s, "60")

	state := s.Snapshot()
	if state.Status != quiz.StatusFinished || state.Result == nil {
		t.Fatalf("expected finished with result, got %+v", state)
	}
	if state.Result.Score != 67 || state.Result.CorrectAnswers != 2 || state.Result.TotalQuestions != 3 {
		t.Fatalf("unexpected result %+v", state.Result)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one persisted result, got %d", sink.count())
	}
}

func TestAllCorrectScores100AndNoneScores0(t *testing.T) {
	clock := newManualClock()
	sink := &recordingSink{}

	perfect := newSession(t, clock, sink, -1)
	answerAndNext(t, perfect, "Stop")
	answerAndNext(t, perfect, "Wait")
	answerAndNext(t, perfect, "60")
	if got := perfect.Snapshot().Result.Score; got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}

	empty := newSession(t, clock, sink, -1)
	state, err := empty.Finish(context.Background())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if state.Result.Score != 0 || len(state.Result.Answers) != 3 {
		t.Fatalf("expected zero result covering every question, got %+v", state.Result)
	}
	for _, rec := range state.Result.Answers {
		if rec.Correct || rec.Selected != "" {
			t.Fatalf("expected unanswered record, got %+v", rec)
		}
	}
}

func TestFirstAnswerWins(t *testing.T) {
	s := newSession(t, newManualClock(), &recordingSink{}, -1)

	state, err := s.Answer("Go")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !state.Revealed || state.Feedback == nil || state.Feedback.Correct {
		t.Fatalf("expected revealed wrong answer, got %+v", state)
	}
	if state.Feedback.CorrectAnswer != "Stop" {
		t.Fatalf("expected correct answer shown, got %q", state.Feedback.CorrectAnswer)
	}

	state, err = s.Answer("Stop")
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if rec := state.Answers["q1"]; rec.Selected != "Go" || rec.Correct {
		t.Fatalf("second answer overwrote the first: %+v", rec)
	}
}

func TestAnswerRejectsUnknownOption(t *testing.T) {
	s := newSession(t, newManualClock(), &recordingSink{}, -1)
	if _, err := s.Answer("Maybe"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option error, got %v", err)
	}
	if s.Snapshot().Revealed {
		t.Fatalf("unknown option must not reveal")
	}
}

func TestQuestionHiddenUntilRevealed(t *testing.T) {
	s := newSession(t, newManualClock(), &recordingSink{}, -1)
	state := s.Snapshot()
	if state.Question == nil || state.Question.ID != "q1" {
		t.Fatalf("expected first question, got %+v", state.Question)
	}
	if state.Feedback != nil {
		t.Fatalf("feedback must be absent before answering")
	}
	if state.TimeLeft != int((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected time left %d", state.TimeLeft)
	}
}

func TestAdvanceRequiresReveal(t *testing.T) {
	s := newSession(t, newManualClock(), &recordingSink{}, -1)
	if _, err := s.Advance(context.Background(), 0); !errors.Is(err, domain.ErrNotRevealed) {
		t.Fatalf("expected not revealed, got %v", err)
	}
}

func TestAutoAdvanceMovesToNextQuestion(t *testing.T) {
	clock := newManualClock()
	s := newSession(t, clock, &recordingSink{}, 1500*time.Millisecond)

	if _, err := s.Answer("Stop"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	clock.Advance(time.Second)
	if s.Snapshot().CurrentIndex != 0 {
		t.Fatalf("advanced too early")
	}
	clock.Advance(500 * time.Millisecond)
	state := s.Snapshot()
	if state.CurrentIndex != 1 || state.Status != quiz.StatusInProgress {
		t.Fatalf("expected auto-advance to q2, got %+v", state)
	}
}

func TestManualAdvanceCancelsPendingAutoAdvance(t *testing.T) {
	clock := newManualClock()
	s := newSession(t, clock, &recordingSink{}, 1500*time.Millisecond)

	if _, err := s.Answer("Stop"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := s.Advance(context.Background(), 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := s.Answer("Wait"); err != nil {
		t.Fatalf("answer q2: %v", err)
	}

	// A stopped timer that fires anyway must not advance a second time.
	clock.fireStale()
	if got := s.Snapshot().CurrentIndex; got != 1 {
		t.Fatalf("stale auto-advance moved the session to %d", got)
	}

	clock.Advance(1500 * time.Millisecond)
	if got := s.Snapshot().CurrentIndex; got != 2 {
		t.Fatalf("expected the fresh auto-advance to reach q3, got %d", got)
	}
}

func TestManualAdvanceAfterAutoAdvanceIsNoop(t *testing.T) {
	clock := newManualClock()
	s := newSession(t, clock, &recordingSink{}, 1500*time.Millisecond)

	if _, err := s.Answer("Stop"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	clock.Advance(1500 * time.Millisecond)

	// The user pressed "next" on q1 while the timer was firing.
	state, err := s.Advance(context.Background(), 0)
	if err != nil {
		t.Fatalf("stale advance: %v", err)
	}
	if state.CurrentIndex != 1 {
		t.Fatalf("expected to stay on q2, got %d", state.CurrentIndex)
	}
}

func TestAutoAdvanceOnLastQuestionFinishesOnce(t *testing.T) {
	clock := newManualClock()
	sink := &recordingSink{}
	s := newSession(t, clock, sink, time.Second)

	for _, opt := range []string{"Stop", "Wait", "90"} {
		if _, err := s.Answer(opt); err != nil {
			t.Fatalf("answer %q: %v", opt, err)
		}
		clock.Advance(time.Second)
	}
	if _, err := s.Advance(context.Background(), 2); err != nil {
		t.Fatalf("late manual advance: %v", err)
	}
	if _, err := s.Finish(context.Background()); err != nil {
		t.Fatalf("finish again: %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("expected exactly one result, got %d", sink.count())
	}
	if s.Snapshot().Result.Score != 67 {
		t.Fatalf("expected 67, got %d", s.Snapshot().Result.Score)
	}
}

func TestDeadlineFinishesWithRecordedAnswers(t *testing.T) {
	clock := newManualClock()
	sink := &recordingSink{}
	s := newSession(t, clock, sink, -1)

	answerAndNext(t, s, "Stop")
	clock.Advance(30 * time.Minute)

	state := s.Snapshot()
	if state.Status != quiz.StatusFinished {
		t.Fatalf("expected deadline to finish the session, got %s", state.Status)
	}
	if state.Result.Score != 33 || state.Result.TimeSpentSeconds != 1800 {
		t.Fatalf("unexpected result %+v", state.Result)
	}
	if _, err := s.Answer("Wait"); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected finished error, got %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one result, got %d", sink.count())
	}

	want := []domain.AnswerRecord{
		{QuestionID: "q1", Selected: "Stop", Correct: true},
		{QuestionID: "q2"},
		{QuestionID: "q3"},
	}
	saved := sink.results[0].Answers
	if len(saved) != len(want) {
		t.Fatalf("expected a record per question, got %+v", saved)
	}
	for i := range want {
		if saved[i] != want[i] {
			t.Fatalf("record %d: expected %+v, got %+v", i, want[i], saved[i])
		}
	}
}

func TestGotoShowsAnsweredQuestionsRevealed(t *testing.T) {
	s := newSession(t, newManualClock(), &recordingSink{}, -1)
	answerAndNext(t, s, "Stop")

	state, err := s.Goto(0)
	if err != nil {
		t.Fatalf("goto: %v", err)
	}
	if !state.Revealed || state.Feedback == nil {
		t.Fatalf("expected answered question revealed, got %+v", state)
	}
	state, err = s.Goto(2)
	if err != nil {
		t.Fatalf("goto 2: %v", err)
	}
	if state.Revealed {
		t.Fatalf("unanswered question must not be revealed")
	}
	if _, err := s.Goto(3); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestCloseStopsTimersAndDiscards(t *testing.T) {
	clock := newManualClock()
	sink := &recordingSink{}
	s := newSession(t, clock, sink, time.Second)

	ch, cancel := s.Subscribe()
	defer cancel()
	<-ch

	if _, err := s.Answer("Stop"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	s.Close()
	clock.Advance(time.Hour)

	if sink.count() != 0 {
		t.Fatalf("closed session must not persist a result")
	}
	if _, err := s.Answer("Wait"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found after close, got %v", err)
	}
	for range ch {
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	s := newSession(t, newManualClock(), &recordingSink{}, -1)
	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	if initial.CurrentIndex != 0 {
		t.Fatalf("unexpected initial state %+v", initial)
	}
	if _, err := s.Answer("Stop"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	update := <-ch
	if !update.Revealed || !update.Answers["q1"].Correct {
		t.Fatalf("expected revealed update, got %+v", update)
	}
}

func TestSinkFailureIsReturned(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	s := newSession(t, newManualClock(), sink, -1)

	state, err := s.Finish(context.Background())
	if err == nil {
		t.Fatalf("expected sink error")
	}
	if state.Status != quiz.StatusFinished {
		t.Fatalf("session must still be finished, got %s", state.Status)
	}
}

func TestStartEmptyPool(t *testing.T) {
	s := quiz.New("u1", domain.ModeRandom, "", nil, quiz.Options{Clock: newManualClock()})
	if _, err := s.Start(); !errors.Is(err, domain.ErrEmptyPool) {
		t.Fatalf("expected empty pool, got %v", err)
	}
}

func TestSamplePoolWithoutReplacement(t *testing.T) {
	pool := make([]domain.Question, 0, 50)
	for i := 0; i < 50; i++ {
		pool = append(pool, domain.Question{ID: string(rune('A' + i))})
	}
	sample := quiz.SamplePool(pool, 20, nil)
	if len(sample) != 20 {
		t.Fatalf("expected 20, got %d", len(sample))
	}
	seen := make(map[string]bool)
	for _, q := range sample {
		if seen[q.ID] {
			t.Fatalf("duplicate %s in sample", q.ID)
		}
		seen[q.ID] = true
	}
	if got := quiz.SamplePool(pool[:3], 20, nil); len(got) != 3 {
		t.Fatalf("small pool should be kept whole, got %d", len(got))
	}
}

func TestMetricsCountFinishedAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := quiz.NewMetrics(reg)
	s := quiz.New("u1", domain.ModeTicket, "t1", threeQuestions(), quiz.Options{
		Clock:   newManualClock(),
		Metrics: metrics,
	})
	if _, err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Finish(context.Background()); err != nil {
		t.Fatalf("finish: %v", err)
	}
	count, err := testutil.GatherAndCount(reg, "avtotest_quiz_finished_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one series, got %d", count)
	}
}
