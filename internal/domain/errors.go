package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation wraps malformed input such as a bad question import.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated means the bearer session is missing or invalid.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden means the caller's role does not allow the action.
	ErrForbidden = errors.New("forbidden")

	// ErrSlotConflict is returned when a guarded slot write lost a race.
	ErrSlotConflict = errors.New("device slot conflict")

	// ErrTicketNotFound indicates the ticket has no catalog entry.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrQuestionNotFound indicates a question id is unknown.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrGroupNotFound indicates a categorized group id is unknown.
	ErrGroupNotFound = errors.New("group not found")
	// ErrEmptyPool is returned when a quiz would start without questions.
	ErrEmptyPool = errors.New("no questions available")

	// ErrSessionNotFound is returned when the user has no live quiz session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionFinished is returned for mutations after the session finished.
	ErrSessionFinished = errors.New("quiz session finished")
	// ErrNotRevealed is returned when advancing past an unanswered question.
	ErrNotRevealed = errors.New("current question not answered")
	// ErrOptionNotFound indicates a submitted option is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrIndexOutOfRange indicates navigation to a question that does not exist.
	ErrIndexOutOfRange = errors.New("question index out of range")
)
