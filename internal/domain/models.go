package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/ecodeclub/ekit/slice"
)

// Role is the account role resolved by the identity service.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleStudent
}

// DeviceType is the coarse device class a slot set is kept for.
type DeviceType string

const (
	DevicePC     DeviceType = "pc"
	DeviceMobile DeviceType = "mobile"
)

// DefaultDeviceLimit is the slot limit given to new accounts.
const DefaultDeviceLimit = 1

// DeviceSlots is the server-held slot table of a user profile.
type DeviceSlots struct {
	UserID          string   `json:"userId"`
	PCDeviceIDs     []string `json:"pcDeviceIds"`
	MobileDeviceIDs []string `json:"mobileDeviceIds"`
	PCLimit         int      `json:"pcLimit"`
	MobileLimit     int      `json:"mobileLimit"`
}

// IDs returns the slot set for the given device type.
func (s DeviceSlots) IDs(kind DeviceType) []string {
	if kind == DeviceMobile {
		return s.MobileDeviceIDs
	}
	return s.PCDeviceIDs
}

// Limit returns the configured limit for the given device type.
func (s DeviceSlots) Limit(kind DeviceType) int {
	if kind == DeviceMobile {
		return s.MobileLimit
	}
	return s.PCLimit
}

// Contains reports whether id is bound in the slot set of kind.
func (s DeviceSlots) Contains(kind DeviceType, id string) bool {
	return slice.Contains(s.IDs(kind), id)
}

// HasRoom reports whether another device of kind can be bound.
func (s DeviceSlots) HasRoom(kind DeviceType) bool {
	return len(s.IDs(kind)) < s.Limit(kind)
}

// Profile is the per-user record shared by admission and the admin actions.
type Profile struct {
	UserID    string      `json:"userId"`
	FullName  string      `json:"fullName"`
	Email     string      `json:"email"`
	Role      Role        `json:"role"`
	Slots     DeviceSlots `json:"slots"`
	CreatedAt time.Time   `json:"createdAt"`
	// InQuiz is filled for admin listings only; it is not stored.
	InQuiz bool `json:"inQuiz"`
}

// Ticket is a numbered exam ticket holding an ordered set of questions.
type Ticket struct {
	ID     string `json:"id"`
	Number int    `json:"ticketNumber"`
	Title  string `json:"title"`
}

// Question is a single multiple-choice question. CorrectAnswer must equal one of Options.
type Question struct {
	ID            string   `json:"id"`
	TicketID      string   `json:"ticketId"`
	Text          string   `json:"questionText"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
	OrderNum      int      `json:"orderNum"`
}

// Validate reports data-entry errors. Questions with fewer than two options
// are rejected here rather than special-cased by the quiz runner.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: question text is empty", ErrValidation)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: question %q needs at least two options", ErrValidation, q.Text)
	}
	if !slice.Contains(q.Options, q.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer of %q is not one of its options", ErrValidation, q.Text)
	}
	return nil
}

// IsCorrect reports whether option is the correct answer.
func (q Question) IsCorrect(option string) bool {
	return option != "" && option == q.CorrectAnswer
}

// CategorizedGroup is an admin-defined named subset of tickets.
type CategorizedGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TicketIDs []string  `json:"ticketIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// QuizMode names the way a quiz pool was assembled.
type QuizMode string

const (
	ModeTicket QuizMode = "ticket"
	ModeRandom QuizMode = "random"
	ModeGroup  QuizMode = "group"
)

// AnswerRecord is the per-question outcome stored with a test result.
type AnswerRecord struct {
	QuestionID string `json:"questionId"`
	Selected   string `json:"selected,omitempty"`
	Correct    bool   `json:"correct"`
}

// TestResult is written once, when a quiz session finishes.
type TestResult struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	TicketID         string         `json:"ticketId,omitempty"`
	Mode             QuizMode       `json:"mode"`
	Score            int            `json:"score"`
	CorrectAnswers   int            `json:"correctAnswers"`
	TotalQuestions   int            `json:"totalQuestions"`
	Answers          []AnswerRecord `json:"answers"`
	TimeSpentSeconds int            `json:"timeSpentSeconds"`
	CompletedAt      time.Time      `json:"completedAt"`
}

// ErrorQuestion is a previously missed question offered for review.
type ErrorQuestion struct {
	Question
	Selected    string `json:"selected,omitempty"`
	TicketTitle string `json:"ticketTitle,omitempty"`
}

// SortTickets orders tickets by number, then id.
func SortTickets(tickets []Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].Number != tickets[j].Number {
			return tickets[i].Number < tickets[j].Number
		}
		return tickets[i].ID < tickets[j].ID
	})
}

// SortQuestions orders questions by ticket, then order number, then id.
func SortQuestions(questions []Question) {
	sort.Slice(questions, func(i, j int) bool {
		a, b := questions[i], questions[j]
		switch {
		case a.TicketID != b.TicketID:
			return a.TicketID < b.TicketID
		case a.OrderNum != b.OrderNum:
			return a.OrderNum < b.OrderNum
		}
		return a.ID < b.ID
	})
}
