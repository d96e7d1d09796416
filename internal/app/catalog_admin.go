package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"avtotest-service/internal/domain"
	"github.com/ecodeclub/ekit/slice"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogWriter is the source-of-truth side of the catalog.
type CatalogWriter interface {
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	// CreateTicket stores the ticket and all of its questions, or nothing.
	CreateTicket(ctx context.Context, ticket domain.Ticket, questions []domain.Question) error
	DeleteTicket(ctx context.Context, ticketID string) error
	ListGroups(ctx context.Context) ([]domain.CategorizedGroup, error)
	CreateGroup(ctx context.Context, group domain.CategorizedGroup) error
	DeleteGroup(ctx context.Context, groupID string) error
}

// QuestionInput is one imported question. Both the export keys
// (question, image) and the table keys (question_text, image_url) are accepted.
type QuestionInput struct {
	Text          string   `json:"question_text" validate:"required"`
	ImageURL      string   `json:"image_url,omitempty"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Explanation   string   `json:"explanation,omitempty"`
	OrderNum      int      `json:"order_num"`
}

func (q *QuestionInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question      string   `json:"question"`
		QuestionText  string   `json:"question_text"`
		Image         string   `json:"image"`
		ImageURL      string   `json:"image_url"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correct_answer"`
		Explanation   string   `json:"explanation"`
		OrderNum      int      `json:"order_num"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = QuestionInput{
		Text:          firstNonEmpty(raw.Question, raw.QuestionText),
		ImageURL:      firstNonEmpty(raw.Image, raw.ImageURL),
		Options:       raw.Options,
		CorrectAnswer: raw.CorrectAnswer,
		Explanation:   raw.Explanation,
		OrderNum:      raw.OrderNum,
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ParseQuestions decodes an import document: a JSON array of questions or a single question object.
func ParseQuestions(data []byte) ([]QuestionInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty import", domain.ErrValidation)
	}
	var out []QuestionInput
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("%w: malformed import JSON: %v", domain.ErrValidation, err)
		}
	} else {
		var one QuestionInput
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("%w: malformed import JSON: %v", domain.ErrValidation, err)
		}
		out = []QuestionInput{one}
	}
	return out, nil
}

// MergeQuestions concatenates several import documents and renumbers
// order_num from 1 across the merged set.
func MergeQuestions(documents ...[]byte) ([]QuestionInput, error) {
	var merged []QuestionInput
	for i, doc := range documents {
		qs, err := ParseQuestions(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		merged = append(merged, qs...)
	}
	for i := range merged {
		merged[i].OrderNum = i + 1
	}
	return merged, nil
}

// NewTicketInput creates a ticket with its questions in one step.
type NewTicketInput struct {
	Number    int             `json:"ticket_number" validate:"gt=0"`
	Title     string          `json:"title"`
	Questions []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// NewGroupInput creates a categorized group.
type NewGroupInput struct {
	Name      string   `json:"name" validate:"required"`
	TicketIDs []string `json:"ticket_ids" validate:"required,min=1,dive,required"`
}

// CatalogAdmin manages tickets, questions and groups. Writes go to the source
// of truth only; local caches keep what they have until resynced.
type CatalogAdmin struct {
	catalog CatalogWriter
	now     func() time.Time
	logger  *zap.Logger
}

func NewCatalogAdmin(catalog CatalogWriter, logger *zap.Logger) *CatalogAdmin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogAdmin{catalog: catalog, now: time.Now, logger: logger}
}

// CreateTicket validates every question before anything is written.
func (a *CatalogAdmin) CreateTicket(ctx context.Context, in NewTicketInput) (domain.Ticket, []domain.Question, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		in.Title = fmt.Sprintf("%d-bilet", in.Number)
	}
	for i := range in.Questions {
		in.Questions[i] = normalizeQuestion(in.Questions[i])
	}
	if err := validateStruct(in); err != nil {
		return domain.Ticket{}, nil, err
	}

	ticket := domain.Ticket{ID: uuid.NewString(), Number: in.Number, Title: in.Title}
	questions := make([]domain.Question, 0, len(in.Questions))
	for i, qi := range in.Questions {
		q := domain.Question{
			ID:            uuid.NewString(),
			TicketID:      ticket.ID,
			Text:          qi.Text,
			ImageURL:      qi.ImageURL,
			Options:       qi.Options,
			CorrectAnswer: qi.CorrectAnswer,
			Explanation:   qi.Explanation,
			OrderNum:      i + 1,
		}
		if err := q.Validate(); err != nil {
			return domain.Ticket{}, nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, q)
	}

	if err := a.catalog.CreateTicket(ctx, ticket, questions); err != nil {
		return domain.Ticket{}, nil, err
	}
	a.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.Int("number", ticket.Number), zap.Int("questions", len(questions)))
	return ticket, questions, nil
}

// ImportQuestions parses an import document and creates a ticket from it.
func (a *CatalogAdmin) ImportQuestions(ctx context.Context, number int, title string, document []byte) (domain.Ticket, []domain.Question, error) {
	questions, err := ParseQuestions(document)
	if err != nil {
		return domain.Ticket{}, nil, err
	}
	return a.CreateTicket(ctx, NewTicketInput{Number: number, Title: title, Questions: questions})
}

func (a *CatalogAdmin) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := a.catalog.DeleteTicket(ctx, ticketID); err != nil {
		return err
	}
	a.logger.Info("ticket deleted", zap.String("ticket_id", ticketID))
	return nil
}

// CreateGroup stores a named subset of existing tickets.
func (a *CatalogAdmin) CreateGroup(ctx context.Context, in NewGroupInput) (domain.CategorizedGroup, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return domain.CategorizedGroup{}, err
	}
	ids := make([]string, 0, len(in.TicketIDs))
	for _, id := range in.TicketIDs {
		if slice.Contains(ids, id) {
			continue
		}
		if _, err := a.catalog.GetTicket(ctx, id); err != nil {
			return domain.CategorizedGroup{}, err
		}
		ids = append(ids, id)
	}
	group := domain.CategorizedGroup{
		ID:        uuid.NewString(),
		Name:      in.Name,
		TicketIDs: ids,
		CreatedAt: a.now().UTC(),
	}
	if err := a.catalog.CreateGroup(ctx, group); err != nil {
		return domain.CategorizedGroup{}, err
	}
	return group, nil
}

func (a *CatalogAdmin) ListGroups(ctx context.Context) ([]domain.CategorizedGroup, error) {
	return a.catalog.ListGroups(ctx)
}

func (a *CatalogAdmin) DeleteGroup(ctx context.Context, groupID string) error {
	return a.catalog.DeleteGroup(ctx, groupID)
}

// normalizeQuestion trims text and drops blank options.
func normalizeQuestion(q QuestionInput) QuestionInput {
	q.Text = strings.TrimSpace(q.Text)
	q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
	q.Explanation = strings.TrimSpace(q.Explanation)
	q.ImageURL = strings.TrimSpace(q.ImageURL)
	options := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	q.Options = options
	return q
}
