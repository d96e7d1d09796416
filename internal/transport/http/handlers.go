package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"avtotest-service/internal/app"
	"avtotest-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Accounts

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"accessToken"`
	User        domain.Profile `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}
	token, profile, err := s.svc.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, User: profile})
}

// Content

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.svc.Content.Tickets(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(tickets))
}

func (s *Server) handleTicketQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.svc.Content.Questions(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(questions))
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.Catalog.ListGroups(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(groups))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	results, err := s.svc.Review.Results(r.Context(), claims.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(results))
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	questions, err := s.svc.Review.Errors(r.Context(), claims.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(questions))
}

// Catalog management

type ticketResponse struct {
	Ticket    domain.Ticket     `json:"ticket"`
	Questions []domain.Question `json:"questions"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req app.NewTicketInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	ticket, questions, err := s.svc.Catalog.CreateTicket(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: ticket, Questions: questions})
}

type importRequest struct {
	Number    int             `json:"ticket_number"`
	Title     string          `json:"title"`
	Questions json.RawMessage `json:"questions"`
}

func (s *Server) handleImportTicket(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil || len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	ticket, questions, err := s.svc.Catalog.ImportQuestions(r.Context(), req.Number, req.Title, req.Questions)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: ticket, Questions: questions})
}

func (s *Server) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteTicket(r.Context(), chi.URLParam(r, "ticketId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req app.NewGroupInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	group, err := s.svc.Catalog.CreateGroup(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteGroup(r.Context(), chi.URLParam(r, "groupId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin actions

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	role := domain.Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}
	profiles, err := s.svc.Admin.ListUsers(r.Context(), claims.UserID, role)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(profiles))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req app.CreateUserInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	profile, err := s.svc.Admin.CreateUser(r.Context(), claims.UserID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.svc.Admin.DeleteUser(r.Context(), claims.UserID, chi.URLParam(r, "userId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.svc.Admin.UpdatePassword(r.Context(), claims.UserID, chi.URLParam(r, "userId"), req.Password); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetDevicesRequest struct {
	Scope app.DeviceScope `json:"scope"`
}

func (s *Server) handleResetDevices(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req resetDevicesRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
	}
	if err := s.svc.Admin.ResetDeviceSlots(r.Context(), claims.UserID, chi.URLParam(r, "userId"), req.Scope); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
