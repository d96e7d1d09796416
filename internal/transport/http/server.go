package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"avtotest-service/internal/admission"
	"avtotest-service/internal/app"
	"avtotest-service/internal/auth"
	"avtotest-service/internal/cache"
	"avtotest-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles the use cases the HTTP layer exposes.
type Services struct {
	Accounts  *app.AccountService
	Admin     *app.AdminService
	Catalog   *app.CatalogAdmin
	Content   *cache.Catalog
	Quiz      *app.QuizService
	Review    *app.ReviewService
	Admission *admission.Controller
}

// Options configures token verification, the device cookie and metrics.
type Options struct {
	JWTSecret    string
	JWTIssuer    string
	CookieName   string
	CookieSecure bool
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
}

type Server struct {
	svc    Services
	opts   Options
	ws     *WSHandler
	logger *zap.Logger
}

func NewServer(svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultDeviceCookie
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		svc:    svc,
		opts:   opts,
		ws:     NewWSHandler(svc.Quiz, opts.Logger),
		logger: opts.Logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/api/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Post("/api/devices/check", s.handleDeviceCheck)

	// Student-facing content sits behind the device limit.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireDevice)
		r.Get("/api/tickets", s.handleListTickets)
		r.Get("/api/tickets/{ticketId}/questions", s.handleTicketQuestions)
		r.Get("/api/groups", s.handleListGroups)
		r.Get("/api/results", s.handleResults)
		r.Get("/api/errors", s.handleErrors)
		r.Get("/ws/quiz", s.ws.ServeWS)
	})

	r.With(s.authMiddleware, s.requireRole(domain.RoleAdmin)).Post("/api/tickets", s.handleCreateTicket)
	r.With(s.authMiddleware, s.requireRole(domain.RoleAdmin)).Post("/api/tickets/import", s.handleImportTicket)
	r.With(s.authMiddleware, s.requireRole(domain.RoleAdmin)).Delete("/api/tickets/{ticketId}", s.handleDeleteTicket)
	r.With(s.authMiddleware, s.requireRole(domain.RoleAdmin, domain.RoleTeacher)).Post("/api/groups", s.handleCreateGroup)
	r.With(s.authMiddleware, s.requireRole(domain.RoleAdmin, domain.RoleTeacher)).Delete("/api/groups/{groupId}", s.handleDeleteGroup)

	r.Route("/api/admin/users", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(domain.RoleAdmin))
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleCreateUser)
		r.Delete("/{userId}", s.handleDeleteUser)
		r.Put("/{userId}/password", s.handleUpdatePassword)
		r.Post("/{userId}/devices/reset", s.handleResetDevices)
	})

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			// Browsers cannot set headers on a websocket handshake.
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.opts.JWTSecret, s.opts.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

type deviceLimitResponse struct {
	Error      string            `json:"error"`
	DeviceType domain.DeviceType `json:"deviceType"`
	Used       int               `json:"used"`
	Limit      int               `json:"limit"`
}

// requireDevice runs the admission check for students and rejects devices over the limit.
func (s *Server) requireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.admit(w, r)
		if !d.Allowed {
			writeJSON(w, http.StatusForbidden, deviceLimitResponse{
				Error:      "device_limit",
				DeviceType: d.DeviceType,
				Used:       d.Used,
				Limit:      d.Limit,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) admit(w http.ResponseWriter, r *http.Request) admission.Decision {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return admission.Decision{Outcome: admission.OutcomeNoUser}
	}
	if claims.Role != domain.RoleStudent {
		return admission.Decision{Allowed: true, Outcome: admission.OutcomeExempt}
	}
	tokens := newCookieTokenStore(w, r, s.opts.CookieName, s.opts.CookieSecure)
	return s.svc.Admission.Check(r.Context(), claims.UserID, requestSignals(r), tokens)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// errorStatus maps domain errors to a status and a public error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrTicketNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrSessionFinished),
		errors.Is(err, domain.ErrNotRevealed):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyPool),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrIndexOutOfRange):
		return http.StatusBadRequest, "invalid_request"
	}
	return http.StatusInternalServerError, "server_error"
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, code)
}
