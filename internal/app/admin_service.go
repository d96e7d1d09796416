package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"avtotest-service/internal/auth"
	"avtotest-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserRepository stores profiles, credentials and device slots.
type UserRepository interface {
	CreateUser(ctx context.Context, profile domain.Profile, hash, salt []byte) error
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	ListProfiles(ctx context.Context, role domain.Role) ([]domain.Profile, error)
	DeleteUser(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID string, hash, salt []byte) error
	ResetDevices(ctx context.Context, userID string, kinds ...domain.DeviceType) error
}

// ResultCleaner removes a user's results before the account is deleted.
type ResultCleaner interface {
	DeleteResultsOf(ctx context.Context, userID string) error
}

// CreateUserInput is the payload of the create_user action.
type CreateUserInput struct {
	Email       string      `json:"email" validate:"required,email"`
	Password    string      `json:"password" validate:"required,min=6"`
	FullName    string      `json:"full_name" validate:"required"`
	Role        domain.Role `json:"role" validate:"required,oneof=teacher student"`
	PCLimit     int         `json:"pc_limit" validate:"gte=0,lte=100"`
	MobileLimit int         `json:"mobile_limit" validate:"gte=0,lte=100"`
}

// DeviceScope selects which slot sets a reset clears.
type DeviceScope string

const (
	ScopePC     DeviceScope = "pc"
	ScopeMobile DeviceScope = "mobile"
	ScopeAll    DeviceScope = "all"
)

// AdminService implements the privileged account actions. Every action
// re-reads the caller's role from the store; a role carried in the caller's
// token is never enough.
type AdminService struct {
	users   UserRepository
	results ResultCleaner
	live    LiveSessions
	now     func() time.Time
	logger  *zap.Logger
}

// NewAdminService builds the admin actions. live may be nil.
func NewAdminService(users UserRepository, results ResultCleaner, live LiveSessions, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{users: users, results: results, live: live, now: time.Now, logger: logger}
}

func (s *AdminService) requireAdmin(ctx context.Context, callerID string) error {
	caller, err := s.users.GetProfile(ctx, callerID)
	if err != nil {
		s.logger.Warn("admin check failed", zap.String("caller_id", callerID), zap.Error(err))
		return domain.ErrForbidden
	}
	if caller.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}

// CreateUser creates a teacher or student account. Limits only apply to
// students; zero means the default of one device per type.
func (s *AdminService) CreateUser(ctx context.Context, callerID string, in CreateUserInput) (domain.Profile, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return domain.Profile{}, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validateStruct(in); err != nil {
		return domain.Profile{}, err
	}

	hash, salt, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	profile := domain.Profile{
		UserID:    uuid.NewString(),
		FullName:  in.FullName,
		Email:     in.Email,
		Role:      in.Role,
		CreatedAt: s.now().UTC(),
		Slots: domain.DeviceSlots{
			PCDeviceIDs:     []string{},
			MobileDeviceIDs: []string{},
			PCLimit:         domain.DefaultDeviceLimit,
			MobileLimit:     domain.DefaultDeviceLimit,
		},
	}
	if in.Role == domain.RoleStudent {
		if in.PCLimit > 0 {
			profile.Slots.PCLimit = in.PCLimit
		}
		if in.MobileLimit > 0 {
			profile.Slots.MobileLimit = in.MobileLimit
		}
	}
	profile.Slots.UserID = profile.UserID

	if err := s.users.CreateUser(ctx, profile, hash, salt); err != nil {
		return domain.Profile{}, err
	}
	s.logger.Info("user created", zap.String("user_id", profile.UserID), zap.String("role", string(profile.Role)))
	return profile, nil
}

// DeleteUser removes the user's results and then the account itself.
func (s *AdminService) DeleteUser(ctx context.Context, callerID, userID string) error {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if userID == callerID {
		return fmt.Errorf("%w: admins cannot delete themselves", domain.ErrValidation)
	}
	if err := s.results.DeleteResultsOf(ctx, userID); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.String("user_id", userID))
	return nil
}

// UpdatePassword sets a new password for userID.
func (s *AdminService) UpdatePassword(ctx context.Context, callerID, userID, password string) error {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return err
	}
	if userID == "" || len(password) < 6 {
		return fmt.Errorf("%w: user id and a password of at least 6 characters are required", domain.ErrValidation)
	}
	hash, salt, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, userID, hash, salt)
}

// ResetDeviceSlots clears the slot sets selected by scope. An empty scope clears both.
func (s *AdminService) ResetDeviceSlots(ctx context.Context, callerID, userID string, scope DeviceScope) error {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	var kinds []domain.DeviceType
	switch scope {
	case ScopePC:
		kinds = []domain.DeviceType{domain.DevicePC}
	case ScopeMobile:
		kinds = []domain.DeviceType{domain.DeviceMobile}
	case ScopeAll, "":
		kinds = []domain.DeviceType{domain.DevicePC, domain.DeviceMobile}
	default:
		return fmt.Errorf("%w: unknown device scope %q", domain.ErrValidation, scope)
	}
	if err := s.users.ResetDevices(ctx, userID, kinds...); err != nil {
		return err
	}
	s.logger.Info("device slots reset", zap.String("user_id", userID), zap.String("scope", string(scope)))
	return nil
}

// ListUsers returns profiles with the given role, or all profiles for an empty role.
// Each profile reports whether the user is mid-attempt.
func (s *AdminService) ListUsers(ctx context.Context, callerID string, role domain.Role) ([]domain.Profile, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	profiles, err := s.users.ListProfiles(ctx, role)
	if err != nil || s.live == nil {
		return profiles, err
	}
	for i := range profiles {
		_, live, err := s.live.LiveSession(ctx, profiles[i].UserID)
		if err != nil {
			s.logger.Warn("live session lookup failed", zap.String("user_id", profiles[i].UserID), zap.Error(err))
			continue
		}
		profiles[i].InQuiz = live
	}
	return profiles, nil
}
