package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"avtotest-service/internal/auth"
	"avtotest-service/internal/domain"
)

// CredentialStore resolves login credentials by email.
type CredentialStore interface {
	Credentials(ctx context.Context, email string) (domain.Profile, []byte, []byte, error)
}

// TokenSettings configures issued bearer tokens.
type TokenSettings struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// AccountService signs users in and issues bearer tokens.
type AccountService struct {
	creds    CredentialStore
	settings TokenSettings
}

func NewAccountService(creds CredentialStore, settings TokenSettings) *AccountService {
	return &AccountService{creds: creds, settings: settings}
}

// Login verifies email and password. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, domain.Profile, error) {
	profile, hash, salt, err := s.creds.Credentials(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.Profile{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return "", domain.Profile{}, err
	}
	if !auth.VerifyPassword(password, salt, hash) {
		return "", domain.Profile{}, domain.ErrUnauthenticated
	}
	token, err := auth.NewAccessToken(s.settings.Secret, s.settings.Issuer, s.settings.TTL, auth.Claims{
		UserID: profile.UserID,
		Role:   profile.Role,
	})
	if err != nil {
		return "", domain.Profile{}, err
	}
	return token, profile, nil
}
