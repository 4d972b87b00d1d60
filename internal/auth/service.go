package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
)

// Backend is the subset of the API client the auth flows need.
type Backend interface {
	Login(ctx context.Context, email, password string) (*backend.Login, error)
	Register(ctx context.Context, in backend.RegisterInput) (*backend.Login, error)
	Logout(ctx context.Context) error
}

// ProfileCache keeps the last known user profile per owner.
type ProfileCache interface {
	SaveProfile(ctx context.Context, owner string, profile any) error
}

// Service wraps the sign-in rules.
type Service struct {
	backend  Backend
	profiles ProfileCache
	now      func() time.Time
}

// NewService constructs a new Service. profiles may be nil.
func NewService(b Backend, profiles ProfileCache) *Service {
	return &Service{backend: b, profiles: profiles, now: time.Now}
}

// Authenticate signs in with email and password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	login, err := s.backend.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, httpx.ErrUnauthorized) {
			return nil, fmt.Errorf("auth: %w", shared.ErrInvalidCredentials)
		}
		return nil, err
	}
	return s.identity(ctx, login), nil
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, in backend.RegisterInput) (*Identity, error) {
	login, err := s.backend.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.identity(ctx, login), nil
}

// Logout ends the backend session for id. Failures are returned for logging
// only; the local session is cleared regardless.
func (s *Service) Logout(ctx context.Context, id *Identity) error {
	if id == nil {
		return nil
	}
	return s.backend.Logout(backend.ContextWithCredentials(ctx, id.Credentials()))
}

// CacheProfile records the latest profile for id.
func (s *Service) CacheProfile(ctx context.Context, id *Identity) error {
	if s.profiles == nil || id == nil {
		return nil
	}
	return s.profiles.SaveProfile(ctx, id.Owner(), id.User)
}

func (s *Service) identity(ctx context.Context, login *backend.Login) *Identity {
	id := &Identity{
		User:       login.User,
		Token:      login.Credentials.Token,
		Cookies:    login.Credentials.Cookies,
		LoggedInAt: s.now().UTC(),
	}
	_ = s.CacheProfile(ctx, id)
	return id
}
