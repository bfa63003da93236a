// Package auth holds the customer client's session: the signed-in user,
// their token, and the operations that change them.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/internal/client/kv"
	"github.com/venuely/apiserver/types"
)

const (
	tokenKey = "token"
	userKey  = "user"
)

// ErrNotAuthenticated is returned by operations that need a session.
var ErrNotAuthenticated = errors.New("not signed in")

// Gateway is the subset of the API client the service calls.
type Gateway interface {
	Login(ctx context.Context, email, password string) (types.AuthResponse, error)
	Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error)
	VerifyEmail(ctx context.Context, email, code string) (types.AuthResponse, error)
}

// Service is the customer auth context. Gateway errors are returned
// unchanged.
type Service struct {
	gateway Gateway
	store   kv.Store

	mu      sync.RWMutex
	user    *types.UserProfile
	token   string
	loading bool
}

// New restores a persisted session. A corrupt or half-present pair of
// entries is purged and the service starts signed out.
func New(ctx context.Context, gateway Gateway, store kv.Store) *Service {
	s := &Service{gateway: gateway, store: store, loading: true}
	s.restore(ctx)
	return s
}

func (s *Service) restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.loading = false }()

	rawToken, tokenErr := s.store.Get(ctx, tokenKey)
	rawUser, userErr := s.store.Get(ctx, userKey)
	if errors.Is(tokenErr, kv.ErrNotFound) && errors.Is(userErr, kv.ErrNotFound) {
		return
	}

	token := strings.TrimSpace(string(rawToken))
	var user types.UserProfile
	if tokenErr != nil || userErr != nil || token == "" ||
		json.Unmarshal(rawUser, &user) != nil || !complete(user) {
		zerolog.Ctx(ctx).Debug().Msg("discarding unusable stored session")
		s.purge(ctx)
		return
	}

	s.user = &user
	s.token = token
}

// Login authenticates and persists the returned session.
func (s *Service) Login(ctx context.Context, email, password string) (types.UserProfile, error) {
	resp, err := s.gateway.Login(ctx, email, password)
	if err != nil {
		return types.UserProfile{}, err
	}
	if err := s.establish(ctx, resp); err != nil {
		return types.UserProfile{}, err
	}
	return resp.User, nil
}

// Register creates an account. The session is left untouched; it is
// created by Verify once the emailed code is confirmed.
func (s *Service) Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error) {
	return s.gateway.Register(ctx, req)
}

// Verify confirms the emailed code and signs the user in.
func (s *Service) Verify(ctx context.Context, email, code string) (types.UserProfile, error) {
	resp, err := s.gateway.VerifyEmail(ctx, email, code)
	if err != nil {
		return types.UserProfile{}, err
	}
	if err := s.establish(ctx, resp); err != nil {
		return types.UserProfile{}, err
	}
	return resp.User, nil
}

// Logout forgets the session locally. It is safe to call when signed out.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purge(ctx)
}

// UpdateUser replaces the stored user projection. The token is kept.
func (s *Service) UpdateUser(ctx context.Context, user types.UserProfile) error {
	if !complete(user) {
		return errors.New("user profile is incomplete")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return ErrNotAuthenticated
	}
	if err := s.store.Set(ctx, userKey, raw); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	s.user = &user
	return nil
}

// IsAuthenticated requires both a user and a token.
func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.token != ""
}

func (s *Service) User() (types.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return types.UserProfile{}, false
	}
	return *s.user, true
}

func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Service) establish(ctx context.Context, resp types.AuthResponse) error {
	if strings.TrimSpace(resp.Token) == "" {
		return errors.New("server returned an empty token")
	}
	if !complete(resp.User) {
		return errors.New("server returned an incomplete user")
	}
	raw, err := json.Marshal(resp.User)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(ctx, tokenKey, []byte(resp.Token)); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.store.Set(ctx, userKey, raw); err != nil {
		s.purge(ctx)
		return fmt.Errorf("store user: %w", err)
	}

	user := resp.User
	s.user = &user
	s.token = resp.Token
	return nil
}

// complete reports whether a decoded profile names a real account.
func complete(user types.UserProfile) bool {
	return user.ID > 0 && strings.TrimSpace(user.Email) != ""
}

// purge must be called with mu held.
func (s *Service) purge(ctx context.Context) error {
	s.user = nil
	s.token = ""
	return errors.Join(
		s.store.Delete(ctx, tokenKey),
		s.store.Delete(ctx, userKey),
	)
}
