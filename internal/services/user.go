package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/venuely/apiserver/internal/store"
	"github.com/venuely/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLength = 72
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateName(ctx context.Context, id int, name string) error
	UpdateRole(ctx context.Context, id int, role string) error
	SetAvatarKey(ctx context.Context, id int, key string) error
	MarkEmailVerified(ctx context.Context, email string) error
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
	cost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, cost: bcrypt.DefaultCost}
}

// WithHashCost returns a copy of the service hashing at the given bcrypt cost.
func (s *UserService) WithHashCost(cost int) *UserService {
	return &UserService{repo: s.repo, cost: cost}
}

// GetByID returns the user without its password hash.
func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

// Register validates the request and creates an unverified account.
func (s *UserService) Register(ctx context.Context, req types.RegisterRequest) (types.User, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	if email == "" || name == "" || req.Password == "" {
		return types.User{}, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return types.User{}, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return types.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(req.Password) > maxPasswordLength {
		return types.User{}, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		Role:         types.RoleUser,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, fmt.Errorf("register %q: %w", email, ErrEmailTaken)
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks an email/password pair. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: missing credentials", ErrInvalidInput)
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, fmt.Errorf("authenticate %q: %w", email, ErrInvalidCredentials)
		}
		return types.User{}, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, fmt.Errorf("authenticate %q: %w", email, ErrInvalidCredentials)
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateName changes the display name and returns the refreshed user.
func (s *UserService) UpdateName(ctx context.Context, id int, name string) (types.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := s.repo.UpdateName(ctx, id, name); err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, id)
}

// ChangeRole sets the role of another user.
func (s *UserService) ChangeRole(ctx context.Context, id int, role string) (types.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != types.RoleUser && role != types.RoleAdmin {
		return types.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
