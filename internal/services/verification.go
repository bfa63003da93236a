package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/venuely/apiserver/internal/store"
	"github.com/venuely/apiserver/types"
)

const (
	DefaultCodeTTL     = 15 * time.Minute
	DefaultMaxAttempts = 5
	codeDigits         = 6
)

// VerificationRepository persists one live passcode per email address.
type VerificationRepository interface {
	Upsert(ctx context.Context, code types.VerificationCode) error
	Get(ctx context.Context, email string) (types.VerificationCode, error)
	// ClaimAttempt atomically counts one guess while fewer than limit have
	// been made, returning store.ErrAttemptsExhausted otherwise.
	ClaimAttempt(ctx context.Context, email string, limit int) (int, error)
	Delete(ctx context.Context, email string) error
}

// VerificationService issues and confirms email passcodes.
type VerificationService struct {
	codes       VerificationRepository
	users       UserRepository
	notifier    Notifier
	ttl         time.Duration
	maxAttempts int

	now      func() time.Time
	generate func() (string, error)
}

// VerificationOption customises a VerificationService.
type VerificationOption func(*VerificationService)

func WithCodeTTL(ttl time.Duration) VerificationOption {
	return func(s *VerificationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMaxAttempts(n int) VerificationOption {
	return func(s *VerificationService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithVerificationClock(now func() time.Time) VerificationOption {
	return func(s *VerificationService) { s.now = now }
}

// WithCodeGenerator replaces the random passcode source. Tests only.
func WithCodeGenerator(generate func() (string, error)) VerificationOption {
	return func(s *VerificationService) { s.generate = generate }
}

func NewVerificationService(codes VerificationRepository, users UserRepository, notifier Notifier, opts ...VerificationOption) *VerificationService {
	s := &VerificationService{
		codes:       codes,
		users:       users,
		notifier:    notifier,
		ttl:         DefaultCodeTTL,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		generate:    randomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue stores a fresh passcode for the user and hands it to the notifier.
// Any previous code for the address stops working.
func (s *VerificationService) Issue(ctx context.Context, user types.User) error {
	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	err = s.codes.Upsert(ctx, types.VerificationCode{
		Email:     user.Email,
		CodeHash:  hashCode(code),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	return s.notifier.NotifyVerification(ctx, types.VerificationEvent{
		Email:     user.Email,
		Name:      user.Name,
		Code:      code,
		ExpiresAt: expiresAt,
	})
}

// Resend issues a new code for an existing, unverified account.
func (s *VerificationService) Resend(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no account for %s", ErrInvalidInput, email)
		}
		return fmt.Errorf("query user: %w", err)
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	return s.Issue(ctx, user)
}

// Confirm checks a passcode. On success the address is marked verified,
// the code is consumed and the refreshed user is returned.
func (s *VerificationService) Confirm(ctx context.Context, email, code string) (types.User, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return types.User{}, fmt.Errorf("%w: email and code are required", ErrInvalidInput)
	}

	stored, err := s.codes.Get(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCode
		}
		return types.User{}, fmt.Errorf("load code: %w", err)
	}

	if !s.now().Before(stored.ExpiresAt) {
		if err := s.codes.Delete(ctx, email); err != nil {
			return types.User{}, fmt.Errorf("delete expired code: %w", err)
		}
		return types.User{}, ErrCodeExpired
	}
	if stored.Attempts >= s.maxAttempts {
		return types.User{}, ErrTooManyAttempts
	}

	// The guess is counted before it is compared.
	if _, err := s.codes.ClaimAttempt(ctx, email, s.maxAttempts); err != nil {
		switch {
		case errors.Is(err, store.ErrAttemptsExhausted):
			return types.User{}, ErrTooManyAttempts
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, ErrInvalidCode
		}
		return types.User{}, fmt.Errorf("record attempt: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(stored.CodeHash)) != 1 {
		return types.User{}, ErrInvalidCode
	}

	if err := s.users.MarkEmailVerified(ctx, email); err != nil {
		return types.User{}, fmt.Errorf("mark verified: %w", err)
	}
	if err := s.codes.Delete(ctx, email); err != nil {
		return types.User{}, fmt.Errorf("consume code: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, fmt.Errorf("reload user: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

func randomCode() (string, error) {
	limit := big.NewInt(1)
	for range codeDigits {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
