// Package tokens issues and verifies the signed bearer tokens handed out at login.
package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of a freshly issued token.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalid covers bad signatures, malformed tokens and missing claims.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned for well-signed tokens past their expiry.
	ErrExpired = errors.New("token expired")
)

// Issuer signs and verifies HS256 tokens whose subject is a user id.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer constructs an Issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(secret string, ttl time.Duration, opts ...Option) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	issuer := &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for the user.
func (i *Issuer) Issue(userID int) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse verifies the token and returns the user id in its subject claim.
// Expired tokens yield ErrExpired; every other failure yields ErrInvalid.
func (i *Issuer) Parse(tokenString string) (int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	},
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpired
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return 0, ErrInvalid
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return 0, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	userID, err := strconv.Atoi(subject)
	if err != nil || userID < 1 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalid)
	}
	return userID, nil
}
