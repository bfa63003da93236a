package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/internal/metrics"
	"github.com/venuely/apiserver/internal/store"
	"github.com/venuely/apiserver/internal/tokens"
	"github.com/venuely/apiserver/types"
)

type contextKey string

const (
	contextUserKey  contextKey = "user"
	contextTokenKey contextKey = "token"
)

// Rejection messages returned by RequireAuth.
const (
	msgNoToken       = "no token, authorization denied"
	msgInvalidToken  = "invalid token"
	msgSessionExpiry = "session expired, please log in again"
	msgUserGone      = "user no longer exists"
	msgLoadUser      = "failed to load user"
	msgUnverified    = "email address not verified"
)

// TokenParser verifies a bearer token and returns its subject.
type TokenParser interface {
	Parse(token string) (int, error)
}

// UserLoader loads a user without its password hash.
type UserLoader interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// AuthConfig holds the policy knobs of RequireAuth.
type AuthConfig struct {
	RequireEmailVerified bool
}

// RequireAuth verifies the bearer token on every request, loads the user it
// names and stores both in the request context. Nothing is cached between
// requests.
func RequireAuth(parser TokenParser, users UserLoader, cfg AuthConfig, recorder metrics.Recorder) func(http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(status int, reason, message string) {
				recorder.RecordAuthRejection(reason)
				zerolog.Ctx(r.Context()).Debug().Str("reason", reason).Msg("request rejected by auth")
				writeError(w, status, message)
			}

			token := bearerToken(r)
			if token == "" {
				reject(http.StatusUnauthorized, "missing_token", msgNoToken)
				return
			}

			userID, err := parser.Parse(token)
			if err != nil {
				if errors.Is(err, tokens.ErrExpired) {
					reject(http.StatusUnauthorized, "expired", msgSessionExpiry)
					return
				}
				reject(http.StatusUnauthorized, "invalid_token", msgInvalidToken)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					reject(http.StatusUnauthorized, "user_missing", msgUserGone)
					return
				}
				zerolog.Ctx(r.Context()).Error().Err(err).Int("user_id", userID).Msg(msgLoadUser)
				reject(http.StatusInternalServerError, "lookup_failed", msgLoadUser)
				return
			}

			if cfg.RequireEmailVerified && !user.EmailVerified {
				reject(http.StatusForbidden, "unverified", msgUnverified)
				return
			}

			ctx := context.WithValue(r.Context(), contextUserKey, user)
			ctx = context.WithValue(ctx, contextTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext returns the user attached by RequireAuth.
func UserFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// TokenFromContext returns the raw bearer token attached by RequireAuth.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(contextTokenKey).(string)
	return token, ok && token != ""
}

// bearerToken strips a literal "Bearer " prefix. A header without the
// prefix is taken as the raw token.
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "Bearer" {
		return ""
	}
	auth = strings.TrimPrefix(auth, "Bearer ")
	return strings.TrimSpace(auth)
}
