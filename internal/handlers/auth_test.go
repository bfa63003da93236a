package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuely/apiserver/internal/services"
	"github.com/venuely/apiserver/types"
)

func register(t *testing.T, env *testEnv, email string) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/auth/register", "", types.RegisterRequest{
		Email: email, Name: "Ada", Password: "password1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegister_DefersSession(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})

	rec := env.do(t, http.MethodPost, "/auth/register", "", types.RegisterRequest{
		Email: "Ada@Example.com", Name: "Ada", Password: "password1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp types.RegisterResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ada@example.com", resp.Email)
	assert.NotEmpty(t, resp.Message)
	assert.NotContains(t, rec.Body.String(), "token")

	require.Len(t, env.notifier.events, 1)
	assert.Equal(t, "424242", env.notifier.events[0].Code)
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	register(t, env, "a@example.com")

	rec := env.do(t, http.MethodPost, "/auth/register", "", types.RegisterRequest{
		Email: "a@example.com", Name: "Other", Password: "password2",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email already registered", decodeError(t, rec))
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})

	rec := env.do(t, http.MethodPost, "/auth/register", "", types.RegisterRequest{Email: "a@example.com", Name: "A", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "password must be at least")

	rec = env.do(t, http.MethodPost, "/auth/register", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	user := env.users.add(t, "a@example.com", "password1", types.RoleUser, true)

	rec := env.do(t, http.MethodPost, "/auth/login", "", types.LoginRequest{Email: "a@example.com", Password: "password1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, user.ID, resp.User.ID)
	assert.True(t, resp.User.EmailVerified)
	assert.NotContains(t, rec.Body.String(), "password")

	subject, err := env.issuer.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)
	assert.Equal(t, 1, env.recorder.logins["success"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	env.users.add(t, "a@example.com", "password1", types.RoleUser, true)

	for _, req := range []types.LoginRequest{
		{Email: "a@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "password1"},
	} {
		rec := env.do(t, http.MethodPost, "/auth/login", "", req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid credentials", decodeError(t, rec))
	}
	assert.Equal(t, 2, env.recorder.logins["failure"])
}

func TestVerifyOTP_OpensSession(t *testing.T) {
	env := newTestEnv(t, AuthConfig{RequireEmailVerified: true})
	register(t, env, "a@example.com")

	rec := env.do(t, http.MethodPost, "/auth/verify-otp", "", types.VerifyRequest{Email: "a@example.com", Code: "424242"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.User.EmailVerified)

	rec = env.do(t, http.MethodGet, "/auth/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me types.UserProfile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "a@example.com", me.Email)
}

func TestVerifyOTP_WrongCodeThenLocked(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	register(t, env, "a@example.com")

	for range services.DefaultMaxAttempts {
		rec := env.do(t, http.MethodPost, "/auth/verify-otp", "", types.VerifyRequest{Email: "a@example.com", Code: "000000"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Equal(t, services.DefaultMaxAttempts, env.codes.codes["a@example.com"].Attempts)

	rec := env.do(t, http.MethodPost, "/auth/verify-otp", "", types.VerifyRequest{Email: "a@example.com", Code: "424242"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVerifyOTP_Expired(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	register(t, env, "a@example.com")
	env.now = env.now.Add(services.DefaultCodeTTL + 1)

	rec := env.do(t, http.MethodPost, "/auth/verify-otp", "", types.VerifyRequest{Email: "a@example.com", Code: "424242"})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.True(t, strings.HasPrefix(decodeError(t, rec), "verification code expired"))
}

func TestResendOTP(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	register(t, env, "a@example.com")

	rec := env.do(t, http.MethodPost, "/auth/resend-otp", "", types.ResendRequest{Email: "a@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.notifier.events, 2)

	rec = env.do(t, http.MethodPost, "/auth/verify-otp", "", types.VerifyRequest{Email: "a@example.com", Code: "424242"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/resend-otp", "", types.ResendRequest{Email: "a@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMe_RequiresToken(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})

	rec := env.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no token, authorization denied", decodeError(t, rec))
}
