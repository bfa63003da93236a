package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuely/apiserver/types"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestLogin_SendsCredentialsAndDecodesSession(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req types.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ada@example.com", req.Email)
		assert.Equal(t, "secret-pass", req.Password)

		_ = json.NewEncoder(w).Encode(types.AuthResponse{
			User:  types.UserProfile{ID: 7, Email: "ada@example.com", Role: "user"},
			Token: "tok",
		})
	})

	resp, err := client.Login(context.Background(), "ada@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, 7, resp.User.ID)
}

func TestErrorCarriesStatusAndServerMessage(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"session expired, please log in again"}`))
	})

	_, err := client.Me(context.Background(), "stale")
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "session expired, please log in again", apiErr.Message)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "401: session expired, please log in again", err.Error())
}

func TestErrorWithoutJSONBodyFallsBackToStatusText(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.Register(context.Background(), types.RegisterRequest{Email: "a@b.c"})
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Contains(t, err.Error(), "bad gateway")
	assert.False(t, IsUnauthorized(err))
}

func TestTransportFailureHasZeroStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Login(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.NotNil(t, apiErr.Err)
}

func TestProtectedCallsSendBearerToken(t *testing.T) {
	var calls []string
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		calls = append(calls, r.Method+" "+r.URL.RequestURI())

		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/users":
			_ = json.NewEncoder(w).Encode(types.UserListResponse{
				Items: []types.UserProfile{{ID: 1}, {ID: 2}},
				Page:  2, Limit: 5, Total: 7,
			})
		default:
			var req types.UpdateRoleRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(types.UserProfile{ID: 3, Role: req.Role})
		}
	})
	ctx := context.Background()

	list, err := client.ListUsers(ctx, "admin-token", 2, 5)
	require.NoError(t, err)
	assert.Len(t, list.Items, 2)
	assert.Equal(t, 7, list.Total)

	user, err := client.UpdateUserRole(ctx, "admin-token", 3, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)

	require.NoError(t, client.DeleteUser(ctx, "admin-token", 3))

	assert.Equal(t, []string{
		"GET /users?limit=5&page=2",
		"PATCH /users/3/role",
		"DELETE /users/3",
	}, calls)
}

func TestVerifyAndResend(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/verify-otp":
			var req types.VerifyRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "123456", req.Code)
			_ = json.NewEncoder(w).Encode(types.AuthResponse{Token: "fresh", User: types.UserProfile{EmailVerified: true}})
		case "/auth/resend-otp":
			_ = json.NewEncoder(w).Encode(types.RegisterResponse{Success: true, Email: "a@b.c"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	session, err := client.VerifyEmail(ctx, "a@b.c", "123456")
	require.NoError(t, err)
	assert.Equal(t, "fresh", session.Token)
	assert.True(t, session.User.EmailVerified)

	resent, err := client.ResendCode(ctx, "a@b.c")
	require.NoError(t, err)
	assert.True(t, resent.Success)
}

func TestMalformedSuccessBody(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := client.UpdateProfile(context.Background(), "tok", "Ada")
	require.Error(t, err)
	assert.Equal(t, http.StatusOK, StatusCode(err))
}
