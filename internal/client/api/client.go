// Package api is a typed client for the venuely REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/venuely/apiserver/types"
)

const defaultTimeout = 15 * time.Second

// Error is returned for every failed call. StatusCode is zero when the
// request never produced a response.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether the server rejected the credentials or
// token.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, email, password string) (types.AuthResponse, error) {
	var out types.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", types.LoginRequest{Email: email, Password: password}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error) {
	var out types.RegisterResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &out)
	return out, err
}

// VerifyEmail confirms a one-time passcode and returns the new session.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (types.AuthResponse, error) {
	var out types.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/verify-otp", "", types.VerifyRequest{Email: email, Code: code}, &out)
	return out, err
}

func (c *Client) ResendCode(ctx context.Context, email string) (types.RegisterResponse, error) {
	var out types.RegisterResponse
	err := c.do(ctx, http.MethodPost, "/auth/resend-otp", "", types.ResendRequest{Email: email}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context, token string) (types.UserProfile, error) {
	var out types.UserProfile
	err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &out)
	return out, err
}

func (c *Client) UpdateProfile(ctx context.Context, token, name string) (types.UserProfile, error) {
	var out types.UserProfile
	err := c.do(ctx, http.MethodPut, "/users/me", token, types.UpdateProfileRequest{Name: name}, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context, token string, page, limit int) (types.UserListResponse, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out types.UserListResponse
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

func (c *Client) UpdateUserRole(ctx context.Context, token string, userID int, role string) (types.UserProfile, error) {
	var out types.UserProfile
	path := "/users/" + strconv.Itoa(userID) + "/role"
	err := c.do(ctx, http.MethodPatch, path, token, types.UpdateRoleRequest{Role: role}, &out)
	return out, err
}

func (c *Client) DeleteUser(ctx context.Context, token string, userID int) error {
	return c.do(ctx, http.MethodDelete, "/users/"+strconv.Itoa(userID), token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func errorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			return payload.Error
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected status"
}
