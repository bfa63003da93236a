package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/venuely/apiserver/internal/services"
	"github.com/venuely/apiserver/internal/storage"
	"github.com/venuely/apiserver/internal/store"
	"github.com/venuely/apiserver/internal/tokens"
	"github.com/venuely/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type memoryUsers struct {
	mu      sync.Mutex
	nextID  int
	byID    map[int]types.User
	failGet error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{nextID: 1, byID: map[int]types.User{}}
}

func (m *memoryUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return types.User{}, m.failGet
	}
	user, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.PasswordHash = ""
	return user, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []types.User
	for id := 1; id < m.nextID; id++ {
		if user, ok := m.byID[id]; ok {
			all = append(all, user)
		}
	}
	if offset >= len(all) {
		return nil, len(all), nil
	}
	return all[offset:min(offset+limit, len(all))], len(all), nil
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = m.nextID
	m.nextID++
	m.byID[user.ID] = user
	return user, nil
}

func (m *memoryUsers) mutate(id int, fn func(*types.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&user)
	m.byID[id] = user
	return nil
}

func (m *memoryUsers) UpdateName(_ context.Context, id int, name string) error {
	return m.mutate(id, func(u *types.User) { u.Name = name })
}

func (m *memoryUsers) UpdateRole(_ context.Context, id int, role string) error {
	return m.mutate(id, func(u *types.User) { u.Role = role })
}

func (m *memoryUsers) SetAvatarKey(_ context.Context, id int, key string) error {
	return m.mutate(id, func(u *types.User) { u.AvatarKey = key })
}

func (m *memoryUsers) MarkEmailVerified(ctx context.Context, email string) error {
	user, err := m.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return m.mutate(user.ID, func(u *types.User) { u.EmailVerified = true })
}

func (m *memoryUsers) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memoryUsers) add(t *testing.T, email, password, role string, verified bool) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := m.Create(context.Background(), types.User{
		Email:         email,
		Name:          "Test User",
		Role:          role,
		PasswordHash:  string(hash),
		EmailVerified: verified,
	})
	require.NoError(t, err)
	return user
}

type memoryCodes struct {
	codes map[string]types.VerificationCode
}

func (m *memoryCodes) Upsert(_ context.Context, code types.VerificationCode) error {
	code.Attempts = 0
	m.codes[code.Email] = code
	return nil
}

func (m *memoryCodes) Get(_ context.Context, email string) (types.VerificationCode, error) {
	code, ok := m.codes[email]
	if !ok {
		return types.VerificationCode{}, store.ErrNotFound
	}
	return code, nil
}

func (m *memoryCodes) ClaimAttempt(_ context.Context, email string, limit int) (int, error) {
	code, ok := m.codes[email]
	if !ok {
		return 0, store.ErrNotFound
	}
	if code.Attempts >= limit {
		return 0, store.ErrAttemptsExhausted
	}
	code.Attempts++
	m.codes[email] = code
	return code.Attempts, nil
}

func (m *memoryCodes) Delete(_ context.Context, email string) error {
	delete(m.codes, email)
	return nil
}

type captureNotifier struct {
	events []types.VerificationEvent
}

func (c *captureNotifier) NotifyVerification(_ context.Context, event types.VerificationEvent) error {
	c.events = append(c.events, event)
	return nil
}

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

type countingRecorder struct {
	mu         sync.Mutex
	rejections map[string]int
	logins     map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{rejections: map[string]int{}, logins: map[string]int{}}
}

func (c *countingRecorder) RecordAuthRejection(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejections[reason]++
}

func (c *countingRecorder) RecordLogin(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins[outcome]++
}

func (c *countingRecorder) RecordVerification(string) {}

// testEnv wires the real services over in-memory repositories.
type testEnv struct {
	users    *memoryUsers
	codes    *memoryCodes
	notifier *captureNotifier
	objects  *memoryObjects
	recorder *countingRecorder
	issuer   *tokens.Issuer
	now      time.Time
	router   http.Handler
}

func newTestEnv(t *testing.T, cfg AuthConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    newMemoryUsers(),
		codes:    &memoryCodes{codes: map[string]types.VerificationCode{}},
		notifier: &captureNotifier{},
		objects:  &memoryObjects{objects: map[string][]byte{}},
		recorder: newCountingRecorder(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	env.issuer = tokens.NewIssuer(testSecret, tokens.DefaultTTL, tokens.WithClock(clock))

	userService := services.NewUserService(env.users).WithHashCost(bcrypt.MinCost)
	verification := services.NewVerificationService(env.codes, env.users, env.notifier,
		services.WithVerificationClock(clock),
		services.WithCodeGenerator(func() (string, error) { return "424242", nil }),
	)
	avatars := services.NewAvatarService(env.users, env.objects)

	authMiddleware := RequireAuth(env.issuer, env.users, cfg, env.recorder)
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(userService, verification, env.issuer, env.recorder), authMiddleware, nil)
	})
	r.Route("/users", func(r chi.Router) {
		UserRouter(r, NewUserHandler(userService, avatars), authMiddleware)
	})
	env.router = r
	return env
}

func (e *testEnv) token(t *testing.T, userID int) string {
	t.Helper()
	token, err := e.issuer.Issue(userID)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

var errDatabaseDown = errors.New("database down")
