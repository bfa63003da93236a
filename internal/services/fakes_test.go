package services

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/venuely/apiserver/internal/storage"
	"github.com/venuely/apiserver/internal/store"
	"github.com/venuely/apiserver/types"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]types.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{nextID: 1, byID: map[int]types.User{}}
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.PasswordHash = ""
	return user, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.User
	for id := 1; id < f.nextID; id++ {
		if user, ok := f.byID[id]; ok {
			out = append(out, user)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

func (f *fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = f.nextID
	f.nextID++
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) update(id int, fn func(*types.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&user)
	f.byID[id] = user
	return nil
}

func (f *fakeUsers) UpdateName(_ context.Context, id int, name string) error {
	return f.update(id, func(u *types.User) { u.Name = name })
}

func (f *fakeUsers) UpdateRole(_ context.Context, id int, role string) error {
	return f.update(id, func(u *types.User) { u.Role = role })
}

func (f *fakeUsers) SetAvatarKey(_ context.Context, id int, key string) error {
	return f.update(id, func(u *types.User) { u.AvatarKey = key })
}

func (f *fakeUsers) MarkEmailVerified(ctx context.Context, email string) error {
	user, err := f.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return f.update(user.ID, func(u *types.User) { u.EmailVerified = true })
}

func (f *fakeUsers) Delete(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeCodes struct {
	mu    sync.Mutex
	codes map[string]types.VerificationCode
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{codes: map[string]types.VerificationCode{}}
}

func (f *fakeCodes) Upsert(_ context.Context, code types.VerificationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	code.Attempts = 0
	f.codes[code.Email] = code
	return nil
}

func (f *fakeCodes) Get(_ context.Context, email string) (types.VerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.codes[email]
	if !ok {
		return types.VerificationCode{}, store.ErrNotFound
	}
	return code, nil
}

func (f *fakeCodes) ClaimAttempt(_ context.Context, email string, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.codes[email]
	if !ok {
		return 0, store.ErrNotFound
	}
	if code.Attempts >= limit {
		return 0, store.ErrAttemptsExhausted
	}
	code.Attempts++
	f.codes[email] = code
	return code.Attempts, nil
}

func (f *fakeCodes) Delete(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.codes, email)
	return nil
}

type recordingNotifier struct {
	events []types.VerificationEvent
}

func (n *recordingNotifier) NotifyVerification(_ context.Context, event types.VerificationEvent) error {
	n.events = append(n.events, event)
	return nil
}

type memoryObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
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
	delete(m.types, key)
	return nil
}
