// Package session keeps the admin console's login record and decides, on
// start, whether the operator is still signed in.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/internal/client/kv"
)

// Key is the store key holding the admin record.
const Key = "admin_auth"

// TTL is how long a saved record stays valid, independent of the token's
// own expiry.
const TTL = 24 * time.Hour

// State is the guard's view of the session.
type State int

const (
	Loading State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Data is what a successful login hands to Save.
type Data struct {
	Token string
}

type record struct {
	Authenticated bool   `json:"authenticated"`
	Token         string `json:"token"`
	Expiry        int64  `json:"expiry"`
	LoginTime     string `json:"loginTime"`
}

func (r record) wellFormed() bool {
	if !r.Authenticated || r.Expiry <= 0 || strings.TrimSpace(r.Token) == "" {
		return false
	}
	_, err := time.Parse(time.RFC3339, r.LoginTime)
	return err == nil
}

// Guard owns the admin record in a kv.Store.
type Guard struct {
	store kv.Store
	now   func() time.Time

	mu        sync.Mutex
	state     State
	token     string
	expiresAt time.Time
	startOnce sync.Once
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New returns a guard in the Loading state. Call Start to leave it.
func New(store kv.Store, opts ...Option) *Guard {
	g := &Guard{store: store, now: time.Now, state: Loading}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start performs the initial Load. Later calls return the current state
// without reading the store again.
func (g *Guard) Start(ctx context.Context) State {
	g.startOnce.Do(func() {
		g.Load(ctx)
	})
	return g.State()
}

// Load reads the record. Missing, unparsable, partial or expired records
// are purged and reported as Unauthenticated; errors are never surfaced.
func (g *Guard) Load(ctx context.Context) State {
	rec, ok := g.read(ctx)
	if !ok || g.now().UnixMilli() >= rec.Expiry {
		g.purge(ctx)
		g.set(Unauthenticated, "", time.Time{})
		return Unauthenticated
	}
	g.set(Authenticated, rec.Token, time.UnixMilli(rec.Expiry))
	return Authenticated
}

// Save writes a record valid for TTL from now.
func (g *Guard) Save(ctx context.Context, data Data) error {
	if strings.TrimSpace(data.Token) == "" {
		return errors.New("session token is required")
	}

	now := g.now()
	expiresAt := now.Add(TTL)
	raw, err := json.Marshal(record{
		Authenticated: true,
		Token:         data.Token,
		Expiry:        expiresAt.UnixMilli(),
		LoginTime:     now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, Key, raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	g.set(Authenticated, data.Token, expiresAt)
	return nil
}

// Clear removes the record. Clearing an absent record is not an error.
func (g *Guard) Clear(ctx context.Context) error {
	if err := g.store.Delete(ctx, Key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	g.set(Unauthenticated, "", time.Time{})
	return nil
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Token returns the stored bearer token while Authenticated.
func (g *Guard) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

func (g *Guard) ExpiresAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expiresAt
}

func (g *Guard) read(ctx context.Context) (record, bool) {
	raw, err := g.store.Get(ctx, Key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("session store read failed")
		}
		return record{}, false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, false
	}
	return rec, rec.wellFormed()
}

func (g *Guard) purge(ctx context.Context) {
	if err := g.store.Delete(ctx, Key); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("session purge failed")
	}
}

func (g *Guard) set(state State, token string, expiresAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = state
	g.token = token
	g.expiresAt = expiresAt
}
