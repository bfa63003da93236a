package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuely/apiserver/internal/client/kv"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newGuard(t *testing.T) (*Guard, *kv.Memory, *clock) {
	t.Helper()
	store := kv.NewMemory()
	c := &clock{now: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	return New(store, WithClock(c.Now)), store, c
}

func TestGuard_StartsLoadingAndLeavesOnce(t *testing.T) {
	g, store, _ := newGuard(t)
	assert.Equal(t, Loading, g.State())

	assert.Equal(t, Unauthenticated, g.Start(context.Background()))

	// A record written behind the guard's back is not picked up by Start.
	require.NoError(t, store.Set(context.Background(), Key, []byte(`{}`)))
	assert.Equal(t, Unauthenticated, g.Start(context.Background()))
}

func TestGuard_SaveThenLoad(t *testing.T) {
	g, store, c := newGuard(t)
	ctx := context.Background()

	require.NoError(t, g.Save(ctx, Data{Token: "abc"}))
	assert.Equal(t, Authenticated, g.State())

	raw, err := store.Get(ctx, Key)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, true, rec["authenticated"])
	assert.Equal(t, "abc", rec["token"])
	assert.EqualValues(t, c.now.Add(24*time.Hour).UnixMilli(), rec["expiry"])
	assert.Equal(t, "2026-03-01T09:30:00Z", rec["loginTime"])

	fresh := New(store, WithClock(c.Now))
	assert.Equal(t, Authenticated, fresh.Start(ctx))
	assert.Equal(t, "abc", fresh.Token())
}

func TestGuard_ExpiredRecordIsPurged(t *testing.T) {
	g, store, c := newGuard(t)
	ctx := context.Background()
	require.NoError(t, g.Save(ctx, Data{Token: "abc"}))

	c.now = c.now.Add(24 * time.Hour)
	assert.Equal(t, Unauthenticated, g.Load(ctx))
	assert.Empty(t, g.Token())

	_, err := store.Get(ctx, Key)
	assert.ErrorIs(t, err, kv.ErrNotFound)
	assert.Equal(t, Unauthenticated, g.Load(ctx))
}

func TestGuard_MalformedRecordsBehaveAsAbsent(t *testing.T) {
	cases := map[string]string{
		"not json":          `not-json{`,
		"missing expiry":    `{"authenticated":true,"token":"abc","loginTime":"2026-03-01T09:30:00Z"}`,
		"not authenticated": `{"authenticated":false,"token":"abc","expiry":9999999999999,"loginTime":"2026-03-01T09:30:00Z"}`,
		"missing token":     `{"authenticated":true,"expiry":9999999999999,"loginTime":"2026-03-01T09:30:00Z"}`,
		"bad login time":    `{"authenticated":true,"token":"abc","expiry":9999999999999,"loginTime":"yesterday"}`,
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			g, store, _ := newGuard(t)
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, Key, []byte(blob)))

			assert.Equal(t, Unauthenticated, g.Start(ctx))
			_, err := store.Get(ctx, Key)
			assert.ErrorIs(t, err, kv.ErrNotFound)
		})
	}
}

func TestGuard_ClearIsIdempotent(t *testing.T) {
	g, store, _ := newGuard(t)
	ctx := context.Background()
	require.NoError(t, g.Save(ctx, Data{Token: "abc"}))

	require.NoError(t, g.Clear(ctx))
	require.NoError(t, g.Clear(ctx))
	assert.Equal(t, Unauthenticated, g.State())

	_, err := store.Get(ctx, Key)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestGuard_SaveRequiresToken(t *testing.T) {
	g, _, _ := newGuard(t)
	assert.Error(t, g.Save(context.Background(), Data{}))
	assert.Equal(t, Loading, g.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "State(9)", State(9).String())
}
