package tokencache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync-backend/pkg/cache"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newCache(t *testing.T, store cache.Cache, secret string, clock *fakeClock) *TokenCache {
	t.Helper()
	tc, err := New(store, secret)
	require.NoError(t, err)
	return tc.WithClock(clock.Now)
}

func TestTokenCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	tc := newCache(t, store, "s3cret", clock)

	require.NoError(t, tc.Save(ctx, "sess-1", "A21AA-token", 10*time.Second))

	token, ok := tc.Get(ctx, "sess-1")
	require.True(t, ok)
	assert.Equal(t, "A21AA-token", token)

	clock.Advance(11 * time.Second)
	token, ok = tc.Get(ctx, "sess-1")
	assert.False(t, ok)
	assert.Empty(t, token)

	exists, err := store.Exists(ctx, cacheKey("sess-1"))
	require.NoError(t, err)
	assert.False(t, exists, "expired entry must be cleared")
}

func TestTokenCache_DecryptFailureClears(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()
	clock := &fakeClock{t: time.Now()}

	writer := newCache(t, store, "secret-a", clock)
	require.NoError(t, writer.Save(ctx, "sess-1", "token", time.Minute))

	reader := newCache(t, store, "secret-b", clock)
	_, ok := reader.Get(ctx, "sess-1")
	assert.False(t, ok)

	exists, err := store.Exists(ctx, cacheKey("sess-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTokenCache_TruncatedIVClears(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()
	clock := &fakeClock{t: time.Now()}
	tc := newCache(t, store, "secret", clock)

	require.NoError(t, tc.Save(ctx, "sess-1", "token", time.Minute))

	var e entry
	found, err := store.Get(ctx, cacheKey("sess-1"), &e)
	require.NoError(t, err)
	require.True(t, found)
	e.IV = e.IV[:12]
	require.NoError(t, store.Set(ctx, cacheKey("sess-1"), e, time.Minute))

	var ok bool
	require.NotPanics(t, func() { _, ok = tc.Get(ctx, "sess-1") })
	assert.False(t, ok)

	exists, err := store.Exists(ctx, cacheKey("sess-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTokenCache_BoundToSession(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()
	clock := &fakeClock{t: time.Now()}
	tc := newCache(t, store, "secret", clock)

	require.NoError(t, tc.Save(ctx, "sess-1", "token", time.Minute))

	// copy the entry under another session's key
	var e entry
	found, err := store.Get(ctx, cacheKey("sess-1"), &e)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, store.Set(ctx, cacheKey("sess-2"), e, time.Minute))

	_, ok := tc.Get(ctx, "sess-2")
	assert.False(t, ok)
}

func TestTokenCache_FreshIVPerSave(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()
	tc := newCache(t, store, "secret", &fakeClock{t: time.Now()})

	require.NoError(t, tc.Save(ctx, "sess-1", "token", time.Minute))
	var first entry
	_, err := store.Get(ctx, cacheKey("sess-1"), &first)
	require.NoError(t, err)

	require.NoError(t, tc.Save(ctx, "sess-1", "token", time.Minute))
	var second entry
	_, err = store.Get(ctx, cacheKey("sess-1"), &second)
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestTokenCache_Clear(t *testing.T) {
	ctx := context.Background()
	tc := newCache(t, cache.NewMemoryCache(), "secret", &fakeClock{t: time.Now()})

	require.NoError(t, tc.Save(ctx, "sess-1", "token", time.Minute))
	require.NoError(t, tc.Clear(ctx, "sess-1"))
	_, ok := tc.Get(ctx, "sess-1")
	assert.False(t, ok)
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(cache.NewMemoryCache(), "")
	assert.Error(t, err)
}
