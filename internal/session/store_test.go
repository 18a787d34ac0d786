package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds every Store implementation with the given TTL.
func storeFactories(t *testing.T) map[string]func(ttl time.Duration) Store {
	return map[string]func(ttl time.Duration) Store{
		"memory": func(ttl time.Duration) Store {
			return NewManager(ttl)
		},
		"sqlite": func(ttl time.Duration) Store {
			s, err := OpenSQLite(context.Background(), ":memory:", ttl)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(time.Hour)
			defer s.Close()

			_, ok, err := s.Load(ctx, "missing", "/posts")
			require.NoError(t, err)
			assert.False(t, ok, "unknown session should not load")

			require.NoError(t, s.Save(ctx, "s1", "/posts/1/view", []byte(`{"edit":{"target":"5"}}`)))
			require.NoError(t, s.Save(ctx, "s1", "/posts?size=20", []byte(`{}`)))

			got, ok, err := s.Load(ctx, "s1", "/posts/1/view")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"edit":{"target":"5"}}`, string(got))

			_, ok, err = s.Load(ctx, "s1", "/posts/2/view")
			require.NoError(t, err)
			assert.False(t, ok, "page never saved should not load")

			// Overwrite keeps a single row per page.
			require.NoError(t, s.Save(ctx, "s1", "/posts/1/view", []byte(`{}`)))
			got, _, _ = s.Load(ctx, "s1", "/posts/1/view")
			assert.Equal(t, `{}`, string(got))

			require.NoError(t, s.Delete(ctx, "s1"))
			_, ok, err = s.Load(ctx, "s1", "/posts?size=20")
			require.NoError(t, err)
			assert.False(t, ok, "deleted session should not load")
		})
	}
}

func TestStoreCleanupExpired(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(100 * time.Millisecond)
			defer s.Close()

			require.NoError(t, s.Save(ctx, "fresh", "/posts", []byte(`{}`)))
			require.NoError(t, s.Save(ctx, "stale1", "/posts", []byte(`{}`)))
			require.NoError(t, s.Save(ctx, "stale2", "/posts", []byte(`{}`)))

			time.Sleep(60 * time.Millisecond)
			_, _, err := s.Load(ctx, "fresh", "/posts")
			require.NoError(t, err)
			time.Sleep(60 * time.Millisecond)

			n, err := s.CleanupExpired(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, ok, _ := s.Load(ctx, "fresh", "/posts")
			assert.True(t, ok, "fresh session should survive cleanup")
			_, ok, _ = s.Load(ctx, "stale1", "/posts")
			assert.False(t, ok)
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions", "blogpage.db")

	s, err := OpenSQLite(ctx, path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "s1", "/posts/1/view", []byte(`{"reply":{"target":"3"}}`)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, time.Hour)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Load(ctx, "s1", "/posts/1/view")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"reply":{"target":"3"}}`, string(got))
}

func TestSQLiteExpiryOnLoad(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:", time.Minute)
	require.NoError(t, err)
	defer s.Close()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Save(ctx, "s1", "/posts", []byte(`{}`)))

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok, err := s.Load(ctx, "s1", "/posts")
	require.NoError(t, err)
	assert.False(t, ok, "expired session should not load")

	n, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "expired session was already removed on load")
}
