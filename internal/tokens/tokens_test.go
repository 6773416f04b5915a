package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	*httptest.Server
	calls   atomic.Int32
	status  int
	body    map[string]any
	release chan struct{}
	forms   chan map[string]string
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		status: http.StatusOK,
		body:   map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600},
		forms:  make(chan map[string]string, 16),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		if ts.release != nil {
			<-ts.release
		}
		_ = r.ParseForm()
		ts.forms <- map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"refresh_token": r.PostForm.Get("refresh_token"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		_ = json.NewEncoder(w).Encode(ts.body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: ts.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
}

func newStore(ts *tokenServer) (*Store, *MemoryKV) {
	kv := NewMemoryKV()
	return NewStore(kv, map[models.Platform]*oauth2.Config{models.SoundCloud: ts.config()}), kv
}

func at(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

func TestToken(t *testing.T) {
	ctx := context.Background()

	t.Run("missing record requires auth", func(t *testing.T) {
		ts := newTokenServer(t)
		store, _ := newStore(ts)

		_, err := store.Token(ctx, "s", models.SoundCloud)
		require.ErrorIs(t, err, shared.ErrAuthRequired)
		assert.Zero(t, ts.calls.Load())
	})

	t.Run("fresh token is returned as is", func(t *testing.T) {
		ts := newTokenServer(t)
		store, _ := newStore(ts)
		require.NoError(t, store.Save(ctx, models.TokenRecord{
			SessionID: "s", Platform: models.SoundCloud, AccessToken: "current", ExpiresAt: at(time.Hour),
		}))

		tok, err := store.Token(ctx, "s", models.SoundCloud)
		require.NoError(t, err)
		assert.Equal(t, "current", tok)
		assert.Zero(t, ts.calls.Load())
	})

	t.Run("token without expiry never refreshes", func(t *testing.T) {
		ts := newTokenServer(t)
		store, _ := newStore(ts)
		require.NoError(t, store.Save(ctx, models.TokenRecord{SessionID: "s", Platform: models.SoundCloud, AccessToken: "forever"}))

		tok, err := store.Token(ctx, "s", models.SoundCloud)
		require.NoError(t, err)
		assert.Equal(t, "forever", tok)
	})

	t.Run("token inside skew is refreshed and persisted", func(t *testing.T) {
		ts := newTokenServer(t)
		store, _ := newStore(ts)
		require.NoError(t, store.Save(ctx, models.TokenRecord{
			SessionID: "s", Platform: models.SoundCloud, AccessToken: "old", RefreshToken: "r1", ExpiresAt: at(30 * time.Second),
		}))

		tok, err := store.Token(ctx, "s", models.SoundCloud)
		require.NoError(t, err)
		assert.Equal(t, "fresh", tok)

		form := <-ts.forms
		assert.Equal(t, "refresh_token", form["grant_type"])
		assert.Equal(t, "r1", form["refresh_token"])
		assert.Equal(t, "client", form["client_id"])
		assert.Equal(t, "secret", form["client_secret"])

		rec, err := store.Load(ctx, "s", models.SoundCloud)
		require.NoError(t, err)
		assert.Equal(t, "fresh", rec.AccessToken)
		assert.Equal(t, "r1", rec.RefreshToken, "refresh token is retained when not rotated")
		require.NotNil(t, rec.ExpiresAt)
		assert.True(t, rec.ExpiresAt.After(time.Now().Add(50*time.Minute)))
	})

	t.Run("rotated refresh token replaces the old one", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.body["refresh_token"] = "r2"
		store, _ := newStore(ts)
		require.NoError(t, store.Save(ctx, models.TokenRecord{
			SessionID: "s", Platform: models.SoundCloud, AccessToken: "old", RefreshToken: "r1", ExpiresAt: at(-time.Minute),
		}))

		_, err := store.Token(ctx, "s", models.SoundCloud)
		require.NoError(t, err)

		rec, err := store.Load(ctx, "s", models.SoundCloud)
		require.NoError(t, err)
		assert.Equal(t, "r2", rec.RefreshToken)
	})

	t.Run("stale token without refresh token requires auth", func(t *testing.T) {
		ts := newTokenServer(t)
		store, _ := newStore(ts)
		require.NoError(t, store.Save(ctx, models.TokenRecord{
			SessionID: "s", Platform: models.SoundCloud, AccessToken: "old", ExpiresAt: at(-time.Minute),
		}))

		_, err := store.Token(ctx, "s", models.SoundCloud)
		require.ErrorIs(t, err, shared.ErrAuthRequired)
		assert.ErrorIs(t, err, shared.ErrNoRefreshToken)
		assert.Zero(t, ts.calls.Load())
	})

	t.Run("rejected refresh requires auth", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.status = http.StatusBadRequest
		ts.body = map[string]any{"error": "invalid_grant"}
		store, _ := newStore(ts)
		require.NoError(t, store.Save(ctx, models.TokenRecord{
			SessionID: "s", Platform: models.SoundCloud, AccessToken: "old", RefreshToken: "r1", ExpiresAt: at(-time.Minute),
		}))

		_, err := store.Token(ctx, "s", models.SoundCloud)
		require.ErrorIs(t, err, shared.ErrAuthRequired)
		assert.ErrorIs(t, err, shared.ErrRefreshFailed)
	})
}

func TestConcurrentRefreshIsCoalesced(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	ts.release = make(chan struct{})
	store, _ := newStore(ts)
	require.NoError(t, store.Save(ctx, models.TokenRecord{
		SessionID: "s", Platform: models.SoundCloud, AccessToken: "old", RefreshToken: "r1", ExpiresAt: at(-time.Minute),
	}))

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := store.Token(ctx, "s", models.SoundCloud)
			assert.NoError(t, err)
			results[i] = tok
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(ts.release)
	wg.Wait()

	assert.Equal(t, int32(1), ts.calls.Load())
	for _, tok := range results {
		assert.Equal(t, "fresh", tok)
	}
}

func TestRefreshAfterRejection(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	store, _ := newStore(ts)
	require.NoError(t, store.Save(ctx, models.TokenRecord{
		SessionID: "s", Platform: models.SoundCloud, AccessToken: "revoked", RefreshToken: "r1", ExpiresAt: at(time.Hour),
	}))

	tok, err := store.Refresh(ctx, "s", models.SoundCloud, "revoked")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	t.Run("already replaced token is not refreshed again", func(t *testing.T) {
		tok, err := store.Refresh(ctx, "s", models.SoundCloud, "revoked")
		require.NoError(t, err)
		assert.Equal(t, "fresh", tok)
		assert.Equal(t, int32(1), ts.calls.Load())
	})
}

func TestSaveValidation(t *testing.T) {
	store := NewStore(NewMemoryKV(), nil)
	ctx := context.Background()

	assert.ErrorIs(t, store.Save(ctx, models.TokenRecord{Platform: models.Spotify, AccessToken: "a"}), shared.ErrInvalidInput)
	assert.ErrorIs(t, store.Save(ctx, models.TokenRecord{SessionID: "s", Platform: models.Spotify}), shared.ErrInvalidInput)
	assert.ErrorIs(t, store.SaveToken(ctx, "s", models.Spotify, nil), shared.ErrInvalidInput)
}

func TestSaveTokenAndStatus(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store := NewStore(kv, map[models.Platform]*oauth2.Config{
		models.Spotify:    {},
		models.SoundCloud: {},
	})

	require.NoError(t, store.SaveToken(ctx, "s", models.Spotify, &oauth2.Token{
		AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour),
	}))

	status, err := store.Status(ctx, "s")
	require.NoError(t, err)
	assert.True(t, status[models.Spotify])
	assert.False(t, status[models.SoundCloud])

	require.NoError(t, store.Delete(ctx, "s", models.Spotify))
	status, err = store.Status(ctx, "s")
	require.NoError(t, err)
	assert.False(t, status[models.Spotify])
}

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Get(ctx, "missing")
	require.ErrorIs(t, err, shared.ErrRecordNotFound)

	value := []byte("v1")
	require.NoError(t, kv.Put(ctx, "k", value))
	value[0] = 'x'

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got, "stored values are copied")

	require.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, shared.ErrRecordNotFound)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessions(NewMemoryKV())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	sessions.now = func() time.Time { return now }

	sess, err := sessions.Touch(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, start, sess.CreatedAt)

	now = start.Add(time.Hour)
	sess, err = sessions.Touch(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, sess.CreatedAt.Equal(start))
	assert.True(t, sess.LastActivity.Equal(now))

	_, err = sessions.Touch(ctx, "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
