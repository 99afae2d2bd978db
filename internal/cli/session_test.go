package cli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tototycoon/internal/cache"
	"tototycoon/internal/config"
	"tototycoon/internal/game"
	"tototycoon/internal/testutil"
)

func TestOpenSessionGuestOffline(t *testing.T) {
	dir := t.TempDir()
	cfg := config.ClientConfig{
		APIBaseURL:   "http://127.0.0.1:1",
		CacheBackend: "file",
		CacheDir:     dir,
		SaveDebounce: time.Hour,
		CallTimeout:  time.Second,
	}
	s, err := OpenSession(context.Background(), cfg, SessionOptions{
		LaunchURL: "https://t.me/TotoTycoonBot/app?startapp=77",
		Logger:    testutil.NopLogger(),
	})
	require.NoError(t, err)

	rec, ready := s.State()
	require.True(t, ready)
	assert.True(t, rec.IsGuest())
	assert.Equal(t, "ref_77", rec.Referral())

	_, err = s.ToggleSubscription(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))

	fb, err := cache.NewFileBackend(dir)
	require.NoError(t, err)
	cached, ok := cache.New(fb, testutil.NopLogger()).Get(context.Background(), game.GuestID)
	require.True(t, ok)
	assert.True(t, cached.Subscribed)
}

func TestOpenSessionRegistersNewPlayer(t *testing.T) {
	var (
		gets      atomic.Int32
		registers atomic.Int32
	)
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		if gets.Load() == 1 {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"2","username":"bob","coins":0,"referred_by":"ref_1"}]`)
	}))
	defer rest.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		registers.Add(1)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"created":true,"credited":true,"referrer_id":"1","outcome":"credited"}}`)
	}))
	defer api.Close()

	cfg := config.ClientConfig{
		APIBaseURL:      api.URL,
		SupabaseURL:     rest.URL,
		SupabaseAnonKey: "anon",
		CacheBackend:    "none",
		SaveDebounce:    time.Hour,
		CallTimeout:     time.Second,
	}
	s, err := OpenSession(context.Background(), cfg, SessionOptions{
		InitData: `user=%7B%22id%22%3A2%2C%22username%22%3A%22bob%22%7D&start_param=ref_1`,
		Logger:   testutil.NopLogger(),
	})
	require.NoError(t, err)
	defer s.Close(context.Background())

	rec, _ := s.State()
	assert.Equal(t, "2", rec.ID)
	assert.Equal(t, "ref_1", rec.Referral())
	assert.Equal(t, int32(1), registers.Load())
	assert.Equal(t, int32(2), gets.Load())
}

func TestUnreadableInitDataFallsBackToGuest(t *testing.T) {
	p := hostProvider("user=%7Bnot-json", testutil.NopLogger())
	_, ok := p.Host()
	assert.False(t, ok)
}
