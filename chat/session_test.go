// ABOUTME: Tests for the chat session layer.
// ABOUTME: Uses httptest mock servers and a fake clock to drive the session.

package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	o3chat "github.com/EetuSeppa/O3-chat-client"
	"github.com/EetuSeppa/O3-chat-client/autofetch"
	"github.com/EetuSeppa/O3-chat-client/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHandler dispatches requests to registered handlers by method+path
// and records the Authorization header of each request.
type mockHandler struct {
	handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	auths []string
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.auths = append(m.auths, r.Header.Get("Authorization"))
	m.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	if h, ok := m.handlers[key]; ok {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func newMockServer(t *testing.T, handlers map[string]http.HandlerFunc) (*httptest.Server, *mockHandler) {
	t.Helper()
	h := &mockHandler{handlers: handlers}
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return server, h
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func mustSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := NewSession(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestLoginThenPostUsesNickAndChannel(t *testing.T) {
	t.Parallel()

	var posted map[string]string
	server, _ := newMockServer(t, map[string]http.HandlerFunc{
		"POST /changeChannel": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, map[string]string{"channelName": "golang", "description": "d", "createdBy": "rob"})
		},
		"POST /chat": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&posted)
		},
	})

	s := mustSession(t, Config{Server: server.URL, Version: 5})
	ctx := context.Background()

	_, err := s.PostMessage(ctx, "too early")
	require.ErrorIs(t, err, o3chat.ErrNotLoggedIn)

	require.NoError(t, s.Login("alice", "pw"))
	s.SetNick("ali")
	s.SetNick("  ")
	_, err = s.ChangeChannel(ctx, "golang")
	require.NoError(t, err)

	_, err = s.PostMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ali", posted["user"])
	assert.Equal(t, "golang", posted["channelName"])
	assert.Equal(t, "hello", posted["message"])

	info := s.Info()
	assert.Equal(t, Info{
		Server:   server.URL,
		Version:  5,
		Username: "alice",
		Nick:     "ali",
		Channel:  "golang",
		LoggedIn: true,
	}, info)
}

func TestChangeServerForgetsUserAndState(t *testing.T) {
	t.Parallel()

	server, _ := newMockServer(t, map[string]http.HandlerFunc{
		"GET /chat": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, []map[string]string{{"user": "bob", "message": "hi", "sent": "2024-03-01T12:00:00.000Z"}})
		},
	})

	s := mustSession(t, Config{Server: server.URL, Version: 3})
	require.NoError(t, s.Login("alice", "pw"))
	res, err := s.FetchMessages(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, 1, s.Info().Messages)

	require.NoError(t, s.ChangeServer("https://elsewhere.example:8001/"))
	info := s.Info()
	assert.False(t, info.LoggedIn)
	assert.Empty(t, info.Username)
	assert.Equal(t, "https://elsewhere.example:8001/", info.Server)
	assert.Zero(t, info.Messages)

	require.ErrorIs(t, s.ChangeServer(" "), o3chat.ErrNoServer)
}

func TestRegisterAdoptsCredentials(t *testing.T) {
	t.Parallel()

	server, h := newMockServer(t, map[string]http.HandlerFunc{
		"POST /registration": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		"GET /chat": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})

	s := mustSession(t, Config{Server: server.URL, Version: 4})
	ctx := context.Background()

	_, err := s.Register(ctx, o3chat.Registration{Username: "dave", Password: "pw"})
	require.ErrorIs(t, err, o3chat.ErrIncompleteRegistration)
	assert.False(t, s.LoggedIn())

	status, err := s.Register(ctx, o3chat.Registration{Username: "dave", Password: "pw", Email: "d@x.org"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, s.LoggedIn())
	assert.Equal(t, "d@x.org", s.Info().Email)

	_, err = s.FetchMessages(ctx)
	require.NoError(t, err)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.auths, 2)
	assert.Empty(t, h.auths[0])
	assert.NotEmpty(t, h.auths[1])
}

func TestUpdateProfileAdoptsChanges(t *testing.T) {
	t.Parallel()

	var got map[string]string
	server, _ := newMockServer(t, map[string]http.HandlerFunc{
		"PUT /updateUserInfo": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusNoContent)
		},
	})

	s := mustSession(t, Config{Server: server.URL, Version: 5})
	require.NoError(t, s.Login("alice", "pw"))

	_, err := s.UpdateProfile(context.Background(), o3chat.ProfileUpdate{Username: "alicia", Email: "a@x.org"})
	require.NoError(t, err)
	assert.Equal(t, "alice", got["oldUsername"])

	info := s.Info()
	assert.Equal(t, "alicia", info.Username)
	assert.Equal(t, "alicia", info.Nick)
	assert.Equal(t, "a@x.org", info.Email)
	assert.True(t, info.LoggedIn)
}

func TestUpdateProfileFailureKeepsCredentials(t *testing.T) {
	t.Parallel()

	server, _ := newMockServer(t, map[string]http.HandlerFunc{
		"PUT /updateUserInfo": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "username taken", http.StatusConflict)
		},
	})

	s := mustSession(t, Config{Server: server.URL, Version: 5})
	require.NoError(t, s.Login("alice", "pw"))

	status, err := s.UpdateProfile(context.Background(), o3chat.ProfileUpdate{Username: "bob"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "alice", s.Info().Username)
	assert.Equal(t, "username taken", s.Notification())
}

func TestAutoFetchLifecycle(t *testing.T) {
	t.Parallel()

	server, _ := newMockServer(t, map[string]http.HandlerFunc{
		"GET /chat": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})

	fc := clock.Fake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	ticks := make(chan autofetch.Tick, 8)
	s := mustSession(t, Config{
		Server:            server.URL,
		Version:           5,
		Clock:             fc,
		AutoFetchInterval: time.Second,
		OnTick:            func(tick autofetch.Tick) { ticks <- tick },
	})
	ctx := context.Background()

	on, err := s.ToggleAutoFetch(ctx)
	require.ErrorIs(t, err, o3chat.ErrNotLoggedIn)
	assert.False(t, on)

	require.NoError(t, s.Login("alice", "pw"))
	on, err = s.ToggleAutoFetch(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, s.Info().AutoFetch)

	fc.WaitForTickers(1)
	fc.Advance(time.Second)
	select {
	case tick := <-ticks:
		require.NoError(t, tick.Err)
		assert.Equal(t, http.StatusNoContent, tick.Result.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no auto-fetch tick")
	}

	require.NoError(t, s.Logout())
	assert.False(t, s.AutoFetching())
	assert.Zero(t, fc.ActiveTickers())
}
