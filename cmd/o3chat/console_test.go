package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	o3chat "github.com/EetuSeppa/O3-chat-client"
	"github.com/EetuSeppa/O3-chat-client/chat"
	"github.com/EetuSeppa/O3-chat-client/o3config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatServer struct {
	mu       sync.Mutex
	posted   []map[string]string
	requests atomic.Int32
	fetches  atomic.Int32
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	switch r.Method + " " + r.URL.Path {
	case "GET /chat":
		if s.fetches.Add(1) > 1 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"user": "bob", "message": "hi alice", "sent": "2024-03-01T12:00:00.000Z"},
		})
	case "POST /chat":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.posted = append(s.posted, body)
		s.mu.Unlock()
	case "POST /changeChannel":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"channelName": "golang", "description": "Go talk"})
	case "POST /registration":
		http.Error(w, "username already exists", http.StatusForbidden)
	default:
		http.NotFound(w, r)
	}
}

func newTestConsole(t *testing.T, version o3chat.ProtocolVersion, script string) (*console, *chatServer, *bytes.Buffer) {
	t.Helper()
	srv := &chatServer{}
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)

	session, err := chat.NewSession(chat.Config{Server: server.URL, Version: version})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	var out bytes.Buffer
	con := newConsole(strings.NewReader(script), &out)
	con.session = session
	return con, srv, &out
}

func startConsole(t *testing.T, version o3chat.ProtocolVersion, script string) (*chat.Session, *chatServer, string) {
	t.Helper()
	con, srv, out := newTestConsole(t, version, script)
	require.NoError(t, con.run(context.Background()))
	return con.session, srv, out.String()
}

func TestConsoleLoginPostAndGet(t *testing.T) {
	t.Parallel()

	script := "/login\nalice\npw\n/nick ali\nhello there\n/get\n/exit\n"
	session, srv, out := startConsole(t, 3, script)

	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "hi alice")
	assert.Contains(t, out, "Nick is now ali")
	assert.Contains(t, out, "No new messages from server.")
	assert.True(t, strings.HasSuffix(out, "Bye!\n"))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.posted, 1)
	assert.Equal(t, "hello there", srv.posted[0]["message"])
	assert.Equal(t, "ali", srv.posted[0]["user"])
	assert.Equal(t, 1, session.Info().Messages)
}

func TestConsoleRequiresLoginBeforePosting(t *testing.T) {
	t.Parallel()

	_, srv, out := startConsole(t, 3, "hello\n/auto\n")

	assert.Contains(t, out, "Must /register or /login to the server first.")
	assert.Contains(t, out, "Login first to fetch messages.")
	assert.Contains(t, out, "Bye!")
	assert.Zero(t, srv.requests.Load())
}

func TestConsoleServerChangeAsksForConfirmation(t *testing.T) {
	t.Parallel()

	script := "/server\nhttps://declined.example:8001/\nn\n/server https://accepted.example:8001/\n\n/exit\n"
	session, _, out := startConsole(t, 3, script)

	assert.Contains(t, out, "Server not changed.")
	assert.Contains(t, out, "Remember to /register and/or /login to the new server!")
	assert.Equal(t, "https://accepted.example:8001/", session.Info().Server)
}

func TestConsoleReportsRegistrationFailure(t *testing.T) {
	t.Parallel()

	session, _, out := startConsole(t, 3, "/register\ndave\npw\nd@x.org\n/exit\n")

	assert.Contains(t, out, "Failed to register!")
	assert.Contains(t, out, "Error from server: 403 username already exists")
	assert.True(t, session.LoggedIn())
}

func TestConsoleRejectsStructuredCommandsOnV2(t *testing.T) {
	t.Parallel()

	_, srv, out := startConsole(t, 2, "/login\nalice\npw\n/create golang\nGo talk\n/bogus\n/exit\n")

	assert.Contains(t, out, "Not available with protocol v2.")
	assert.Contains(t, out, "Unknown command /bogus")
	assert.Equal(t, int32(1), srv.requests.Load())
}

func TestConsoleColorToggle(t *testing.T) {
	t.Parallel()

	_, _, out := startConsole(t, 3, "/color\n/color\n/exit\n")

	on := strings.Index(out, "Color output is on.")
	off := strings.Index(out, "Color output is off.")
	require.NotEqual(t, -1, on)
	require.NotEqual(t, -1, off)
	assert.Contains(t, out[:on], "\x1b[")
	assert.NotContains(t, out[off:], "\x1b[")
}

func TestSaveColorSettingUpdatesConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, saveColorSetting(path, true))

	cfg, err := o3config.LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.Color)

	require.NoError(t, saveColorSetting(path, false))
	cfg, err = o3config.LoadFrom(path)
	require.NoError(t, err)
	assert.False(t, cfg.Color)
}

func TestConsoleChangeRemembersChannel(t *testing.T) {
	t.Parallel()

	ctxPath := filepath.Join(t.TempDir(), o3config.ContextFile)
	require.NoError(t, (&o3config.DirContext{DefaultAccount: "me"}).SaveTo(ctxPath))

	con, _, out := newTestConsole(t, 5, "/login\nalice\npw\n/change golang\n/exit\n")
	con.rememberChannel = func(channel string) error {
		return o3config.RememberChannel(ctxPath, channel)
	}
	require.NoError(t, con.run(context.Background()))

	assert.Contains(t, out.String(), "Channel is now golang")
	assert.Contains(t, out.String(), "Go talk")
	assert.Equal(t, "golang", con.session.CurrentChannel())

	ctx, err := o3config.LoadContext(ctxPath)
	require.NoError(t, err)
	assert.Equal(t, "golang", ctx.Channel)
	assert.Equal(t, "me", ctx.DefaultAccount)
}
