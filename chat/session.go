// ABOUTME: Chat session composing the sync client, credentials and auto-fetch.
// ABOUTME: Provides Login, Logout, ChangeServer, Register and the auto-fetch toggle.

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	o3chat "github.com/EetuSeppa/O3-chat-client"
	"github.com/EetuSeppa/O3-chat-client/autofetch"
	"github.com/EetuSeppa/O3-chat-client/internal/clock"
)

// Config configures a Session.
type Config struct {
	Server     string
	Version    o3chat.ProtocolVersion
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *o3chat.Metrics
	Clock      clock.Clock

	AutoFetchInterval time.Duration
	// OnTick receives every auto-fetch tick. Optional.
	OnTick func(autofetch.Tick)
}

// Session is one user's conversation with one server: the credentials,
// the sync client that talks to the server, and the auto-fetch scheduler.
type Session struct {
	profile   *Profile
	client    *o3chat.Client
	scheduler *autofetch.Scheduler
	logger    *slog.Logger
}

// NewSession creates a session with nobody logged in.
func NewSession(cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profile := NewProfile(strings.TrimSpace(cfg.Server), cfg.Version)
	client, err := o3chat.New(o3chat.Config{
		Credentials: profile,
		HTTPClient:  cfg.HTTPClient,
		Logger:      logger,
		Metrics:     cfg.Metrics,
		Clock:       cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{profile: profile, client: client, logger: logger}
	s.scheduler = autofetch.New(client, autofetch.Options{
		Interval: cfg.AutoFetchInterval,
		Clock:    cfg.Clock,
		Logger:   logger.With("component", "autofetch"),
		Report:   cfg.OnTick,
		Ready:    s.LoggedIn,
		Metrics:  cfg.Metrics,
	})
	return s, nil
}

// Client returns the underlying sync client.
func (s *Session) Client() *o3chat.Client { return s.client }

// LoggedIn reports whether username and password are set.
func (s *Session) LoggedIn() bool { return s.profile.Credentials().LoggedIn() }

// Login sets the credentials used by later requests. Nothing is sent to
// the server; the first fetch or post reveals whether they are valid.
// Auto-fetch is stopped and the message buffer starts over.
func (s *Session) Login(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return &o3chat.PreconditionError{Op: "login", Err: o3chat.ErrNotLoggedIn}
	}
	s.scheduler.Stop()
	s.profile.update(func(c *o3chat.Credentials) {
		c.Username = username
		c.Password = password
		c.Nick = username
		c.Email = ""
	})
	s.logger.Info("logged in", "username", username)
	return s.client.ResetState()
}

// Logout stops auto-fetch and forgets the credentials.
func (s *Session) Logout() error {
	s.scheduler.Stop()
	s.profile.update(func(c *o3chat.Credentials) {
		c.Username, c.Password, c.Nick, c.Email = "", "", "", ""
	})
	return s.client.ResetState()
}

// ChangeServer points the session at another server. The user has to
// register or log in again there.
func (s *Session) ChangeServer(server string) error {
	server = strings.TrimSpace(server)
	if server == "" {
		return &o3chat.PreconditionError{Op: "change_server", Err: o3chat.ErrNoServer}
	}
	s.scheduler.Stop()
	s.profile.update(func(c *o3chat.Credentials) {
		c.Server = server
		c.Username, c.Password, c.Nick, c.Email = "", "", "", ""
	})
	s.logger.Info("changed server", "server", server)
	return s.client.ResetState()
}

// SetNick changes the name future messages are posted under. A blank nick
// is ignored.
func (s *Session) SetNick(nick string) {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return
	}
	s.profile.update(func(c *o3chat.Credentials) { c.Nick = nick })
}

// Register creates an account and, like Login, makes it the session's
// credentials. The credentials are kept even when the server refuses,
// since the account may already exist.
func (s *Session) Register(ctx context.Context, r o3chat.Registration) (int, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	if r.Username == "" || r.Password == "" || r.Email == "" {
		return 0, &o3chat.PreconditionError{Op: "register", Err: o3chat.ErrIncompleteRegistration}
	}
	s.scheduler.Stop()
	s.profile.update(func(c *o3chat.Credentials) {
		c.Username = r.Username
		c.Password = r.Password
		c.Nick = r.Username
		c.Email = r.Email
	})
	if err := s.client.ResetState(); err != nil {
		return 0, err
	}
	return s.client.RegisterUser(ctx, r)
}

// FetchMessages fetches new messages on the current channel.
func (s *Session) FetchMessages(ctx context.Context) (*o3chat.FetchResult, error) {
	return s.client.FetchCurrent(ctx)
}

// PostMessage posts body to the current channel.
func (s *Session) PostMessage(ctx context.Context, body string) (int, error) {
	return s.client.PostMessage(ctx, body, s.client.CurrentChannel())
}

// UpdateProfile sends u for the logged-in user and, on success, adopts the
// fields that were set. A new username also becomes the nick.
func (s *Session) UpdateProfile(ctx context.Context, u o3chat.ProfileUpdate) (int, error) {
	if u.OldUsername == "" {
		u.OldUsername = s.profile.Credentials().Username
	}
	status, err := s.client.UpdateProfile(ctx, u)
	if err != nil {
		return status, err
	}
	s.profile.update(func(c *o3chat.Credentials) {
		if u.Username != "" {
			c.Username = u.Username
			c.Nick = u.Username
		}
		if u.Password != "" {
			c.Password = u.Password
		}
		if u.Email != "" {
			c.Email = u.Email
		}
	})
	return status, nil
}

// CreateChannel creates a channel owned by the logged-in user.
func (s *Session) CreateChannel(ctx context.Context, name, description string) (int, error) {
	return s.client.CreateChannel(ctx, o3chat.NewChannel{Name: name, Description: description})
}

// ChangeChannel switches to channel name; "main" is the default channel.
func (s *Session) ChangeChannel(ctx context.Context, name string) (*o3chat.ChannelInfo, error) {
	return s.client.ChangeChannel(ctx, name)
}

// StartAutoFetch begins polling the current channel.
func (s *Session) StartAutoFetch(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// StopAutoFetch stops polling. It does not interrupt a fetch in flight.
func (s *Session) StopAutoFetch() {
	s.scheduler.Stop()
}

// ToggleAutoFetch starts polling when stopped and stops it when running.
// It reports whether polling is on afterwards.
func (s *Session) ToggleAutoFetch(ctx context.Context) (bool, error) {
	if s.AutoFetching() {
		s.StopAutoFetch()
		return false, nil
	}
	if err := s.StartAutoFetch(ctx); err != nil {
		return false, fmt.Errorf("starting auto-fetch: %w", err)
	}
	return true, nil
}

// AutoFetching reports whether auto-fetch is running.
func (s *Session) AutoFetching() bool {
	return s.scheduler.State() == autofetch.Running
}

// Notification returns the server's diagnostic from the last failed request.
func (s *Session) Notification() string { return s.client.Notification() }

// CurrentChannel returns the selected channel; "" is the default channel.
func (s *Session) CurrentChannel() string { return s.client.CurrentChannel() }

// Info summarizes the session.
func (s *Session) Info() Info {
	creds := s.profile.Credentials()
	channel := s.client.CurrentChannel()
	if channel == "" {
		channel = o3chat.DefaultChannelName
	}
	messages := len(s.client.Messages())
	if s.client.Version() < 3 {
		messages = len(s.client.Lines())
	}
	return Info{
		Server:    creds.Server,
		Version:   int(s.client.Version()),
		Username:  creds.Username,
		Nick:      creds.DisplayNick(),
		Email:     creds.Email,
		Channel:   channel,
		LoggedIn:  creds.LoggedIn(),
		AutoFetch: s.AutoFetching(),
		Messages:  messages,
	}
}

// Close stops auto-fetch.
func (s *Session) Close() {
	s.scheduler.Stop()
}
