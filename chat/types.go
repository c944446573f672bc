// ABOUTME: Types for the chat session layer.
// ABOUTME: Defines the mutable credential profile and the session summary.

package chat

import (
	"sync"

	o3chat "github.com/EetuSeppa/O3-chat-client"
)

// Profile is the session's mutable credential store. The client reads it
// at the start of every operation, so changes apply to the next request.
type Profile struct {
	mu    sync.RWMutex
	creds o3chat.Credentials
}

// NewProfile returns a profile for server, speaking version v, with no
// user logged in.
func NewProfile(server string, v o3chat.ProtocolVersion) *Profile {
	return &Profile{creds: o3chat.Credentials{Server: server, Version: v}}
}

// Credentials implements o3chat.CredentialContext.
func (p *Profile) Credentials() o3chat.Credentials {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creds
}

func (p *Profile) update(fn func(*o3chat.Credentials)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.creds)
}

// Info summarizes the session for display.
type Info struct {
	Server    string `json:"server"`
	Version   int    `json:"version"`
	Username  string `json:"username,omitempty"`
	Nick      string `json:"nick,omitempty"`
	Email     string `json:"email,omitempty"`
	Channel   string `json:"channel"`
	LoggedIn  bool   `json:"logged_in"`
	AutoFetch bool   `json:"auto_fetch"`
	Messages  int    `json:"messages"`
}
