package o3chat

import "strings"

// CredentialContext supplies who is talking to which server. The client
// reads it once at the start of every operation and never caches it
// across operations.
type CredentialContext interface {
	Credentials() Credentials
}

// Credentials is a snapshot of the session credentials.
type Credentials struct {
	Server   string
	Username string
	Password string
	Nick     string
	Email    string
	Version  ProtocolVersion
}

// LoggedIn reports whether both username and password are present.
func (c Credentials) LoggedIn() bool {
	return c.Username != "" && c.Password != ""
}

// DisplayNick is the name messages are posted under.
func (c Credentials) DisplayNick() string {
	if strings.TrimSpace(c.Nick) != "" {
		return c.Nick
	}
	return c.Username
}

// StaticCredentials is a CredentialContext that always returns the same
// snapshot.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials() Credentials { return Credentials(s) }
