package o3chat

import "time"

// ChatMessage is one decoded chat line from a JSON-speaking server.
type ChatMessage struct {
	Sender  string
	Body    string
	SentAt  time.Time
	Channel string
}

// FetchResult is the outcome of a successful fetch. Status is 204 when the
// server had nothing new; Messages (v3+) or Lines (v2) hold only this
// response's batch, already sorted. Channel is the channel fetched.
type FetchResult struct {
	Status   int
	Channel  string
	Messages []ChatMessage
	Lines    []string
	Added    int
}

// Registration is the body of a new account request.
type Registration struct {
	Username string
	Password string
	Email    string
}

// ProfileUpdate changes the logged-in user's details. Empty fields are
// sent as empty strings; the server decides what "unchanged" means.
type ProfileUpdate struct {
	OldUsername string
	Username    string
	Password    string
	Email       string
}

// NewChannel describes a channel to create.
type NewChannel struct {
	Name        string
	Description string
	CreatedBy   string
}

// ChannelInfo is returned by a successful channel change.
type ChannelInfo struct {
	Status      int
	Name        string
	Description string
	CreatedBy   string
}

// wire shapes

type messageJSON struct {
	User        string `json:"user"`
	Message     string `json:"message"`
	ChannelName string `json:"channelName,omitempty"`
	Sent        string `json:"sent"`
}

type registrationJSON struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type profileUpdateJSON struct {
	OldUsername string `json:"oldUsername"`
	User        string `json:"user"`
	Password    string `json:"password"`
	Email       string `json:"email"`
}

type createChannelJSON struct {
	NewChannelName string `json:"newChannelName"`
	Description    string `json:"description"`
	CreatedBy      string `json:"createdBy"`
}

type changeChannelJSON struct {
	ChannelName string `json:"channelName"`
}

type channelInfoJSON struct {
	ChannelName string `json:"channelName"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}
