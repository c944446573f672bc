package o3chat

import (
	"sort"
	"sync"
)

// SyncState is the per-session view of the server: the selected channel,
// the conditional-fetch token captured on that channel, and every message
// received so far in SentAt order.
//
// The token is channel scoped. SetChannel always drops it so the next
// fetch on the new channel is a full one.
type SyncState struct {
	mu       sync.RWMutex
	channel  string
	token    string
	messages []ChatMessage
	lines    []string
}

// NewSyncState returns an empty state on the default channel.
func NewSyncState() *SyncState {
	return &SyncState{}
}

// Merge adds batch to the buffer and re-sorts it by SentAt. Messages with
// equal timestamps keep their arrival order. It returns len(batch).
func (s *SyncState) Merge(batch []ChatMessage) int {
	if len(batch) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, batch...)
	sortMessages(s.messages)
	return len(batch)
}

// AppendLines buffers plain-text lines from a v2 server in arrival order.
func (s *SyncState) AppendLines(lines []string) int {
	if len(lines) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, lines...)
	return len(lines)
}

// SetChannel switches channel and clears the conditional token, even when
// name equals the current channel.
func (s *SyncState) SetChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = name
	s.token = ""
}

// RecordConditionalToken stores the server's modification marker. Servers
// older than v5 do not support conditional fetch, so the call is ignored
// for them, as it is for an empty token.
func (s *SyncState) RecordConditionalToken(token string, v ProtocolVersion) {
	if v < 5 || token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *SyncState) Channel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

func (s *SyncState) ConditionalToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Messages returns a copy of the buffered messages.
func (s *SyncState) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Lines returns a copy of the buffered v2 lines.
func (s *SyncState) Lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

func sortMessages(messages []ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
}
