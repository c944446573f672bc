package o3chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is the server generation the client talks to.
type ProtocolVersion int

const (
	MinVersion ProtocolVersion = 2
	MaxVersion ProtocolVersion = 5
)

// ClampVersion forces v into the supported range.
func ClampVersion(v int) ProtocolVersion {
	switch {
	case v < int(MinVersion):
		return MinVersion
	case v > int(MaxVersion):
		return MaxVersion
	}
	return ProtocolVersion(v)
}

// SentLayout is the timestamp format of the "sent" field: millisecond
// precision with an explicit offset.
const SentLayout = "2006-01-02T15:04:05.000Z07:00"

// noChannel is what v3+ servers expect in channelName when the user is on
// the default channel.
const noChannel = "null"

const (
	contentTypeText = "text/plain"
	contentTypeJSON = "application/json"
)

// Payload is an encoded request body.
type Payload struct {
	Body        []byte
	ContentType string
}

// Codec encodes and decodes chat payloads for one protocol generation.
type Codec interface {
	Version() ProtocolVersion
	// Structured reports whether payloads are JSON objects rather than
	// plain text lines.
	Structured() bool
	// Conditional reports whether the server honors If-Modified-Since.
	Conditional() bool
	ContentType() string
	EncodeMessage(body, channel, nick string, sent time.Time) (Payload, error)
	EncodeRegistration(r Registration) (Payload, error)
	// DecodeMessages decodes a fetch response. Plain codecs return lines,
	// structured codecs return messages. Decoding is all or nothing.
	DecodeMessages(data []byte) ([]ChatMessage, []string, error)
}

// CodecFor selects the codec for v.
func CodecFor(v ProtocolVersion) (Codec, error) {
	switch v {
	case 2:
		return plainCodec{}, nil
	case 3, 4:
		return jsonCodec{version: v}, nil
	case 5:
		return conditionalCodec{jsonCodec{version: v}}, nil
	}
	return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, v)
}

type plainCodec struct{}

func (plainCodec) Version() ProtocolVersion { return 2 }
func (plainCodec) Structured() bool         { return false }
func (plainCodec) Conditional() bool        { return false }
func (plainCodec) ContentType() string      { return contentTypeText }

func (plainCodec) EncodeMessage(body, _, _ string, _ time.Time) (Payload, error) {
	return Payload{Body: []byte(body), ContentType: contentTypeText}, nil
}

func (plainCodec) EncodeRegistration(r Registration) (Payload, error) {
	return Payload{Body: []byte(r.Username + ":" + r.Password), ContentType: contentTypeText}, nil
}

func (plainCodec) DecodeMessages(data []byte) ([]ChatMessage, []string, error) {
	return nil, splitLines(data), nil
}

type jsonCodec struct {
	version ProtocolVersion
}

func (c jsonCodec) Version() ProtocolVersion { return c.version }
func (jsonCodec) Structured() bool           { return true }
func (jsonCodec) Conditional() bool          { return false }
func (jsonCodec) ContentType() string        { return contentTypeJSON }

func (jsonCodec) EncodeMessage(body, channel, nick string, sent time.Time) (Payload, error) {
	if channel == "" {
		channel = noChannel
	}
	return encodeJSON(messageJSON{
		User:        nick,
		Message:     body,
		ChannelName: channel,
		Sent:        sent.UTC().Format(SentLayout),
	})
}

func (jsonCodec) EncodeRegistration(r Registration) (Payload, error) {
	return encodeJSON(registrationJSON{Username: r.Username, Password: r.Password, Email: r.Email})
}

func (jsonCodec) DecodeMessages(data []byte) ([]ChatMessage, []string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, nil
	}
	var raw []messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	messages := make([]ChatMessage, 0, len(raw))
	for i, m := range raw {
		sent, err := parseSent(m.Sent)
		if err != nil {
			return nil, nil, fmt.Errorf("message %d: %w", i, err)
		}
		channel := m.ChannelName
		if channel == noChannel {
			channel = ""
		}
		messages = append(messages, ChatMessage{
			Sender:  m.User,
			Body:    m.Message,
			SentAt:  sent,
			Channel: channel,
		})
	}
	return messages, nil, nil
}

type conditionalCodec struct {
	jsonCodec
}

func (conditionalCodec) Conditional() bool { return true }

func parseSent(s string) (time.Time, error) {
	if t, err := time.Parse(SentLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid sent timestamp %q", s)
	}
	return t, nil
}

func encodeJSON(v any) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Body: data, ContentType: contentTypeJSON}, nil
}
